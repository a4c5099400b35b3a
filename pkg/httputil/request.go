package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const maxBodyBytes = 10 << 20 // 10 MiB

// DecodeJSON parses the request body into dst, enforcing the body size cap.
func DecodeJSON(r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// DecodeJSONOrError parses the request body into dst and writes a 400
// response on failure. Returns false when the response was written.
func DecodeJSONOrError(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := DecodeJSON(r, dst); err != nil {
		WriteBadRequest(w, "invalid JSON request body")
		return false
	}
	return true
}

// QueryInt reads an integer query parameter, returning def when the
// parameter is missing or malformed.
func QueryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}
