// Package observability bundles the operational surface of the server:
// structured logging, Prometheus metrics, OpenTelemetry tracing, health
// probes, and graceful shutdown coordination.
package observability
