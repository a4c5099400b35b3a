package ingest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/traceloft/traceloft/pkg/async"
)

const archiveTimeout = 30 * time.Second

// ObjectPutter is the slice of the S3 API the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver stores raw ingestion payloads in object storage as a replay
// safety net. Uploads run in the background; archival failure never affects
// the ingestion outcome.
type Archiver struct {
	client ObjectPutter
	bucket string
	logger *logrus.Logger
}

// NewArchiver creates an archiver writing into the given bucket.
func NewArchiver(client ObjectPutter, bucket string, logger *logrus.Logger) *Archiver {
	return &Archiver{client: client, bucket: bucket, logger: logger}
}

// Archive uploads the raw payload asynchronously under a time-ordered key.
func (a *Archiver) Archive(ctx context.Context, environmentID string, payload []byte) {
	key := fmt.Sprintf("raw/%s/%s-%s.json",
		environmentID,
		time.Now().UTC().Format("20060102T150405"),
		uuid.New().String(),
	)
	body := make([]byte, len(payload))
	copy(body, payload)

	async.SafeGo(context.WithoutCancel(ctx), archiveTimeout, "payload archive", func(ctx context.Context) error {
		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			a.logger.WithError(err).WithField("key", key).Warn("payload archive failed")
		}
		return nil
	})
}
