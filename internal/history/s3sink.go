package history

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// defaultBackupInterval matches spec.md §4.O's stated default.
const defaultBackupInterval = 300 * time.Second

// S3Sink periodically uploads a gzip-compressed snapshot of the full
// history log to an object-storage bucket for durability across machine
// loss (spec.md §4.O, supplemental). It never reads back from the bucket
// and never blocks Append.
type S3Sink struct {
	client   *minio.Client
	bucket   string
	store    *Store
	interval time.Duration
	log      *logrus.Entry
}

// NewS3Sink builds a sink against an S3-compatible endpoint. Enabled only
// when config.HistorySinks.S3Bucket is non-empty.
func NewS3Sink(endpoint, accessKeyID, secretAccessKey, bucket string, useSSL bool, backupIntervalSec int, store *Store, logger *logrus.Entry) (*S3Sink, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("history: failed to build s3 client: %w", err)
	}
	interval := defaultBackupInterval
	if backupIntervalSec > 0 {
		interval = time.Duration(backupIntervalSec) * time.Second
	}
	return &S3Sink{client: client, bucket: bucket, store: store, interval: interval, log: logger}, nil
}

// Run blocks, uploading a snapshot every interval, until ctx is canceled.
// The CLI's bootstrap launches it as a fire-and-forget goroutine at
// startup.
func (s *S3Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.backupOnce(ctx); err != nil {
				s.log.Warnf("history: s3sink backup failed: %v", err)
			}
		}
	}
}

func (s *S3Sink) backupOnce(ctx context.Context) error {
	data, err := os.ReadFile(s.store.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read history file: %w", err)
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("finalize snapshot: %w", err)
	}

	objectName := fmt.Sprintf("colab-history/%s.jsonl.gz", time.Now().UTC().Format("20060102T150405Z"))
	_, err = s.client.PutObject(ctx, s.bucket, objectName, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType:     "application/gzip",
		ContentEncoding: "gzip",
	})
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	return nil
}
