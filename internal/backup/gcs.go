package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const gcsTimeout = 2 * time.Minute

// GCSUploader stores snapshots as objects under bucket/prefix.
type GCSUploader struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSUploader creates an uploader using Application Default Credentials.
func NewGCSUploader(ctx context.Context, bucket, prefix string) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket, prefix: prefix}, nil
}

func (u *GCSUploader) Name() string { return "gs://" + u.bucket }

func (u *GCSUploader) objectName(fileName string) string {
	return path.Join(strings.Trim(u.prefix, "/"), fileName)
}

func (u *GCSUploader) Upload(ctx context.Context, filePath, fileName string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, gcsTimeout)
	defer cancel()

	w := u.client.Bucket(u.bucket).Object(u.objectName(fileName)).NewWriter(ctx)
	w.ContentType = "application/vnd.sqlite3"
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}
