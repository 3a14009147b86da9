package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSUploader stores snapshots as objects under Prefix in Bucket.
type GCSUploader struct {
	client *storage.Client
	Bucket string
	Prefix string
}

func NewGCSUploader(ctx context.Context, bucket, prefix, saKeyPath string) (*GCSUploader, error) {
	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSUploader{client: client, Bucket: bucket, Prefix: prefix}, nil
}

func (u *GCSUploader) Upload(ctx context.Context, localPath, objectName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open snapshot %s: %w", localPath, err)
	}
	defer f.Close()

	name := path.Join(u.Prefix, objectName)
	w := u.client.Bucket(u.Bucket).Object(name).NewWriter(ctx)
	w.ContentType = "text/plain; charset=utf-8"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy %s to gs://%s/%s: %w", localPath, u.Bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close GCS writer for %s: %w", name, err)
	}
	return nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}
