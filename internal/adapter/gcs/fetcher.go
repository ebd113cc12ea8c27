package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"

	"resumeingest/internal/worker"
)

// Fetcher reads uploaded resumes and their custom metadata from Cloud Storage.
type Fetcher struct {
	client *storage.Client
}

func NewFetcher(client *storage.Client) *Fetcher {
	return &Fetcher{client: client}
}

func (f *Fetcher) Metadata(ctx context.Context, bucket, name string) (map[string]string, error) {
	attrs, err := f.client.Bucket(bucket).Object(name).Attrs(ctx)
	if err != nil {
		return nil, classify(bucket, name, err)
	}
	return attrs.Metadata, nil
}

func (f *Fetcher) Download(ctx context.Context, bucket, name string) ([]byte, error) {
	r, err := f.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, classify(bucket, name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, classify(bucket, name, err)
	}
	slog.DebugContext(ctx, "object downloaded", "bucket", bucket, "object", name, "bytes", len(data))
	return data, nil
}

func classify(bucket, name string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: gs://%s/%s", worker.ErrObjectNotFound, bucket, name)
	}
	return fmt.Errorf("%w: gs://%s/%s: %w", worker.ErrObjectStoreUnavailable, bucket, name, err)
}
