package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader reads objects back from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// Archiver keeps cold copies of raw crawl batches and candidate sets.
type Archiver interface {
	ArchiveBatch(ctx context.Context, batch CrawlBatch) (string, error)
	ArchiveCandidates(ctx context.Context, huntID string, version int64, set []MatchCandidate) (string, error)
	LoadBatch(ctx context.Context, path string) (CrawlBatch, error)
	// ListBatches returns archived batch paths under prefix in path order.
	ListBatches(ctx context.Context, prefix string) ([]string, error)
}
