package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader checks object storage for existing archives.
type BlobReader interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// PeriodArchiver moves a finished period's positions and price history to
// cold storage.
type PeriodArchiver interface {
	ArchivePeriod(ctx context.Context, period int64, positions []Position, priceLines []string) error
}
