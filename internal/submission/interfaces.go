package submission

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a page body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Downloader retrieves a binary document.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// BlobStore persists and reads back artifacts.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Publisher emits handoff messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunStore records run summaries.
type RunStore interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// Clock abstracts time for determinism.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher hashes snapshot content.
type Hasher interface {
	Hash(data []byte) (string, error)
}
