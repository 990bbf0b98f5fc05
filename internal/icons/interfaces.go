package icons

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless render is warranted.
type HeadlessDetector interface {
	ShouldPromote(page FetchResponse) bool
}

// Searcher resolves a word into candidate icon URLs.
type Searcher interface {
	Search(ctx context.Context, word, sourceConfig string) ([]string, error)
}

// Workspace manages the per-batch directory tree on disk.
type Workspace interface {
	MakeDir(ctx context.Context, dir string) error
	RemoveDir(ctx context.Context, dir string) error
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes batch events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces batch IDs.
type IDGenerator interface {
	NewID() (string, error)
}
