package harvest

import (
	"context"
	"time"
)

// Fetcher retrieves a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Detector decides whether a probe fetch should be retried with a headless
// browser.
type Detector interface {
	NeedsHeadless(page Page) bool
}

// StatusStore persists job status objects keyed by job id. Writes are
// last-writer-wins; only the orchestrator mutates a given job id.
type StatusStore interface {
	Set(ctx context.Context, jobID string, status JobStatus) error
	Get(ctx context.Context, jobID string) (JobStatus, error)
}

// Queue provides enqueue/dequeue semantics for harvest jobs.
type Queue interface {
	Enqueue(ctx context.Context, job JobRequest) error
	Dequeue(ctx context.Context) (JobRequest, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore archives artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
