package capture

import (
	"context"
	"io"
	"time"
)

// Session is a live handle to one browser automation instance. A Session is
// owned by exactly one worker and is never used from two goroutines at once.
type Session interface {
	Navigate(ctx context.Context, rawURL string) error
	ScrollSize(ctx context.Context) (width, height int64, err error)
	Resize(ctx context.Context, width, height int64) error
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	Text(ctx context.Context, xpath string) (string, error)
	Close() error
}

// SessionProvider acquires a fresh, configured Session.
type SessionProvider interface {
	Acquire(ctx context.Context) (Session, error)
}

// Capturer runs one capture against a session.
type Capturer interface {
	Capture(ctx context.Context, session Session, target Target) Outcome
}

// Persister writes the artifacts of an outcome.
type Persister interface {
	Persist(ctx context.Context, outcome Outcome) ([]Artifact, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Queue provides enqueue/dequeue semantics for capture targets.
type Queue interface {
	Enqueue(ctx context.Context, target Target) error
	Dequeue(ctx context.Context) (Target, error)
}

// Recorder observes pipeline activity for metrics.
type Recorder interface {
	ObserveOutcome(outcome Outcome)
	ObserveArtifacts(artifacts []Artifact)
	ObserveWriteError()
}

// Limiter delays captures to keep per-host request rates polite.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Hasher computes digests for artifact integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
