// Package publisher announces processed capture targets to downstream
// consumers, one message per target.
package publisher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/webcapture/internal/capture"
)

// Publisher sends a payload to a topic and returns the broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ArtifactEvent describes one persisted file.
type ArtifactEvent struct {
	Kind   string `json:"kind"`
	URI    string `json:"uri"`
	SHA256 string `json:"sha256"`
	Bytes  int    `json:"bytes"`
}

// CaptureEvent is the message body published for a processed target.
type CaptureEvent struct {
	RunID      string          `json:"run_id"`
	URL        string          `json:"url"`
	Domain     string          `json:"domain"`
	Outcome    string          `json:"outcome"`
	Detail     string          `json:"detail,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Artifacts  []ArtifactEvent `json:"artifacts,omitempty"`
	WriteError string          `json:"write_error,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Attributes are the message attributes subscribers can filter on.
func (e CaptureEvent) Attributes() map[string]string {
	return map[string]string{
		"run_id":  e.RunID,
		"domain":  e.Domain,
		"outcome": e.Outcome,
	}
}

// NewEvent converts a worker result into a CaptureEvent.
func NewEvent(runID string, res capture.Result, at time.Time) CaptureEvent {
	out := res.Outcome
	event := CaptureEvent{
		RunID:      runID,
		URL:        out.Target.URL,
		Domain:     out.Target.Domain,
		Outcome:    string(out.Kind),
		Detail:     out.Detail,
		DurationMs: out.Duration.Milliseconds(),
		FinishedAt: at.UTC(),
	}
	for _, a := range res.Artifacts {
		event.Artifacts = append(event.Artifacts, ArtifactEvent{
			Kind:   string(a.Kind),
			URI:    a.URI,
			SHA256: a.SHA256,
			Bytes:  a.Bytes,
		})
	}
	if res.WriteErr != nil {
		event.WriteError = res.WriteErr.Error()
	}
	return event
}

// DefaultPublishTimeout bounds a single publish when Config.Timeout is zero.
const DefaultPublishTimeout = 10 * time.Second

// Config selects where and how events are published.
type Config struct {
	Topic string
	RunID string
	// Timeout bounds each publish, including the wait for the broker ack.
	Timeout time.Duration
}

// Announcer publishes a CaptureEvent for every result it is handed. Publish
// failures are logged and counted; they never fail the run. Announce is safe
// for concurrent use.
type Announcer struct {
	publisher Publisher
	topic     string
	runID     string
	timeout   time.Duration
	clock     capture.Clock
	logger    *zap.Logger

	mu       sync.Mutex
	sent     int
	failures int
}

// NewAnnouncer wires an Announcer. clock may be nil.
func NewAnnouncer(pub Publisher, cfg Config, clock capture.Clock, logger *zap.Logger) *Announcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPublishTimeout
	}
	return &Announcer{
		publisher: pub,
		topic:     cfg.Topic,
		runID:     cfg.RunID,
		timeout:   cfg.Timeout,
		clock:     clock,
		logger:    logger,
	}
}

// Announce publishes res.
func (a *Announcer) Announce(ctx context.Context, res capture.Result) {
	event := NewEvent(a.runID, res, a.now())
	pubCtx, cancel := context.WithTimeout(ctx, a.timeout)
	id, err := a.publisher.Publish(pubCtx, a.topic, event)
	cancel()

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.failures++
		a.logger.Warn("publish capture event failed",
			zap.String("topic", a.topic),
			zap.String("domain", event.Domain),
			zap.Error(err),
		)
		return
	}
	a.sent++
	a.logger.Debug("capture event published",
		zap.String("topic", a.topic),
		zap.String("message_id", id),
		zap.String("domain", event.Domain),
	)
}

// Stats returns how many events were published and how many failed.
func (a *Announcer) Stats() (sent, failures int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sent, a.failures
}

func (a *Announcer) now() time.Time {
	if a.clock == nil {
		return time.Now()
	}
	return a.clock.Now()
}
