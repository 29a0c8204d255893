// Package dispatcher fans capture targets out to a pool of session-owning workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/webcapture/internal/capture"
	"github.com/JakeFAU/webcapture/internal/queue/memory"
	"github.com/JakeFAU/webcapture/internal/worker"
)

// DefaultConcurrency is the worker pool size when none is configured.
const DefaultConcurrency = 16

// Config controls the pool.
type Config struct {
	// Concurrency is the number of workers, each with its own session.
	// Zero selects DefaultConcurrency; 1 runs a single worker in strict
	// input order on the calling goroutine.
	Concurrency int
}

// Summary tallies a finished run.
type Summary struct {
	Total       int
	Skipped     int
	Counts      map[capture.Kind]int
	Artifacts   int
	WriteErrors int
}

// Count returns the number of outcomes of kind.
func (s Summary) Count(kind capture.Kind) int {
	return s.Counts[kind]
}

// Dispatcher runs a bounded job list to completion.
type Dispatcher struct {
	provider  capture.SessionProvider
	capturer  capture.Capturer
	persister capture.Persister
	recorder  capture.Recorder
	cfg       Config
	logger    *zap.Logger
	onResult  func(capture.Result)
}

// New creates a Dispatcher. persister and recorder may be nil.
func New(
	provider capture.SessionProvider,
	capturer capture.Capturer,
	persister capture.Persister,
	recorder capture.Recorder,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Dispatcher{
		provider:  provider,
		capturer:  capturer,
		persister: persister,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger,
	}
}

// OnResult registers a hook called once per processed target, from the
// worker's goroutine. Workers call it concurrently, so fn must be safe for
// concurrent use; a slow hook only delays the worker that called it.
func (d *Dispatcher) OnResult(fn func(capture.Result)) {
	d.onResult = fn
}

// Run captures every target and blocks until all jobs have finished. It
// returns a SetupError when sessions cannot be started; per-job failures
// are reported through the Summary only.
func (d *Dispatcher) Run(ctx context.Context, targets []capture.Target) (Summary, error) {
	summary := Summary{Counts: make(map[capture.Kind]int, len(capture.Kinds()))}
	if len(targets) == 0 {
		return summary, nil
	}

	size := d.poolSize(len(targets))
	sessions, err := d.acquire(ctx, size)
	if err != nil {
		return summary, &capture.SetupError{Op: "acquire session", Err: err}
	}
	d.logger.Info("dispatch started", zap.Int("targets", len(targets)), zap.Int("workers", size))

	queue := memory.NewQueue(len(targets))
	for _, target := range targets {
		if err := queue.Enqueue(ctx, target); err != nil {
			queue.Close()
			closeAll(sessions, d.logger)
			return summary, fmt.Errorf("queue enqueue: %w", err)
		}
	}
	queue.Close()

	var mu sync.Mutex
	report := func(res capture.Result) {
		mu.Lock()
		summary.Total++
		summary.Counts[res.Outcome.Kind]++
		summary.Artifacts += len(res.Artifacts)
		if res.WriteErr != nil {
			summary.WriteErrors++
		}
		mu.Unlock()
		if d.onResult != nil {
			d.onResult(res)
		}
	}

	workers := make([]*worker.Worker, size)
	for i, session := range sessions {
		workers[i] = worker.New(i, queue, session, d.capturer, d.persister, d.recorder, report, d.logger.Named("worker"))
	}

	if size == 1 {
		workers[0].Run(ctx)
	} else {
		var g errgroup.Group
		for _, w := range workers {
			g.Go(func() error {
				w.Run(ctx)
				return nil
			})
		}
		_ = g.Wait()
	}

	summary.Skipped = len(targets) - summary.Total
	d.logger.Info("dispatch finished",
		zap.Int("total", summary.Total),
		zap.Int("skipped", summary.Skipped),
		zap.Int("artifacts", summary.Artifacts),
		zap.Int("write_errors", summary.WriteErrors),
	)
	if summary.Skipped > 0 && ctx.Err() != nil {
		return summary, fmt.Errorf("run interrupted with %d targets pending: %w", summary.Skipped, ctx.Err())
	}
	return summary, nil
}

func (d *Dispatcher) poolSize(targets int) int {
	size := d.cfg.Concurrency
	if size < 1 {
		size = 1
	}
	if size > targets {
		size = targets
	}
	return size
}

// acquire starts size sessions in parallel. On any failure the sessions
// already started are closed.
func (d *Dispatcher) acquire(ctx context.Context, size int) ([]capture.Session, error) {
	sessions := make([]capture.Session, size)
	g, gctx := errgroup.WithContext(ctx)
	for i := range sessions {
		g.Go(func() error {
			session, err := d.provider.Acquire(gctx)
			if err != nil {
				return err
			}
			sessions[i] = session
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(sessions, d.logger)
		return nil, err //nolint:wrapcheck
	}
	return sessions, nil
}

func closeAll(sessions []capture.Session, logger *zap.Logger) {
	for _, session := range sessions {
		if session == nil {
			continue
		}
		if err := session.Close(); err != nil {
			logger.Warn("session close failed", zap.Error(err))
		}
	}
}
