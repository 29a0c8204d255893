// Package worker implements the per-session capture loop.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/webcapture/internal/capture"
)

// ReportFunc receives the result of every processed target.
type ReportFunc func(capture.Result)

// Worker owns one session and runs captures from the queue through it.
type Worker struct {
	id        int
	queue     capture.Queue
	session   capture.Session
	capturer  capture.Capturer
	persister capture.Persister
	recorder  capture.Recorder
	report    ReportFunc
	logger    *zap.Logger
}

// New constructs a Worker. persister, recorder and report may be nil.
func New(
	id int,
	queue capture.Queue,
	session capture.Session,
	capturer capture.Capturer,
	persister capture.Persister,
	recorder capture.Recorder,
	report ReportFunc,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:        id,
		queue:     queue,
		session:   session,
		capturer:  capturer,
		persister: persister,
		recorder:  recorder,
		report:    report,
		logger:    logger.With(zap.Int("worker", id)),
	}
}

// Run consumes targets until the queue is drained or the context ends, then
// closes the session.
func (w *Worker) Run(ctx context.Context) {
	defer w.closeSession()
	for {
		target, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, capture.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		res := w.Process(ctx, target)
		if w.report != nil {
			w.report(res)
		}
	}
}

// Process captures one target and persists its artifacts. It never panics.
func (w *Worker) Process(ctx context.Context, target capture.Target) (res capture.Result) {
	logger := w.logger.With(zap.String("url", target.URL), zap.String("domain", target.Domain))
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("worker panic: %v", r)
			res = capture.Result{Outcome: capture.Outcome{
				Target: target,
				Kind:   capture.KindUnclassified,
				Detail: err.Error(),
				Err:    err,
			}}
			logger.Error("capture panicked", zap.Any("panic", r))
		}
	}()

	logger.Info("working on target")
	outcome := w.capturer.Capture(ctx, w.session, target)
	res.Outcome = outcome
	logOutcome(logger, outcome)
	if w.recorder != nil {
		w.recorder.ObserveOutcome(outcome)
	}

	if w.persister == nil {
		return res
	}
	artifacts, err := w.persister.Persist(ctx, outcome)
	res.Artifacts = artifacts
	if w.recorder != nil && len(artifacts) > 0 {
		w.recorder.ObserveArtifacts(artifacts)
	}
	if err != nil {
		res.WriteErr = err
		logger.Error("artifact write failed", zap.Error(err))
		if w.recorder != nil {
			w.recorder.ObserveWriteError()
		}
	}
	return res
}

func logOutcome(logger *zap.Logger, outcome capture.Outcome) {
	fields := []zap.Field{
		zap.String("outcome", string(outcome.Kind)),
		zap.Duration("duration", outcome.Duration),
	}
	switch outcome.Kind {
	case capture.KindSuccess:
		logger.Info("capture succeeded", fields...)
	case capture.KindConnectionError:
		logger.Warn("connection failed", append(fields, zap.Error(outcome.Err))...)
	case capture.KindDriverTimeout:
		logger.Warn("capture timed out", append(fields, zap.String("detail", outcome.Detail))...)
	default:
		logger.Error("capture failed", append(fields, zap.Error(outcome.Err))...)
	}
}

func (w *Worker) closeSession() {
	if w.session == nil {
		return
	}
	if err := w.session.Close(); err != nil {
		w.logger.Warn("session close failed", zap.Error(err))
		return
	}
	w.logger.Debug("session closed")
}
