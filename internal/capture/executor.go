package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// errEmptyScreenshot is returned when the backend produced no image bytes.
var errEmptyScreenshot = errors.New("empty screenshot")

// Executor performs navigate → measure → resize → screenshot → text for one
// target. It never writes files; persistence belongs to a Persister.
type Executor struct {
	clock   Clock
	limiter Limiter
	logger  *zap.Logger
}

// NewExecutor builds an Executor. clock defaults to time.Now and limiter may be nil.
func NewExecutor(clock Clock, limiter Limiter, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		clock:   clock,
		limiter: limiter,
		logger:  logger,
	}
}

// Capture navigates session to target and classifies the result. A panic
// raised by the session is recovered into an Unclassified outcome.
func (e *Executor) Capture(ctx context.Context, session Session, target Target) (out Outcome) {
	start := e.now()
	out = Outcome{Target: target}
	defer func() {
		if r := recover(); r != nil {
			out.Kind = KindUnclassified
			out.Err = fmt.Errorf("capture panic: %v", r)
			out.Detail = out.Err.Error()
		}
		out.Duration = e.now().Sub(start)
	}()

	e.logger.Debug("capture started", zap.String("url", target.URL), zap.String("domain", target.Domain))

	photo, markup, err := e.run(ctx, session, target)
	out.Kind, out.Detail = Classify(err)
	out.Err = err
	out.Photo = photo
	out.Markup = markup
	return out
}

func (e *Executor) run(ctx context.Context, session Session, target Target) ([]byte, string, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, target.URL); err != nil {
			return nil, "", fmt.Errorf("politeness wait: %w", err)
		}
	}
	if err := session.Navigate(ctx, target.URL); err != nil {
		return nil, "", fmt.Errorf("navigate %s: %w", target.URL, err)
	}
	photo, err := e.photograph(ctx, session)
	if err != nil {
		return nil, "", err
	}
	markup, err := session.Text(ctx, DocumentXPath)
	if err != nil {
		return photo, "", fmt.Errorf("read document text: %w", err)
	}
	return photo, markup, nil
}

// photograph sizes the viewport to the scrollable document so the shot
// covers the entire body, then captures the body element.
func (e *Executor) photograph(ctx context.Context, session Session) ([]byte, error) {
	width, height, err := session.ScrollSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("measure document: %w", err)
	}
	if err := session.Resize(ctx, width, height); err != nil {
		return nil, fmt.Errorf("resize viewport to %dx%d: %w", width, height, err)
	}
	photo, err := session.Screenshot(ctx, BodySelector)
	if err != nil {
		return nil, fmt.Errorf("screenshot body: %w", err)
	}
	if len(photo) == 0 {
		return nil, errEmptyScreenshot
	}
	return photo, nil
}

func (e *Executor) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock.Now()
}
