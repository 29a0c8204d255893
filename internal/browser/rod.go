package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/JakeFAU/webcapture/internal/capture"
)

// rodConnectTimeout bounds the DevTools dial after launch.
const rodConnectTimeout = 30 * time.Second

// RodSession drives one Chrome process and page through go-rod.
type RodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	opts     Options
	logger   *zap.Logger
}

// NewRodSession launches a local Chrome, connects to it and opens a blank page.
func NewRodSession(ctx context.Context, opts Options, logger *zap.Logger) (capture.Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := launcher.New().
		Headless(opts.Headless).
		Set("disable-gpu").
		Set("hide-scrollbars")
	if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("rod launch: %w", err)
	}

	// The event loop runs on the connection context, which must outlive
	// acquisition; only the dial is bounded, by killing the process.
	dialCtx, cancelDial := context.WithTimeout(ctx, rodConnectTimeout)
	stopKill := context.AfterFunc(dialCtx, l.Kill)
	b := rod.New().ControlURL(controlURL).Context(context.Background())
	err = b.Connect()
	dialAlive := stopKill()
	cancelDial()
	if err == nil && !dialAlive {
		_ = b.Close()
		err = fmt.Errorf("connect aborted: %w", dialCtx.Err())
	}
	if err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("rod connect: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("rod open page: %w", err)
	}

	logger.Debug("rod browser launched", zap.String("control_url", controlURL))
	return &RodSession{
		launcher: l,
		browser:  b,
		page:     page,
		opts:     opts,
		logger:   logger,
	}, nil
}

func (s *RodSession) step(ctx context.Context) (*rod.Page, context.CancelFunc) {
	stepCtx, cancel := stepContext(context.Background(), ctx, s.opts.ImplicitWait)
	return s.page.Context(stepCtx), cancel
}

// Navigate loads rawURL and waits for the load event.
func (s *RodSession) Navigate(ctx context.Context, rawURL string) error {
	page, cancel := s.step(ctx)
	defer cancel()
	if err := page.Navigate(rawURL); err != nil {
		var navErr *rod.NavigationError
		if errors.As(err, &navErr) {
			return fmt.Errorf("rod navigate: %w: %w", capture.ErrConnection, err)
		}
		return driverError("rod navigate", err)
	}
	return driverError("rod wait load", page.WaitLoad())
}

// ScrollSize reports the scrollable width and height of the document.
func (s *RodSession) ScrollSize(ctx context.Context) (int64, int64, error) {
	page, cancel := s.step(ctx)
	defer cancel()
	res, err := page.Eval("() => " + scrollSizeScript)
	if err != nil {
		return 0, 0, driverError("rod scroll size", err)
	}
	dims := res.Value.Arr()
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("rod scroll size: unexpected result %s", res.Value.String())
	}
	return int64(dims[0].Int()), int64(dims[1].Int()), nil
}

// Resize overrides the viewport metrics.
func (s *RodSession) Resize(ctx context.Context, width, height int64) error {
	page, cancel := s.step(ctx)
	defer cancel()
	return driverError("rod resize", page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             int(width),
		Height:            int(height),
		DeviceScaleFactor: 1,
		Mobile:            false,
	}))
}

// Screenshot captures the first element matching the CSS selector as PNG.
func (s *RodSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	page, cancel := s.step(ctx)
	defer cancel()
	el, err := page.Element(selector)
	if err != nil {
		return nil, driverError("rod find "+selector, err)
	}
	photo, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, driverError("rod screenshot", err)
	}
	return photo, nil
}

// Text returns the rendered text of the element at xpath.
func (s *RodSession) Text(ctx context.Context, xpath string) (string, error) {
	page, cancel := s.step(ctx)
	defer cancel()
	el, err := page.ElementX(xpath)
	if err != nil {
		return "", driverError("rod find "+xpath, err)
	}
	text, err := el.Text()
	if err != nil {
		return "", driverError("rod text", err)
	}
	return text, nil
}

// Close closes the browser and kills the launched process.
func (s *RodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("close rod browser: %w", err)
	}
	return nil
}
