package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/webcapture/internal/capture"
)

const scrollSizeScript = `[document.body.parentNode.scrollWidth, document.body.parentNode.scrollHeight]`

// ChromeSession drives one Chrome process and tab through chromedp.
type ChromeSession struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	opts          Options
	logger        *zap.Logger
}

// NewChromeSession launches Chrome and opens its first tab.
func NewChromeSession(ctx context.Context, opts Options, logger *zap.Logger) (capture.Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	stop := context.AfterFunc(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromeSession{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		opts:          opts,
		logger:        logger,
	}, nil
}

func (s *ChromeSession) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	stepCtx, cancel := stepContext(s.browserCtx, ctx, s.opts.ImplicitWait)
	defer cancel()
	return driverError(op, chromedp.Run(stepCtx, actions...))
}

// Navigate loads rawURL and waits for the load event.
func (s *ChromeSession) Navigate(ctx context.Context, rawURL string) error {
	return s.run(ctx, "chromedp navigate", chromedp.Navigate(rawURL))
}

// ScrollSize reports the scrollable width and height of the document.
func (s *ChromeSession) ScrollSize(ctx context.Context) (int64, int64, error) {
	var dims []int64
	if err := s.run(ctx, "chromedp scroll size", chromedp.Evaluate(scrollSizeScript, &dims)); err != nil {
		return 0, 0, err
	}
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("chromedp scroll size: unexpected result %v", dims)
	}
	return dims[0], dims[1], nil
}

// Resize overrides the viewport metrics.
func (s *ChromeSession) Resize(ctx context.Context, width, height int64) error {
	return s.run(ctx, "chromedp resize", emulation.SetDeviceMetricsOverride(width, height, 1, false))
}

// Screenshot captures the first element matching the CSS selector as PNG.
func (s *ChromeSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, "chromedp screenshot", chromedp.Screenshot(selector, &buf, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Text returns the rendered text of the element at xpath.
func (s *ChromeSession) Text(ctx context.Context, xpath string) (string, error) {
	var text string
	if err := s.run(ctx, "chromedp text", chromedp.Text(xpath, &text, chromedp.BySearch)); err != nil {
		return "", err
	}
	return text, nil
}

// Close shuts the browser down and releases the allocator.
func (s *ChromeSession) Close() error {
	err := chromedp.Cancel(s.browserCtx)
	s.browserCancel()
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}
