package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/webcapture/internal/capture"
)

// ErrUnknownDriver is returned when no factory is registered for a driver kind.
var ErrUnknownDriver = errors.New("unknown driver")

// Built-in driver kinds.
const (
	DriverChrome  = "chrome"
	DriverRod     = "rod"
	DriverFirefox = "firefox"
)

// Options configures every session a Provider starts.
type Options struct {
	// Headless runs the browser without a visible UI.
	Headless bool
	// ImplicitWait bounds each navigation and element query.
	ImplicitWait time.Duration
}

// Factory starts one configured session.
type Factory func(ctx context.Context, opts Options, logger *zap.Logger) (capture.Session, error)

// Registry maps driver kinds to session factories. Lookups are case-insensitive.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	aliases   map[string]string
	logger    *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
		logger:    logger,
	}
}

// DefaultRegistry registers the chromedp and go-rod drivers. "firefox" is
// kept as an alias of chrome so older invocations keep working.
func DefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(DriverChrome, NewChromeSession)
	r.Register(DriverRod, NewRodSession)
	r.Alias(DriverFirefox, DriverChrome)
	return r
}

// Register installs factory under kind, replacing any previous entry.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[normalize(kind)] = factory
}

// Alias makes alias resolve to the factory registered for kind.
func (r *Registry) Alias(alias, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[normalize(alias)] = normalize(kind)
}

// Kinds lists the registered driver kinds and aliases, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories)+len(r.aliases))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	for alias := range r.aliases {
		kinds = append(kinds, alias)
	}
	sort.Strings(kinds)
	return kinds
}

// Provider resolves kind and returns a SessionProvider bound to opts.
func (r *Registry) Provider(kind string, opts Options) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name := normalize(kind)
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, &capture.SetupError{
			Op:  "select driver",
			Err: fmt.Errorf("%w: %q (known: %s)", ErrUnknownDriver, kind, strings.Join(r.kindsLocked(), ", ")),
		}
	}
	return &Provider{
		kind:    name,
		factory: factory,
		opts:    opts,
		logger:  r.logger.Named("browser").With(zap.String("driver", name)),
	}, nil
}

func (r *Registry) kindsLocked() []string {
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Provider starts sessions of one driver kind.
type Provider struct {
	kind    string
	factory Factory
	opts    Options
	logger  *zap.Logger
}

// Kind returns the resolved driver kind.
func (p *Provider) Kind() string {
	return p.kind
}

// Options returns the options every session is started with.
func (p *Provider) Options() Options {
	return p.opts
}

// Acquire implements capture.SessionProvider.
func (p *Provider) Acquire(ctx context.Context) (capture.Session, error) {
	session, err := p.factory(ctx, p.opts, p.logger)
	if err != nil {
		return nil, fmt.Errorf("start %s session: %w", p.kind, err)
	}
	p.logger.Debug("session started", zap.Bool("headless", p.opts.Headless), zap.Duration("implicit_wait", p.opts.ImplicitWait))
	return session, nil
}

// ImplicitWait converts a millisecond budget to whole seconds, never below one.
func ImplicitWait(timeoutMs int) time.Duration {
	seconds := timeoutMs / 1000
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func normalize(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// driverError tags backend failures with the capture sentinels.
func driverError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, capture.ErrDriverTimeout, err)
	case strings.Contains(err.Error(), "net::ERR_"):
		return fmt.Errorf("%s: %w: %w", op, capture.ErrConnection, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// stepContext bounds one session call by the implicit wait and ties it to
// the caller's cancellation.
func stepContext(parent, caller context.Context, wait time.Duration) (context.Context, context.CancelFunc) {
	if wait <= 0 {
		wait = time.Second
	}
	ctx, cancel := context.WithTimeout(parent, wait)
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
