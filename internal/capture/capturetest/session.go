// Package capturetest provides in-memory sessions for exercising the capture
// pipeline without a browser.
package capturetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/webcapture/internal/capture"
)

// PNG is a minimal byte payload returned by FakeSession screenshots.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// FakeSession scripts per-URL navigation failures and records every call.
// Overlapping calls from two goroutines are flagged, see Overlapped.
type FakeSession struct {
	// Failures maps a URL to the error Navigate returns for it.
	Failures map[string]error
	// Width and Height are reported by ScrollSize.
	Width, Height int64

	mu      sync.Mutex
	current string
	calls   []string
	closed  bool
	inUse   atomic.Bool
	overlap atomic.Bool
}

// NewFakeSession returns a session that succeeds for every URL not in failures.
func NewFakeSession(failures map[string]error) *FakeSession {
	return &FakeSession{Failures: failures, Width: 1280, Height: 2048}
}

func (s *FakeSession) enter(call string) func() {
	if !s.inUse.CompareAndSwap(false, true) {
		s.overlap.Store(true)
	}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	return func() { s.inUse.Store(false) }
}

// Navigate implements capture.Session.
func (s *FakeSession) Navigate(ctx context.Context, rawURL string) error {
	defer s.enter("navigate " + rawURL)()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("navigate canceled: %w", err)
	}
	if err, ok := s.Failures[rawURL]; ok {
		return err
	}
	s.mu.Lock()
	s.current = rawURL
	s.mu.Unlock()
	return nil
}

// ScrollSize implements capture.Session.
func (s *FakeSession) ScrollSize(context.Context) (int64, int64, error) {
	defer s.enter("scroll-size")()
	return s.Width, s.Height, nil
}

// Resize implements capture.Session.
func (s *FakeSession) Resize(_ context.Context, width, height int64) error {
	defer s.enter(fmt.Sprintf("resize %dx%d", width, height))()
	return nil
}

// Screenshot implements capture.Session.
func (s *FakeSession) Screenshot(_ context.Context, selector string) ([]byte, error) {
	defer s.enter("screenshot " + selector)()
	return append([]byte(nil), PNG...), nil
}

// Text implements capture.Session.
func (s *FakeSession) Text(_ context.Context, xpath string) (string, error) {
	defer s.enter("text " + xpath)()
	s.mu.Lock()
	defer s.mu.Unlock()
	return "rendered " + s.current, nil
}

// Close implements capture.Session.
func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session already closed")
	}
	s.closed = true
	return nil
}

// Calls returns a copy of the recorded call log.
func (s *FakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Overlapped reports whether two calls ever ran at the same time.
func (s *FakeSession) Overlapped() bool {
	return s.overlap.Load()
}

// FakeProvider hands out FakeSessions sharing one failure script.
type FakeProvider struct {
	Failures map[string]error
	// FailAfter makes Acquire fail once this many sessions were handed out (0 = never).
	FailAfter int

	mu       sync.Mutex
	sessions []*FakeSession
}

// Acquire implements capture.SessionProvider.
func (p *FakeProvider) Acquire(ctx context.Context) (capture.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire canceled: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailAfter > 0 && len(p.sessions) >= p.FailAfter {
		return nil, errors.New("browser launch failed")
	}
	s := NewFakeSession(p.Failures)
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Sessions returns every session handed out so far.
func (p *FakeProvider) Sessions() []*FakeSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeSession(nil), p.sessions...)
}

// MockSession is a testify mock of capture.Session.
type MockSession struct {
	mock.Mock
}

// Navigate is the mock implementation of Navigate.
func (m *MockSession) Navigate(ctx context.Context, rawURL string) error {
	args := m.Called(ctx, rawURL)
	return args.Error(0) //nolint:wrapcheck
}

// ScrollSize is the mock implementation of ScrollSize.
func (m *MockSession) ScrollSize(ctx context.Context) (int64, int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2) //nolint:wrapcheck
}

// Resize is the mock implementation of Resize.
func (m *MockSession) Resize(ctx context.Context, width, height int64) error {
	args := m.Called(ctx, width, height)
	return args.Error(0) //nolint:wrapcheck
}

// Screenshot is the mock implementation of Screenshot.
func (m *MockSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	args := m.Called(ctx, selector)
	var photo []byte
	if v := args.Get(0); v != nil {
		photo = v.([]byte)
	}
	return photo, args.Error(1) //nolint:wrapcheck
}

// Text is the mock implementation of Text.
func (m *MockSession) Text(ctx context.Context, xpath string) (string, error) {
	args := m.Called(ctx, xpath)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}

// Close is the mock implementation of Close.
func (m *MockSession) Close() error {
	args := m.Called()
	return args.Error(0) //nolint:wrapcheck
}
