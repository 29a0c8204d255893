package capture_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/webcapture/internal/capture"
	"github.com/JakeFAU/webcapture/internal/capture/capturetest"
)

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

type recordingLimiter struct {
	err  error
	urls []string
}

func (l *recordingLimiter) Wait(_ context.Context, rawURL string) error {
	l.urls = append(l.urls, rawURL)
	return l.err
}

func mustTarget(t *testing.T, raw string) capture.Target {
	t.Helper()
	target, err := capture.NewTarget(raw)
	require.NoError(t, err)
	return target
}

func TestExecutorCaptureSuccessRunsStepsInOrder(t *testing.T) {
	t.Parallel()

	session := capturetest.NewFakeSession(nil)
	session.Width, session.Height = 1024, 4096
	limiter := &recordingLimiter{}
	clock := &stepClock{now: time.Unix(0, 0), step: 250 * time.Millisecond}
	exec := capture.NewExecutor(clock, limiter, zap.NewNop())

	out := exec.Capture(context.Background(), session, mustTarget(t, "https://a.test"))

	require.True(t, out.OK())
	assert.Equal(t, capture.KindSuccess, out.Kind)
	assert.Equal(t, capturetest.PNG, out.Photo)
	assert.Equal(t, "rendered https://a.test", out.Markup)
	assert.NoError(t, out.Err)
	assert.Equal(t, 250*time.Millisecond, out.Duration)
	assert.Equal(t, []string{"https://a.test"}, limiter.urls)
	assert.Equal(t, []string{
		"navigate https://a.test",
		"scroll-size",
		"resize 1024x4096",
		"screenshot body",
		"text /html",
	}, session.Calls())
}

func TestExecutorCaptureClassifiesNavigationFailures(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		kind capture.Kind
	}{
		"connection": {
			err:  fmt.Errorf("page load error net::ERR_NAME_NOT_RESOLVED: %w", capture.ErrConnection),
			kind: capture.KindConnectionError,
		},
		"timeout": {
			err:  fmt.Errorf("wait for load: %w", capture.ErrDriverTimeout),
			kind: capture.KindDriverTimeout,
		},
		"deadline": {
			err:  context.DeadlineExceeded,
			kind: capture.KindDriverTimeout,
		},
		"other": {
			err:  errors.New("javascript dialog blocked navigation"),
			kind: capture.KindUnclassified,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			session := capturetest.NewFakeSession(map[string]error{"https://bad.test": tc.err})
			exec := capture.NewExecutor(nil, nil, nil)

			out := exec.Capture(context.Background(), session, mustTarget(t, "https://bad.test"))

			assert.Equal(t, tc.kind, out.Kind)
			assert.ErrorIs(t, out.Err, tc.err)
			assert.NotEmpty(t, out.Detail)
			assert.Nil(t, out.Photo)
			assert.Empty(t, out.Markup)
			assert.Equal(t, []string{"navigate https://bad.test"}, session.Calls())
		})
	}
}

func TestExecutorCaptureRecoversPanics(t *testing.T) {
	t.Parallel()

	session := new(capturetest.MockSession)
	session.On("Navigate", mock.Anything, "https://panic.test").Panic("driver crashed")
	exec := capture.NewExecutor(nil, nil, zap.NewNop())

	out := exec.Capture(context.Background(), session, mustTarget(t, "https://panic.test"))

	assert.Equal(t, capture.KindUnclassified, out.Kind)
	require.Error(t, out.Err)
	assert.Contains(t, out.Detail, "driver crashed")
	session.AssertExpectations(t)
}

func TestExecutorCaptureRejectsEmptyScreenshot(t *testing.T) {
	t.Parallel()

	session := new(capturetest.MockSession)
	session.On("Navigate", mock.Anything, "https://blank.test").Return(nil)
	session.On("ScrollSize", mock.Anything).Return(int64(800), int64(600), nil)
	session.On("Resize", mock.Anything, int64(800), int64(600)).Return(nil)
	session.On("Screenshot", mock.Anything, capture.BodySelector).Return([]byte{}, nil)
	exec := capture.NewExecutor(nil, nil, zap.NewNop())

	out := exec.Capture(context.Background(), session, mustTarget(t, "https://blank.test"))

	assert.Equal(t, capture.KindUnclassified, out.Kind)
	assert.Contains(t, out.Detail, "empty screenshot")
	session.AssertExpectations(t)
	session.AssertNotCalled(t, "Text", mock.Anything, mock.Anything)
}

func TestExecutorCaptureTextFailureKeepsCause(t *testing.T) {
	t.Parallel()

	session := new(capturetest.MockSession)
	session.On("Navigate", mock.Anything, "https://slow.test").Return(nil)
	session.On("ScrollSize", mock.Anything).Return(int64(800), int64(600), nil)
	session.On("Resize", mock.Anything, int64(800), int64(600)).Return(nil)
	session.On("Screenshot", mock.Anything, capture.BodySelector).Return([]byte("png"), nil)
	session.On("Text", mock.Anything, capture.DocumentXPath).Return("", capture.ErrDriverTimeout)
	exec := capture.NewExecutor(nil, nil, zap.NewNop())

	out := exec.Capture(context.Background(), session, mustTarget(t, "https://slow.test"))

	assert.Equal(t, capture.KindDriverTimeout, out.Kind)
	assert.ErrorIs(t, out.Err, capture.ErrDriverTimeout)
	assert.False(t, out.OK())
	session.AssertExpectations(t)
}

func TestExecutorCaptureLimiterErrorSkipsNavigation(t *testing.T) {
	t.Parallel()

	session := capturetest.NewFakeSession(nil)
	limiter := &recordingLimiter{err: context.Canceled}
	exec := capture.NewExecutor(nil, limiter, zap.NewNop())

	out := exec.Capture(context.Background(), session, mustTarget(t, "https://a.test"))

	assert.Equal(t, capture.KindUnclassified, out.Kind)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Empty(t, session.Calls())
}

func TestCaptureIsRepeatableWithFreshSessions(t *testing.T) {
	t.Parallel()

	exec := capture.NewExecutor(nil, nil, zap.NewNop())
	target := mustTarget(t, "https://a.test")

	first := exec.Capture(context.Background(), capturetest.NewFakeSession(nil), target)
	second := exec.Capture(context.Background(), capturetest.NewFakeSession(nil), target)

	require.Equal(t, capture.KindSuccess, first.Kind)
	require.Equal(t, capture.KindSuccess, second.Kind)
	assert.Equal(t, first.Photo, second.Photo)
	assert.Equal(t, first.Markup, second.Markup)
	assert.Equal(t, first.Target, second.Target)
}
