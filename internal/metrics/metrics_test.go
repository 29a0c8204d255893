package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webcapture/internal/capture"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"authority", "example.com", "example.com"},
		{"authority with port", "example.com:8443", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestRecorderCountsOutcomesAndArtifacts(t *testing.T) {
	t.Parallel()

	r, err := New()
	require.NoError(t, err)

	ok := capture.Outcome{Target: capture.Target{Domain: "A.test:443"}, Kind: capture.KindSuccess, Duration: time.Second}
	r.ObserveOutcome(ok)
	r.ObserveOutcome(ok)
	r.ObserveOutcome(capture.Outcome{Target: capture.Target{Domain: "b.test"}, Kind: capture.KindDriverTimeout})
	r.ObserveArtifacts([]capture.Artifact{
		{Kind: capture.ArtifactPhoto, Bytes: 100},
		{Kind: capture.ArtifactMarkup, Bytes: 20},
	})
	r.ObserveWriteError()
	r.ObservePolitenessDelay("a.test", 200*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(r.outcomes.WithLabelValues("a.test", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.outcomes.WithLabelValues("b.test", "driver_timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.artifacts.WithLabelValues("photo")), 0)
	assert.InDelta(t, 120, testutil.ToFloat64(r.artifactBytes.WithLabelValues("photo"))+testutil.ToFloat64(r.artifactBytes.WithLabelValues("markup")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.writeErrors), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(r.politenessDelay))
}

func TestRecorderRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	r, err := New()
	require.NoError(t, err)
	_, err = NewWithRegistry(r.Registry())
	assert.Error(t, err)
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	r, err := New()
	require.NoError(t, err)
	r.ObserveOutcome(capture.Outcome{Target: capture.Target{Domain: "a.test"}, Kind: capture.KindSuccess})

	path := filepath.Join(t.TempDir(), "webcapture.prom")
	require.NoError(t, r.WriteTextfile(path))
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), `webcapture_outcomes_total{outcome="success",site="a.test"} 1`)
	assert.Contains(t, string(body), `webcapture_capture_duration_seconds_count{outcome="unclassified"} 0`)
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "a.test:8443", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
