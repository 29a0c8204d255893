package input

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webcapture/internal/capture"
)

func memResolver(t *testing.T, files map[string]string) *Resolver {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}
	return NewResolver(fs)
}

func urlsOf(targets []capture.Target) []string {
	out := make([]string, 0, len(targets))
	for _, target := range targets {
		out = append(out, target.URL)
	}
	return out
}

func TestFileEmitsTwoTargetsPerLine(t *testing.T) {
	t.Parallel()

	r := memResolver(t, map[string]string{"/hosts.txt": "example.com,443\nexample.org,8443\n"})

	targets, err := r.Resolve(context.Background(), Request{Mode: ModeFile, Path: "/hosts.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com",
		"http://example.com:443",
		"https://example.org:8443",
		"http://example.org:8443",
	}, urlsOf(targets))
	assert.Equal(t, []string{"example.com", "example.com:443", "example.org:8443", "example.org:8443"}, []string{
		targets[0].Domain, targets[1].Domain, targets[2].Domain, targets[3].Domain,
	})
}

func TestExpandHostPortKeepsPortAsymmetry(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"443":  {"https://a.test", "http://a.test:443"},
		"80":   {"https://a.test:80", "http://a.test"},
		"8080": {"https://a.test:8080", "http://a.test:8080"},
	}
	for port, want := range cases {
		assert.Equal(t, want, ExpandHostPort("a.test", port), port)
	}
}

func TestFileSkipsBlankAndCommentLinesAndTrimsFields(t *testing.T) {
	t.Parallel()

	r := memResolver(t, map[string]string{"/hosts.txt": "# inventory\n\n  a.test , 80 \r\n"})

	targets, err := r.File(context.Background(), "/hosts.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test:80", "http://a.test"}, urlsOf(targets))
}

func TestFileMalformedLineNamesPathAndLine(t *testing.T) {
	t.Parallel()

	r := memResolver(t, map[string]string{"/hosts.txt": "a.test,443\njust-a-host\n"})

	_, err := r.File(context.Background(), "/hosts.txt")
	require.Error(t, err)
	var inputErr *Error
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "/hosts.txt", inputErr.Path)
	assert.Equal(t, 2, inputErr.Line)
	assert.Contains(t, err.Error(), "/hosts.txt:2")
}

func TestFileEmptyFieldsAreMalformed(t *testing.T) {
	t.Parallel()

	r := memResolver(t, map[string]string{"/hosts.txt": ",443\n"})

	_, err := r.File(context.Background(), "/hosts.txt")
	var inputErr *Error
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, 1, inputErr.Line)
}

func TestFileMissingIsInputError(t *testing.T) {
	t.Parallel()

	r := memResolver(t, nil)

	_, err := r.File(context.Background(), "/missing.txt")
	var inputErr *Error
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "/missing.txt", inputErr.Path)
	assert.Zero(t, inputErr.Line)
}

func TestFileWithOnlyCommentsIsEmpty(t *testing.T) {
	t.Parallel()

	r := memResolver(t, map[string]string{"/hosts.txt": "# nothing\n"})

	_, err := r.File(context.Background(), "/hosts.txt")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestExplicitPassesURLsThroughInOrder(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil)

	targets, err := r.Resolve(context.Background(), Request{
		Mode: ModeExplicit,
		URLs: []string{"https://a.test", "http://b.test:8080/path?q=1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []capture.Target{
		{URL: "https://a.test", Domain: "a.test"},
		{URL: "http://b.test:8080/path?q=1", Domain: "b.test:8080"},
	}, targets)
}

func TestExplicitKeepsEveryEntryAsItsOwnTarget(t *testing.T) {
	t.Parallel()

	targets, err := NewResolver(nil).Explicit([]string{"https://a.test", "example.com", ""})
	require.NoError(t, err)
	assert.Equal(t, []capture.Target{
		{URL: "https://a.test", Domain: "a.test"},
		{URL: "example.com", Domain: "example.com"},
		{URL: "", Domain: ""},
	}, targets)
}

func TestExplicitEmpty(t *testing.T) {
	t.Parallel()

	_, err := NewResolver(nil).Explicit(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestResolveUnknownMode(t *testing.T) {
	t.Parallel()

	_, err := NewResolver(nil).Resolve(context.Background(), Request{Mode: "carrier-pigeon"})
	var inputErr *Error
	require.ErrorAs(t, err, &inputErr)
}

func TestFileHonorsCancellation(t *testing.T) {
	t.Parallel()

	r := memResolver(t, map[string]string{"/hosts.txt": "a.test,443\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.File(ctx, "/hosts.txt")
	assert.ErrorIs(t, err, context.Canceled)
}
