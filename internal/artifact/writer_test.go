package artifact

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/webcapture/internal/capture"
	"github.com/JakeFAU/webcapture/internal/hash/sha256"
	"github.com/JakeFAU/webcapture/internal/storage/local"
	"github.com/JakeFAU/webcapture/internal/storage/memory"
)

func success(domain string) capture.Outcome {
	return capture.Outcome{
		Target: capture.Target{URL: "https://" + domain, Domain: domain},
		Kind:   capture.KindSuccess,
		Photo:  []byte("\x89PNG"),
		Markup: "Hello from " + domain,
	}
}

func TestPersistWritesBothFilesForSuccess(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	store, err := local.NewWithFs(fs, local.Config{BaseDir: "/tmp"})
	require.NoError(t, err)
	w := NewWriter(zap.NewNop(), sha256.New(), store)

	artifacts, err := w.Persist(context.Background(), success("example.org:8443"))
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, capture.ArtifactPhoto, artifacts[0].Kind)
	assert.Equal(t, "file:///tmp/example.org:8443.png", artifacts[0].URI)
	assert.Equal(t, capture.ArtifactMarkup, artifacts[1].Kind)
	assert.Len(t, artifacts[1].SHA256, 64)

	photo, err := afero.ReadFile(fs, "/tmp/example.org:8443.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), photo)
	markup, err := afero.ReadFile(fs, "/tmp/example.org:8443.xml")
	require.NoError(t, err)
	assert.Equal(t, "Hello from example.org:8443", string(markup))
}

func TestPersistNeverWritesForFailures(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	w := NewWriter(nil, nil, store)

	for _, kind := range []capture.Kind{capture.KindConnectionError, capture.KindDriverTimeout, capture.KindUnclassified} {
		outcome := success("a.test")
		outcome.Kind = kind
		artifacts, err := w.Persist(context.Background(), outcome)
		require.NoError(t, err, kind)
		assert.Empty(t, artifacts, kind)
	}
	assert.Empty(t, store.Paths())
}

func TestPersistMirrorsToEveryStore(t *testing.T) {
	t.Parallel()

	primary := memory.NewBlobStore()
	mirror := memory.NewBlobStore()
	w := NewWriter(zap.NewNop(), sha256.New(), primary, mirror)

	artifacts, err := w.Persist(context.Background(), success("a.test"))
	require.NoError(t, err)
	assert.Len(t, artifacts, 4)
	assert.Equal(t, []string{"a.test.png", "a.test.xml"}, primary.Paths())
	assert.Equal(t, []string{"a.test.png", "a.test.xml"}, mirror.Paths())
	_, contentType, _ := mirror.Get("a.test.png")
	assert.Equal(t, PhotoContentType, contentType)
}

func TestPersistSurfacesWriteErrors(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	diskFull := errors.New("disk full")
	store.FailPath("a.test.xml", diskFull)
	w := NewWriter(zap.NewNop(), nil, store)

	artifacts, err := w.Persist(context.Background(), success("a.test"))
	require.Error(t, err)
	assert.ErrorIs(t, err, diskFull)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "a.test", writeErr.Domain)
	assert.Equal(t, capture.ArtifactMarkup, writeErr.Kind)
	require.Len(t, artifacts, 1)
	assert.Equal(t, capture.ArtifactPhoto, artifacts[0].Kind)
}

type brokenHasher struct{}

func (brokenHasher) Hash([]byte) (string, error) {
	return "", errors.New("hasher offline")
}

func TestPersistHashFailureIsWriteError(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	w := NewWriter(zap.NewNop(), brokenHasher{}, store)

	artifacts, err := w.Persist(context.Background(), success("a.test"))
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Contains(t, err.Error(), "hasher offline")
	assert.Empty(t, artifacts)
	assert.Empty(t, store.Paths())
}

func TestPersistRejectsTraversalDomains(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	w := NewWriter(zap.NewNop(), nil, store)

	for _, domain := range []string{"", "..", "../etc", "a/b", `a\b`, ".hidden"} {
		_, err := w.Persist(context.Background(), success(domain))
		assert.ErrorIs(t, err, ErrInvalidDomain, domain)
	}
	assert.Empty(t, store.Paths())
}

func TestWriteErrorMessage(t *testing.T) {
	t.Parallel()

	err := &WriteError{Domain: "a.test", Kind: capture.ArtifactPhoto, Err: errors.New("boom")}
	assert.Equal(t, "write photo artifact for a.test: boom", err.Error())
	err = &WriteError{Domain: "..", Err: errors.New("bad")}
	assert.Equal(t, "write artifacts for ..: bad", err.Error())
}

// slowStore records every write and stalls photo writes so concurrent
// Persist calls would interleave without per-domain serialization.
type slowStore struct {
	mu     sync.Mutex
	writes []string
}

func (s *slowStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(path, PhotoExt) {
		time.Sleep(20 * time.Millisecond)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, string(body))
	return "mem://" + path, nil
}

func TestPersistSameDomainKeepsPairsTogether(t *testing.T) {
	t.Parallel()

	store := &slowStore{}
	w := NewWriter(nil, nil, store)

	first := success("example.org:8443")
	first.Photo, first.Markup = []byte("https"), "https"
	second := success("example.org:8443")
	second.Photo, second.Markup = []byte("http"), "http"

	var wg sync.WaitGroup
	for _, outcome := range []capture.Outcome{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Persist(context.Background(), outcome)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, store.writes, 4)
	assert.Equal(t, store.writes[0], store.writes[1], "photo and markup of one capture must land together")
	assert.Equal(t, store.writes[2], store.writes[3], "photo and markup of one capture must land together")
	assert.NotEqual(t, store.writes[0], store.writes[2])
}
