// Package artifact persists the photo and markup of successful captures.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/webcapture/internal/capture"
)

// File extensions and content types for the two artifacts of a domain.
const (
	PhotoExt          = ".png"
	MarkupExt         = ".xml"
	PhotoContentType  = "image/png"
	MarkupContentType = "text/plain; charset=utf-8"
)

// ErrInvalidDomain is returned for domain keys that cannot name a file safely.
var ErrInvalidDomain = errors.New("invalid domain key")

// WriteError reports a failed artifact write. Kind is empty when the domain
// itself was rejected.
type WriteError struct {
	Domain string
	Kind   capture.ArtifactKind
	Err    error
}

func (e *WriteError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("write artifacts for %s: %v", e.Domain, e.Err)
	}
	return fmt.Sprintf("write %s artifact for %s: %v", e.Kind, e.Domain, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer stores {domain}.png and {domain}.xml in every configured store.
// Persist calls for the same domain are serialized so the two files always
// come from one capture.
type Writer struct {
	stores []capture.BlobStore
	hasher capture.Hasher
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWriter builds a Writer. hasher may be nil, in which case digests are
// left empty.
func NewWriter(logger *zap.Logger, hasher capture.Hasher, stores ...capture.BlobStore) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		stores: stores,
		hasher: hasher,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (w *Writer) lock(domain string) func() {
	w.mu.Lock()
	l, ok := w.locks[domain]
	if !ok {
		l = &sync.Mutex{}
		w.locks[domain] = l
	}
	w.mu.Unlock()
	l.Lock()
	return l.Unlock
}

type file struct {
	kind        capture.ArtifactKind
	name        string
	contentType string
	data        []byte
}

// Persist writes both artifacts of a successful outcome, overwriting any
// previous files for the domain. Other outcomes write nothing. Failures
// are joined into one error of *WriteError values; artifacts that did land
// are still returned.
func (w *Writer) Persist(ctx context.Context, outcome capture.Outcome) ([]capture.Artifact, error) {
	if !outcome.OK() {
		return nil, nil
	}
	domain := outcome.Target.Domain
	if err := ValidateDomain(domain); err != nil {
		return nil, &WriteError{Domain: domain, Err: err}
	}

	defer w.lock(domain)()

	files := []file{
		{kind: capture.ArtifactPhoto, name: domain + PhotoExt, contentType: PhotoContentType, data: outcome.Photo},
		{kind: capture.ArtifactMarkup, name: domain + MarkupExt, contentType: MarkupContentType, data: []byte(outcome.Markup)},
	}

	var (
		artifacts []capture.Artifact
		errs      []error
	)
	for _, f := range files {
		digest, err := w.digest(f.data)
		if err != nil {
			errs = append(errs, &WriteError{Domain: domain, Kind: f.kind, Err: err})
			continue
		}
		for _, store := range w.stores {
			uri, err := store.PutObject(ctx, f.name, f.contentType, bytes.NewReader(f.data))
			if err != nil {
				errs = append(errs, &WriteError{Domain: domain, Kind: f.kind, Err: err})
				continue
			}
			artifacts = append(artifacts, capture.Artifact{
				Domain: domain,
				Kind:   f.kind,
				URI:    uri,
				SHA256: digest,
				Bytes:  len(f.data),
			})
			w.logger.Debug("artifact written",
				zap.String("domain", domain),
				zap.String("kind", string(f.kind)),
				zap.String("uri", uri),
			)
		}
	}
	return artifacts, errors.Join(errs...)
}

func (w *Writer) digest(data []byte) (string, error) {
	if w.hasher == nil {
		return "", nil
	}
	digest, err := w.hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return digest, nil
}

// ValidateDomain rejects keys that are empty or could leave the output directory.
func ValidateDomain(domain string) error {
	switch {
	case strings.TrimSpace(domain) == "":
		return fmt.Errorf("%w: empty", ErrInvalidDomain)
	case strings.ContainsAny(domain, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidDomain, domain)
	case strings.Contains(domain, ".."), strings.HasPrefix(domain, "."):
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	case strings.ContainsRune(domain, 0):
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidDomain, domain)
	}
	return nil
}
