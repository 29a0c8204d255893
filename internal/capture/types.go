package capture

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Selectors used by the Executor when extracting the page.
const (
	BodySelector  = "body"
	DocumentXPath = "/html"
)

// Target is one URL to capture plus its authority, which keys the artifacts.
type Target struct {
	URL    string
	Domain string
}

// NewTarget wraps rawURL as-is and derives its domain (host[:port], user-info stripped).
func NewTarget(rawURL string) (Target, error) {
	domain, err := DomainOf(rawURL)
	if err != nil {
		return Target{}, err
	}
	return Target{URL: rawURL, Domain: domain}, nil
}

// TargetFor wraps rawURL unchanged. When no authority can be parsed the raw
// string doubles as the domain key, and the capture fails on its own at
// navigation time instead of rejecting the batch.
func TargetFor(rawURL string) Target {
	domain, err := DomainOf(rawURL)
	if err != nil {
		domain = rawURL
	}
	return Target{URL: rawURL, Domain: domain}
}

// DomainOf returns the authority component of rawURL without user info.
func DomainOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return u.Host, nil
}

// Kind tags the variant of an Outcome.
type Kind string

// Outcome kinds produced by the Executor.
const (
	KindSuccess         Kind = "success"
	KindConnectionError Kind = "connection_error"
	KindDriverTimeout   Kind = "driver_timeout"
	KindUnclassified    Kind = "unclassified"
)

// Kinds lists every outcome kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindSuccess, KindConnectionError, KindDriverTimeout, KindUnclassified}
}

// Outcome is the tagged result of one capture attempt. Photo and Markup are
// only meaningful for KindSuccess; Err always retains the underlying cause
// for the failure kinds.
type Outcome struct {
	Target   Target
	Kind     Kind
	Photo    []byte
	Markup   string
	Detail   string
	Err      error
	Duration time.Duration
}

// OK reports whether the capture succeeded.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// ArtifactKind distinguishes the two files written per domain.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactPhoto  ArtifactKind = "photo"
	ArtifactMarkup ArtifactKind = "markup"
)

// Artifact records one persisted file.
type Artifact struct {
	Domain string
	Kind   ArtifactKind
	URI    string
	SHA256 string
	Bytes  int
}

// Result is what a worker reports for each processed target.
type Result struct {
	Outcome   Outcome
	Artifacts []Artifact
	WriteErr  error
}
