// Package input turns command-line input into an ordered list of capture targets.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/webcapture/internal/capture"
)

// Mode selects how a Request payload is interpreted.
type Mode string

// Supported modes.
const (
	ModeExplicit Mode = "explicit"
	ModeFile     Mode = "file"
)

// ErrEmptyInput is returned when a request yields no targets to resolve.
var ErrEmptyInput = errors.New("no targets supplied")

// Error reports unreadable or malformed input. Line is zero when the
// failure concerns the whole source.
type Error struct {
	Path string
	Line int
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path == "":
		return fmt.Sprintf("input: %v", e.Err)
	case e.Line > 0:
		return fmt.Sprintf("input %s:%d: %v", e.Path, e.Line, e.Err)
	default:
		return fmt.Sprintf("input %s: %v", e.Path, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Request is the raw input handed over by the CLI.
type Request struct {
	Mode Mode
	URLs []string
	Path string
}

// Resolver builds targets from explicit URLs or a domain,port file.
type Resolver struct {
	fs afero.Fs
}

// NewResolver returns a Resolver reading from fs; nil means the OS filesystem.
func NewResolver(fs afero.Fs) *Resolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Resolver{fs: fs}
}

// Resolve dispatches on the request mode.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]capture.Target, error) {
	switch req.Mode {
	case ModeExplicit:
		return r.Explicit(req.URLs)
	case ModeFile:
		return r.File(ctx, req.Path)
	default:
		return nil, &Error{Err: fmt.Errorf("unknown input mode %q", req.Mode)}
	}
}

// Explicit turns every URL into exactly one target, in order and unchanged.
// No scheme is inferred and nothing is dropped: a URL that cannot be loaded
// fails as its own capture.
func (r *Resolver) Explicit(urls []string) ([]capture.Target, error) {
	if len(urls) == 0 {
		return nil, &Error{Err: ErrEmptyInput}
	}
	targets := make([]capture.Target, 0, len(urls))
	for _, raw := range urls {
		targets = append(targets, capture.TargetFor(raw))
	}
	return targets, nil
}

// File reads a line-oriented domain,port file and emits two targets per
// line, https first. Blank lines and lines starting with '#' are skipped.
func (r *Resolver) File(ctx context.Context, path string) ([]capture.Target, error) {
	if path == "" {
		return nil, &Error{Err: ErrEmptyInput}
	}
	f, err := r.fs.Open(path)
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("open: %w", err)}
	}
	defer f.Close()

	var targets []capture.Target
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", path, err)
		}
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domain, port, err := splitHostPort(line)
		if err != nil {
			return nil, &Error{Path: path, Line: lineNo, Err: err}
		}
		for _, raw := range ExpandHostPort(domain, port) {
			target, err := capture.NewTarget(raw)
			if err != nil {
				return nil, &Error{Path: path, Line: lineNo, Err: err}
			}
			targets = append(targets, target)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("read: %w", err)}
	}
	if len(targets) == 0 {
		return nil, &Error{Path: path, Err: ErrEmptyInput}
	}
	return targets, nil
}

// ExpandHostPort returns the https and http URLs for one domain,port pair.
// The default port is dropped from the scheme that does NOT own it, so
// port 443 yields https://domain and http://domain:443 while port 80 yields
// https://domain:80 and http://domain. Downstream artifact names depend on
// this exact form.
func ExpandHostPort(domain, port string) []string {
	var secure, plain string
	if port == "443" {
		secure = "https://" + domain
	} else {
		secure = "https://" + domain + ":" + port
	}
	if port == "80" {
		plain = "http://" + domain
	} else {
		plain = "http://" + domain + ":" + port
	}
	return []string{secure, plain}
}

func splitHostPort(line string) (string, string, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return "", "", fmt.Errorf("malformed line %q: want domain,port", line)
	}
	domain := strings.TrimSpace(fields[0])
	port := strings.TrimSpace(fields[1])
	if domain == "" || port == "" {
		return "", "", fmt.Errorf("malformed line %q: empty domain or port", line)
	}
	return domain, port, nil
}
