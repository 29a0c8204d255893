package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

var (
	// ErrConnection marks transport-level failures reaching a target.
	ErrConnection = errors.New("connection error")
	// ErrDriverTimeout marks the automation backend running out of its wait budget.
	ErrDriverTimeout = errors.New("driver timeout")
	// ErrQueueClosed is returned by a Queue once it is closed and drained.
	ErrQueueClosed = errors.New("queue closed")
)

// SetupError is a fatal startup failure: unknown driver, browser launch, or
// an output directory that cannot be created.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by the capture steps onto an outcome kind
// and a human-readable detail.
func Classify(err error) (Kind, string) {
	switch {
	case err == nil:
		return KindSuccess, ""
	case errors.Is(err, ErrConnection):
		return KindConnectionError, err.Error()
	case errors.Is(err, ErrDriverTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindDriverTimeout, SanitizeDetail(err.Error())
	case isTransportError(err):
		return KindConnectionError, err.Error()
	default:
		return KindUnclassified, err.Error()
	}
}

var detailReplacer = strings.NewReplacer("%20", " ", "%3A", ":", "%3a", ":")

// SanitizeDetail decodes percent-escapes in backend messages for readability.
func SanitizeDetail(detail string) string {
	if decoded, err := url.PathUnescape(detail); err == nil {
		return decoded
	}
	return detailReplacer.Replace(detail)
}

// transportMarkers are substrings browsers use for network-layer failures.
var transportMarkers = []string{
	"net::ERR_",
	"no such host",
	"connection refused",
	"connection reset",
	"network is unreachable",
}

func isTransportError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := err.Error()
	for _, marker := range transportMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
