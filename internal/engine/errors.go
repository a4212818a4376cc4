package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation decisions. The handling rules:
// Transport is retried locally with backoff, Quota retires the affected
// credential, Auth disables it, Protocol/Content are recorded per-entity,
// Conflict is returned to the caller for retry, Fatal aborts the run.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig       // fatal pre-run misconfiguration
	KindAuth         // credential rejected by the provider
	KindQuota        // credential or global limit hit
	KindTransport    // timeout, network failure, HTTP 5xx
	KindProtocol     // HTTP 4xx, unexpected response shape
	KindContent      // parse failed, no brand match
	KindPolicy       // rule-engine reject
	KindConflict     // optimistic concurrency mismatch
	KindFatal        // invariant violated
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindContent:
		return "content"
	case KindPolicy:
		return "policy"
	case KindConflict:
		return "conflict"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error carries a Kind through wrapping so callers can branch on taxonomy
// without string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation label.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is E with inline formatting.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf walks the wrap chain and returns the outermost classified kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the error should be retried with backoff at
// the call site. Only Transport qualifies; everything else either halts the
// unit of work or the run.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransport
}

// KindFromStatus maps an HTTP response status to the taxonomy. 429 is
// surfaced as Quota so the caller can retire the credential; other 4xx are
// terminal Protocol errors; 5xx are retryable Transport errors.
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindQuota
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 500:
		return KindTransport
	case status >= 400:
		return KindProtocol
	default:
		return KindUnknown
	}
}
