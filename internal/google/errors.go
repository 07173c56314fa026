package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Kind classifies an operation failure. Handlers and callers dispatch on it;
// kinds are never collapsed into a generic error.
type Kind int

const (
	// KindNotConnected — no credential exists for the requested scope.
	// Recoverable by directing the user through consent.
	KindNotConnected Kind = iota
	// KindCredentialInvalid — refresh failed; the grant was revoked or
	// expired. The user must reconnect.
	KindCredentialInvalid
	// KindTransient — network or 5xx-class provider failure; the whole
	// operation can be retried unchanged.
	KindTransient
	// KindConflict — duplicate-name uniqueness violation. Absorbed
	// internally by lookup and only escalated when the lookup itself fails.
	KindConflict
	// KindRejected — provider-side validation failure (bad parameters,
	// quota, permissions). Not retried; the provider payload is preserved.
	KindRejected
	// KindPropagationPending — the resource was created but a dependent
	// artifact is not observable yet; the caller should schedule a
	// deferred check, not treat this as failure.
	KindPropagationPending
)

func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "not_connected"
	case KindCredentialInvalid:
		return "credential_invalid"
	case KindTransient:
		return "remote_transient"
	case KindConflict:
		return "remote_conflict"
	case KindRejected:
		return "remote_rejected"
	case KindPropagationPending:
		return "propagation_pending"
	default:
		return "unknown"
	}
}

// Error is a kinded operation failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation name.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errf is E with a formatted message.
func Errf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from an error chain. Unclassified errors report
// as transient so callers default to "safe to retry".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// classifyAPI maps a google.golang.org/api call failure onto the taxonomy.
func classifyAPI(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusConflict:
			return E(KindConflict, op, err)
		case gerr.Code == http.StatusUnauthorized:
			// The transport wrapper refreshes before every call, so a 401
			// here means the grant itself is dead.
			return E(KindCredentialInvalid, op, err)
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500:
			return E(KindTransient, op, err)
		default:
			return E(KindRejected, op, err)
		}
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return E(KindCredentialInvalid, op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return E(KindTransient, op, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return E(KindTransient, op, err)
	}
	return E(KindTransient, op, err)
}
