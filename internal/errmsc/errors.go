// Package errmsc implements MSC's tagged error taxonomy. Callers classify
// errors with errors.As against *Error and switch on its Kind field; nothing
// in this module matches on error strings.
package errmsc

import "fmt"

// Kind is the closed set of error classes a caller can branch on.
type Kind int

const (
	// KindUnknown is never constructed directly; it signals a bug if seen.
	KindUnknown Kind = iota
	KindNotFound
	KindUnauthorized
	KindPreconditionFailed
	KindUnavailable
	KindInvalidArgument
	KindManifestCorrupt
	KindCacheError
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindUnauthorized:
		return "Unauthorized"
	case KindPreconditionFailed:
		return "PreconditionFailed"
	case KindUnavailable:
		return "Unavailable"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindManifestCorrupt:
		return "ManifestCorrupt"
	case KindCacheError:
		return "CacheError"
	case KindConflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}

// Error is the structured error type surfaced to MSC callers. It always
// carries the originating operation, profile, and key alongside the Kind.
type Error struct {
	Kind    Kind
	Op      string
	Profile string
	Key     string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("msc: %s: profile=%q key=%q: %s: %v", e.Op, e.Profile, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("msc: %s: profile=%q key=%q: %s", e.Op, e.Profile, e.Key, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a tagged *Error.
func New(kind Kind, op, profile, key string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Profile: profile, Key: key, Err: cause}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts err's Kind tag, walking its Unwrap chain, or KindUnknown
// if nothing in the chain is a tagged *Error.
func KindOf(err error) Kind {
	var e *Error
	if !asError(err, &e) {
		return KindUnknown
	}
	return e.Kind
}

// asError walks err's single-error Unwrap chain and stores the first *Error
// it finds in target; it does not follow multi-error Unwrap() []error.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
