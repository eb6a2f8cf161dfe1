// Package errkind implements the error taxonomy of spec §7 as a concrete Go
// error type: one Error struct, with Error()/Unwrap(), whose Kind field
// names the taxonomy entry, rather than a separate struct per entry.
package errkind

import (
	"fmt"
	"time"
)

// Kind names one entry of the taxonomy in spec §7. It is carried on every
// error here so callers that only need the discriminant (not a type
// switch) can still branch on it, e.g. when building an OperationError
// event.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindIO                Kind = "io"
	KindParsing           Kind = "parsing"
	KindRegex             Kind = "regex"
	KindChannel           Kind = "channel"
	KindUnsupported       Kind = "unsupported"
	KindProtocol          Kind = "protocol"
	KindCancelled         Kind = "cancelled"
	KindSessionUnavailable Kind = "session_unavailable"
	KindNoAssignedContent Kind = "no_assigned_content"
	KindInvalidArgs       Kind = "invalid_args"
	KindDestinationMissing Kind = "destination_missing"
	KindSearchMapAbsent   Kind = "search_map_absent"
	KindStaleMap          Kind = "stale_map"
)

// Error is the single concrete error type for every taxonomy entry. A
// dedicated struct per kind (as the teacher does for IndexingError,
// ParseError, FileError, ...) would only duplicate this shape fourteen
// times over; one struct with a Kind field serves every call site the
// same way and keeps Is/As matching on Kind trivial.
type Error struct {
	Kind      Kind
	Op        string // operation or component that raised it, e.g. "grab", "search.compile"
	Underlying error
	Timestamp time.Time
}

// New creates an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Underlying: err, Timestamp: time.Now()}
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

// Unwrap supports errors.Is/errors.As against the underlying cause.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is lets errors.Is(err, errkind.New(KindStaleMap, "", nil)) match on Kind
// alone, which is how orchestrator code classifies a failure without
// caring about Op or Underlying.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Convenience constructors for the call sites that only need a kind, an
// operation label, and a cause.
func IO(op string, err error) *Error                { return New(KindIO, op, err) }
func Parsing(op string, err error) *Error           { return New(KindParsing, op, err) }
func Regex(op string, err error) *Error             { return New(KindRegex, op, err) }
func Channel(op string, err error) *Error           { return New(KindChannel, op, err) }
func Unsupported(op string, err error) *Error       { return New(KindUnsupported, op, err) }
func Protocol(op string, err error) *Error          { return New(KindProtocol, op, err) }
func Cancelled(op string) *Error                    { return New(KindCancelled, op, nil) }
func SessionUnavailable(op string) *Error           { return New(KindSessionUnavailable, op, nil) }
func NoAssignedContent(op string) *Error            { return New(KindNoAssignedContent, op, nil) }
func InvalidArgs(op string, err error) *Error       { return New(KindInvalidArgs, op, err) }
func DestinationMissing(op string, err error) *Error { return New(KindDestinationMissing, op, err) }
func SearchMapAbsent(op string) *Error              { return New(KindSearchMapAbsent, op, nil) }
func StaleMap(op string) *Error                     { return New(KindStaleMap, op, nil) }
func Configuration(op string, err error) *Error     { return New(KindConfiguration, op, err) }

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Underlying
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
