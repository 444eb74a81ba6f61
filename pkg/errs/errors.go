// Package errs declares the stable error-kind taxonomy shared by every
// tabdiff component. Every kind is carried by the single Error type's Kind
// field, so callers can match with errors.As (or Is) while still getting a
// formatted, contextual message.
package errs

import "fmt"

// Kind names one of the stable error kinds from the error-handling design.
type Kind string

const (
	KindWorkspaceMissing           Kind = "WorkspaceMissing"
	KindWorkspaceCorrupt           Kind = "WorkspaceCorrupt"
	KindNameExists                 Kind = "NameExists"
	KindNameNotFound                Kind = "NameNotFound"
	KindSourceNotFound              Kind = "SourceNotFound"
	KindSourceUnreadable            Kind = "SourceUnreadable"
	KindSchemaEmpty                 Kind = "SchemaEmpty"
	KindUnsupportedSourceForRollback Kind = "UnsupportedSourceForRollback"
	KindChainBroken                 Kind = "ChainBroken"
	KindBaselineMissingFullData     Kind = "BaselineMissingFullData"
	KindArchiveCorrupt              Kind = "ArchiveCorrupt"
	KindRollbackVerificationFailed  Kind = "RollbackVerificationFailed"
	KindCancelled                   Kind = "Cancelled"
	KindIOError                     Kind = "IOError"
)

// Error is the single concrete error type tabdiff returns at command
// boundaries. Context carries path/snapshot-name style key-value pairs for
// JSON-mode reporting (spec.md §7).
type Error struct {
	Kind    Kind
	Message string
	Context map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no context.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error around a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// With attaches context key-value pairs and returns the same error for
// chaining at the call site, e.g. errs.New(...).With("path", p).
func (e *Error) With(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string, 2)
	}
	e.Context[key] = value
	return e
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

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
