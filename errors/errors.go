package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which bookkeeping step produced the error
type Phase string

const (
	PhaseAcquire   Phase = "acquire"   // pin table acquire
	PhaseRelease   Phase = "release"   // pin table release
	PhaseConstruct Phase = "construct" // handle construction
	PhaseReseat    Phase = "reseat"    // handle reseat
	PhaseExternal  Phase = "external"  // external resource refs
	PhaseLock      Phase = "lock"      // busy flag
	PhaseForeign   Phase = "foreign"   // foreign runtime primitives
	PhaseTeardown  Phase = "teardown"  // bridge shutdown
	PhaseLoad      Phase = "load"      // backend loading
	PhaseConfig    Phase = "config"    // configuration
	PhaseTrace     Phase = "trace"     // trace scripts
)

// Kind categorizes the error
type Kind string

const (
	KindAllocation        Kind = "allocation"
	KindUnbalancedRelease Kind = "unbalanced_release"
	KindTypeMismatch      Kind = "type_mismatch"
	KindConcurrency       Kind = "concurrency"
	KindForeignFault      Kind = "foreign_fault"
	KindClosed            Kind = "closed"
	KindNotInitialized    Kind = "not_initialized"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidData       Kind = "invalid_data"
	KindUnsupported       Kind = "unsupported"
)

// Sentinels for errors.Is matching by kind only.
var (
	ErrAllocation        = &Error{Kind: KindAllocation}
	ErrUnbalancedRelease = &Error{Kind: KindUnbalancedRelease}
	ErrTypeMismatch      = &Error{Kind: KindTypeMismatch}
	ErrConcurrency       = &Error{Kind: KindConcurrency}
	ErrForeignFault      = &Error{Kind: KindForeignFault}
	ErrClosed            = &Error{Kind: KindClosed}
	ErrNotInitialized    = &Error{Kind: KindNotInitialized}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrInvalidData       = &Error{Kind: KindInvalidData}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
)

// Error is the structured error type used throughout the library
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Want     string
	Got      string
	Detail   string
	Identity uint64
	HasID    bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.HasID {
		fmt.Fprintf(&b, " at 0x%x", e.Identity)
	}

	if e.Want != "" || e.Got != "" {
		b.WriteString(": ")
		if e.Want != "" && e.Got != "" {
			b.WriteString("want ")
			b.WriteString(e.Want)
			b.WriteString(", got ")
			b.WriteString(e.Got)
		} else if e.Want != "" {
			b.WriteString("want ")
			b.WriteString(e.Want)
		} else {
			b.WriteString("got ")
			b.WriteString(e.Got)
		}
	}

	if e.Detail != "" {
		if e.Want != "" || e.Got != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Identity sets the foreign identity involved
func (b *Builder) Identity(id uint64) *Builder {
	b.err.Identity = id
	b.err.HasID = true
	return b
}

// Want sets the expected foreign type name
func (b *Builder) Want(t string) *Builder {
	b.err.Want = t
	return b
}

// Got sets the actual foreign type name
func (b *Builder) Got(t string) *Builder {
	b.err.Got = t
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Allocation creates an allocation failure error
func Allocation(phase Phase, what string, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("%s is full (limit %d)", what, limit),
	}
}

// UnbalancedRelease creates an error for releasing an identity that holds no pin
func UnbalancedRelease(phase Phase, id uint64) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindUnbalancedRelease,
		Identity: id,
		HasID:    true,
		Detail:   "release of an object that is not preserved",
	}
}

// TypeMismatch creates a foreign type mismatch error
func TypeMismatch(phase Phase, id uint64, want, got string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Identity: id,
		HasID:    true,
		Want:     want,
		Got:      got,
	}
}

// Concurrency creates a busy-runtime error
func Concurrency(detail string) *Error {
	return &Error{
		Phase:  PhaseLock,
		Kind:   KindConcurrency,
		Detail: detail,
	}
}

// ForeignFault wraps an error signalled by a foreign runtime primitive
func ForeignFault(op string, id uint64, cause error) *Error {
	return &Error{
		Phase:    PhaseForeign,
		Kind:     KindForeignFault,
		Identity: id,
		HasID:    true,
		Detail:   op,
		Cause:    cause,
	}
}

// Closed creates an error for use after close
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a backend loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
