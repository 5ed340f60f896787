package pinbridge

import (
	"fmt"
	"strings"

	"github.com/go-stack/stack"
)

// Identity uniquely identifies a foreign-heap object while it is pinned.
// For a native foreign runtime this is the object's address.
type Identity uint64

// String formats the identity as a hex token.
func (id Identity) String() string {
	return fmt.Sprintf("0x%x", uint64(id))
}

// Foreign is the foreign runtime as seen by the bridge.
// Pin and Unpin must not fail in normal operation; an error from either
// is treated as a fault of the foreign runtime and is never retried.
type Foreign interface {
	// Pin prevents the foreign collector from reclaiming the object.
	Pin(id Identity) error

	// Unpin allows the foreign collector to reclaim the object.
	Unpin(id Identity) error

	// TypeOf returns the dynamic type of the object.
	TypeOf(id Identity) (TypeTag, error)

	// Nil returns the foreign runtime's immortal "no object" sentinel.
	Nil() Identity
}

// Exception is a host-side pending error: type, value and traceback.
type Exception struct {
	Value error
	Type  string
	Trace stack.CallStack
}

// Error implements the error interface
func (e *Exception) Error() string {
	var b strings.Builder
	b.WriteString(e.Type)
	if e.Value != nil {
		b.WriteString(": ")
		b.WriteString(e.Value.Error())
	}
	return b.String()
}

// Unwrap returns the exception value
func (e *Exception) Unwrap() error {
	return e.Value
}

// HostState exposes the host runtime's pending-exception slot.
// Implementations must keep working while an exception is pending.
type HostState interface {
	// Pending reports whether an exception is currently set.
	Pending() bool

	// Fetch returns the pending exception and clears it.
	// Returns nil if nothing is pending.
	Fetch() *Exception

	// Restore sets exc as the pending exception. Restore(nil) clears it.
	Restore(exc *Exception)
}
