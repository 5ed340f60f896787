package hoststate

import (
	"sync"

	"github.com/go-stack/stack"

	"github.com/wippyai/pinbridge"
)

// ThreadState is an in-process pending-exception slot, the Go-side stand-in
// for a host interpreter's per-thread error indicator.
type ThreadState struct {
	current *pinbridge.Exception
	mu      sync.Mutex
}

var _ pinbridge.HostState = (*ThreadState)(nil)

// New creates an empty state.
func New() *ThreadState {
	return &ThreadState{}
}

// Raise sets a new pending exception, replacing any current one.
// The traceback is captured at the caller.
func (s *ThreadState) Raise(typ string, err error) *pinbridge.Exception {
	exc := &pinbridge.Exception{
		Type:  typ,
		Value: err,
		Trace: stack.Trace().TrimBelow(stack.Caller(1)).TrimRuntime(),
	}
	s.Restore(exc)
	return exc
}

// Pending reports whether an exception is set.
func (s *ThreadState) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Current returns the pending exception without clearing it.
func (s *ThreadState) Current() *pinbridge.Exception {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Fetch returns the pending exception and clears it.
func (s *ThreadState) Fetch() *pinbridge.Exception {
	s.mu.Lock()
	defer s.mu.Unlock()
	exc := s.current
	s.current = nil
	return exc
}

// Restore sets exc as the pending exception; nil clears.
func (s *ThreadState) Restore(exc *pinbridge.Exception) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = exc
}

// Clear drops any pending exception.
func (s *ThreadState) Clear() {
	s.Restore(nil)
}
