// Package embedded tracks the status of the embedded foreign runtime.
//
// The foreign runtime is not reentrant. Code that touches its heap sets the
// busy flag first and clears it when done; a second entry while the flag is
// set fails immediately instead of waiting.
package embedded

import (
	"sync/atomic"

	"github.com/wippyai/pinbridge/errors"
)

const (
	flagInitialized uint32 = 1 << iota
	flagBusy
)

// State holds the status bits of one foreign runtime.
type State struct {
	bits atomic.Uint32
}

// Initialize marks the runtime as initialized.
func (s *State) Initialize() {
	s.bits.Or(flagInitialized)
}

// Initialized reports whether Initialize was called and Shutdown was not.
func (s *State) Initialized() bool {
	return s.bits.Load()&flagInitialized != 0
}

// Shutdown clears all status bits.
func (s *State) Shutdown() {
	s.bits.Store(0)
}

// Busy reports whether some caller currently holds the runtime.
func (s *State) Busy() bool {
	return s.bits.Load()&flagBusy != 0
}

// Enter sets the busy flag. It never blocks: if the flag is already set the
// call fails with a concurrency error.
func (s *State) Enter() error {
	for {
		old := s.bits.Load()
		if old&flagInitialized == 0 {
			return errors.NotInitialized(errors.PhaseLock, "foreign runtime")
		}
		if old&flagBusy != 0 {
			return errors.Concurrency("foreign runtime is busy")
		}
		if s.bits.CompareAndSwap(old, old|flagBusy) {
			return nil
		}
	}
}

// Leave clears the busy flag.
func (s *State) Leave() {
	s.bits.And(^flagBusy)
}

// Do runs fn with the busy flag held.
func (s *State) Do(fn func() error) error {
	if err := s.Enter(); err != nil {
		return err
	}
	defer s.Leave()
	return fn()
}
