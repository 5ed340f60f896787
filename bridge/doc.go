// Package bridge is the owning context for objects shared between Go and a
// foreign, garbage-collected runtime.
//
// A Bridge wraps one foreign runtime. Handles created through it keep the
// referenced foreign object pinned until the last handle on it closes:
//
//	b, _ := bridge.New(&bridge.Config{Foreign: heap})
//	h, _ := b.NewHandle(id)   // pins id
//	s, _ := h.Share()         // count 2, no second pin
//	h.Close()
//	s.Close()                 // unpins id
//
// Externals go the other way: a host resource handed to the foreign side
// whose destructor runs exactly once, after the last reference closes.
//
// # Exceptions
//
// Every operation runs inside a hoststate.Guard. A host exception pending
// when the operation starts is set aside and restored afterwards; an
// exception raised meanwhile (by a destructor, say) is logged and dropped
// so the caller sees its original state. Go errors from the bookkeeping
// are still returned to the Go caller.
//
// # Concurrency
//
// The foreign runtime is single-threaded. Each operation takes the
// runtime's busy flag and fails with a concurrency error, without
// blocking, if another caller holds it.
package bridge
