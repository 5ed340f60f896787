// Package hoststate models the host runtime's pending-exception state and
// provides Guard, the scoped save/restore used around bookkeeping.
//
// Bookkeeping runs from finalizers and from error-unwinding paths where an
// exception may already be in flight. Guard fetches that exception at
// entry and restores it at exit, reporting (never merging) anything the
// guarded code raised in between.
package hoststate
