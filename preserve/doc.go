// Package preserve implements the pin table: the side table that records,
// for every foreign object exposed to Go, how many Go holders reference it.
//
// # Transitions
//
//	Acquire(id)  absent   -> pin(id), count = 1
//	Acquire(id)  present  -> count++
//	Release(id)  count > 1 -> count--
//	Release(id)  count = 1 -> remove entry, unpin(id)
//	Release(id)  absent   -> unbalanced release error, no change
//
// Pinning an identity that is already present is coalesced into a count
// increment, so pin and unpin are each called exactly once per physical pin.
//
// # Sentinel
//
// A table may be configured with an immortal sentinel identity (the foreign
// runtime's null object). The sentinel is counted like other entries but
// never pinned, never unpinned and never removed by Release. Releasing it
// more often than it was acquired is still an unbalanced release:
//
//	nilID := heap.Nil()
//	table := preserve.NewTable(&preserve.Config{Sentinel: &nilID})
//
// # Diagnostics
//
// Snapshot returns a lazy sequence over a copy of the table taken at call
// time, intended for leak hunting:
//
//	for id, count := range table.Snapshot() {
//	    log.Printf("%s held by %d", id, count)
//	}
//
// Observers receive every transition as an Event.
package preserve
