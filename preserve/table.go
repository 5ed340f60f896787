package preserve

import (
	"cmp"
	"iter"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/errors"
)

// Ref is a pinned record: the identity, the number of holders and the
// raw handle. The raw handle never leaves the table.
type Ref struct {
	handle any
	table  *Table
	id     pinbridge.Identity
	count  int
}

// Identity returns the identity the record pins.
func (r *Ref) Identity() pinbridge.Identity {
	return r.id
}

// Count returns the current number of holders.
func (r *Ref) Count() int {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	return r.count
}

// Table maps identities to pinned records. Acquire, Release and Drain are
// the only mutators and run one at a time, pin and unpin included, so an
// unpin never overlaps a pin of the same identity. Actions and observers
// must not call the mutators.
type Table struct {
	entries   map[pinbridge.Identity]*Ref
	log       *zap.Logger
	observers []Observer
	sentinel  pinbridge.Identity
	max       int
	mu        sync.Mutex
	opMu      sync.Mutex
	obsMu     sync.RWMutex
	immortal  bool
}

// NewTable creates an empty table.
func NewTable(cfg *Config) *Table {
	t := &Table{
		entries: make(map[pinbridge.Identity]*Ref),
		log:     Logger(),
	}
	if cfg != nil {
		if cfg.Logger != nil {
			t.log = cfg.Logger
		}
		if cfg.Sentinel != nil {
			t.sentinel = *cfg.Sentinel
			t.immortal = true
		}
		t.max = cfg.MaxEntries
	}
	return t
}

// IsSentinel reports whether id is the table's immortal identity.
func (t *Table) IsSentinel(id pinbridge.Identity) bool {
	return t.immortal && id == t.sentinel
}

// Acquire records one more holder of id. The first acquire of an identity
// stores handle and calls pin; later ones only bump the count.
// pin is never called for the sentinel.
func (t *Table) Acquire(id pinbridge.Identity, handle any, pin Action) (*Ref, error) {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	t.mu.Lock()
	if r, ok := t.entries[id]; ok {
		r.count++
		count := r.count
		t.mu.Unlock()

		t.notify(Event{Type: EventAcquired, Identity: id, Count: count})
		return r, nil
	}

	if t.max > 0 && len(t.entries) >= t.max {
		t.mu.Unlock()
		t.log.Warn("pin table full",
			zap.Stringer("identity", id),
			zap.Int("limit", t.max))
		return nil, errors.Allocation(errors.PhaseAcquire, "pin table", t.max)
	}

	r := &Ref{
		table:  t,
		id:     id,
		count:  1,
		handle: handle,
	}

	if pin != nil && !t.IsSentinel(id) {
		if err := pin(id, handle); err != nil {
			t.mu.Unlock()
			t.log.DPanic("foreign pin failed",
				zap.Stringer("identity", id),
				zap.Error(err))
			return nil, errors.ForeignFault("pin", uint64(id), err)
		}
	}

	t.entries[id] = r
	t.mu.Unlock()

	t.log.Debug("preserved", zap.Stringer("identity", id))
	t.notify(Event{Type: EventPinned, Identity: id, Count: 1})
	return r, nil
}

// Release drops one holder of id. The holder that brings the count to zero
// removes the entry and calls unpin, outside the table lock.
//
// Releasing an identity that is not in the table is a bookkeeping bug in
// the caller: it fails with an unbalanced release error and leaves the
// table untouched. The sentinel is decremented but never removed or
// unpinned; releasing it at zero is unbalanced too.
func (t *Table) Release(id pinbridge.Identity, unpin Action) error {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	t.mu.Lock()
	r, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		t.log.Error("release of an object that is not preserved",
			zap.Stringer("identity", id))
		return errors.UnbalancedRelease(errors.PhaseRelease, uint64(id))
	}

	if t.IsSentinel(id) {
		if r.count == 0 {
			t.mu.Unlock()
			t.log.Error("release of an object that is not preserved",
				zap.Stringer("identity", id),
				zap.Bool("sentinel", true))
			return errors.UnbalancedRelease(errors.PhaseRelease, uint64(id))
		}
		r.count--
		count := r.count
		t.mu.Unlock()

		t.notify(Event{Type: EventReleased, Identity: id, Count: count})
		return nil
	}

	if r.count > 1 {
		r.count--
		count := r.count
		t.mu.Unlock()

		t.notify(Event{Type: EventReleased, Identity: id, Count: count})
		return nil
	}

	delete(t.entries, id)
	r.count = 0
	handle := r.handle
	r.handle = nil
	t.mu.Unlock()

	var fault error
	if unpin != nil {
		if err := unpin(id, handle); err != nil {
			t.log.DPanic("foreign unpin failed",
				zap.Stringer("identity", id),
				zap.Error(err))
			fault = errors.ForeignFault("unpin", uint64(id), err)
		}
	}

	t.log.Debug("released", zap.Stringer("identity", id))
	t.notify(Event{Type: EventUnpinned, Identity: id})
	return fault
}

// Count returns the number of holders of id, 0 if absent.
func (t *Table) Count(id pinbridge.Identity) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.entries[id]; ok {
		return r.count
	}
	return 0
}

// Contains reports whether id has an entry.
func (t *Table) Contains(id pinbridge.Identity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

// Value returns the handle stored with id.
func (t *Table) Value(id pinbridge.Identity) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	return r.handle, true
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Entries returns a copy of the table ordered by identity.
func (t *Table) Entries() []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, len(t.entries))
	for id, r := range t.entries {
		out = append(out, Entry{Identity: id, Count: r.count})
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b Entry) int {
		return cmp.Compare(a.Identity, b.Identity)
	})
	return out
}

// Snapshot returns the table contents at call time as a lazy sequence of
// (identity, count) pairs. Later mutations are not reflected.
func (t *Table) Snapshot() iter.Seq2[pinbridge.Identity, int] {
	entries := t.Entries()
	return func(yield func(pinbridge.Identity, int) bool) {
		for _, e := range entries {
			if !yield(e.Identity, e.Count) {
				return
			}
		}
	}
}

// Drain empties the table, calling unpin for every entry except the
// sentinel, and returns the entries that still had holders.
func (t *Table) Drain(unpin Action) []Entry {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	t.mu.Lock()
	refs := make([]*Ref, 0, len(t.entries))
	for _, r := range t.entries {
		refs = append(refs, r)
	}
	t.entries = make(map[pinbridge.Identity]*Ref)
	t.mu.Unlock()

	slices.SortFunc(refs, func(a, b *Ref) int {
		return cmp.Compare(a.id, b.id)
	})

	var held []Entry
	for _, r := range refs {
		t.mu.Lock()
		count := r.count
		handle := r.handle
		r.count = 0
		r.handle = nil
		t.mu.Unlock()

		if count > 0 {
			held = append(held, Entry{Identity: r.id, Count: count})
		}
		if t.IsSentinel(r.id) {
			t.notify(Event{Type: EventReleased, Identity: r.id})
			continue
		}
		if unpin != nil {
			if err := unpin(r.id, handle); err != nil {
				t.log.Error("unpin during drain failed",
					zap.Stringer("identity", r.id),
					zap.Error(err))
			}
		}
		t.notify(Event{Type: EventUnpinned, Identity: r.id})
	}
	return held
}

// Subscribe adds an observer for pin events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnPinEvent(e)
	}
}
