package capsule

import (
	"sync"

	"github.com/wippyai/pinbridge/errors"
)

// Handle is an opaque token for a wrapped host value.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind tags what a capsule wraps.
type Kind uint8

const (
	KindObject Kind = iota + 1
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Destructor runs once when a capsule is dropped.
type Destructor func(payload any)

// Config configures a Registry.
type Config struct {
	// MaxCapsules bounds the number of live capsules. 0 means unbounded.
	MaxCapsules int
}

// Registry holds host payloads behind integer handles so they can be
// referenced from memory the Go collector does not scan.
type Registry struct {
	slots    []slot
	freeList []Handle
	live     int
	max      int
	mu       sync.RWMutex
	closed   bool
}

type slot struct {
	payload    any
	destructor Destructor
	kind       Kind
	valid      bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{
		slots:    make([]slot, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
	if cfg != nil {
		r.max = cfg.MaxCapsules
	}
	return r
}

// Wrap stores payload and returns its handle. destructor may be nil.
func (r *Registry) Wrap(kind Kind, payload any, destructor Destructor) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, errors.Closed(errors.PhaseConstruct, "capsule registry")
	}
	if r.max > 0 && r.live >= r.max {
		return 0, errors.Allocation(errors.PhaseConstruct, "capsule registry", r.max)
	}

	s := slot{
		payload:    payload,
		destructor: destructor,
		kind:       kind,
		valid:      true,
	}
	r.live++

	if len(r.freeList) > 0 {
		h := r.freeList[len(r.freeList)-1]
		r.freeList = r.freeList[:len(r.freeList)-1]
		r.slots[h-1] = s
		return h, nil
	}

	r.slots = append(r.slots, s)
	return Handle(len(r.slots)), nil
}

// Unwrap returns the payload for h.
func (r *Registry) Unwrap(h Handle) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.lookup(h)
	if !ok {
		return nil, false
	}
	return s.payload, true
}

// Kind returns the kind of h.
func (r *Registry) Kind(h Handle) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.lookup(h)
	if !ok {
		return 0, false
	}
	return s.kind, true
}

// Drop removes h and runs its destructor outside the registry lock.
// Returns false if h is not live.
func (r *Registry) Drop(h Handle) bool {
	r.mu.Lock()
	s, ok := r.lookup(h)
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.slots[h-1] = slot{}
	r.freeList = append(r.freeList, h)
	r.live--
	r.mu.Unlock()

	if s.destructor != nil {
		s.destructor(s.payload)
	}
	return true
}

// Len returns the number of live capsules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

// Each iterates over live capsules. fn must not call back into the registry.
func (r *Registry) Each(fn func(Handle, Kind, any) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, s := range r.slots {
		if s.valid {
			if !fn(Handle(i+1), s.kind, s.payload) {
				break
			}
		}
	}
}

// Close drops every live capsule and rejects further wraps.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	slots := r.slots
	r.slots = nil
	r.freeList = nil
	r.live = 0
	r.mu.Unlock()

	for _, s := range slots {
		if s.valid && s.destructor != nil {
			s.destructor(s.payload)
		}
	}
	return nil
}

func (r *Registry) lookup(h Handle) (slot, bool) {
	if h == 0 {
		return slot{}, false
	}
	idx := int(h) - 1
	if idx >= len(r.slots) {
		return slot{}, false
	}
	s := r.slots[idx]
	if !s.valid {
		return slot{}, false
	}
	return s, true
}
