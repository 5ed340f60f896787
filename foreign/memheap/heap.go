// Package memheap is an in-memory foreign heap with a mark-free collector.
// Objects survive Collect only while pinned. It records every pin and
// unpin so tests can check call order.
package memheap

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/errors"
)

// NilID is the identity of the heap's null object.
const NilID pinbridge.Identity = 0

// Op is a recorded foreign primitive call.
type Op string

const (
	OpPin   Op = "pin"
	OpUnpin Op = "unpin"
)

// Call is one entry of the call log.
type Call struct {
	Op       Op
	Identity pinbridge.Identity
}

func (c Call) String() string {
	return fmt.Sprintf("%s(%s)", c.Op, c.Identity)
}

type object struct {
	typ  pinbridge.TypeTag
	pins int
}

// Heap implements pinbridge.Foreign.
type Heap struct {
	objects map[pinbridge.Identity]*object
	calls   []Call
	next    pinbridge.Identity
	failPin error
	mu      sync.Mutex
}

// New creates a heap holding only the null object.
func New() *Heap {
	return &Heap{
		objects: map[pinbridge.Identity]*object{
			NilID: {typ: pinbridge.TypeNil},
		},
		next: NilID + 1,
	}
}

// Alloc creates an unpinned object of type typ.
func (h *Heap) Alloc(typ pinbridge.TypeTag) pinbridge.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	h.objects[id] = &object{typ: typ}
	return id
}

// Nil implements pinbridge.Foreign.
func (h *Heap) Nil() pinbridge.Identity {
	return NilID
}

// Pin implements pinbridge.Foreign.
func (h *Heap) Pin(id pinbridge.Identity) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.failPin != nil {
		return h.failPin
	}
	o, err := h.lookup(id)
	if err != nil {
		return err
	}
	o.pins++
	h.calls = append(h.calls, Call{Op: OpPin, Identity: id})
	return nil
}

// Unpin implements pinbridge.Foreign.
func (h *Heap) Unpin(id pinbridge.Identity) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	o, err := h.lookup(id)
	if err != nil {
		return err
	}
	if o.pins == 0 {
		return errors.New(errors.PhaseForeign, errors.KindUnbalancedRelease).
			Identity(uint64(id)).
			Detail("object is not pinned").
			Build()
	}
	o.pins--
	h.calls = append(h.calls, Call{Op: OpUnpin, Identity: id})
	return nil
}

// TypeOf implements pinbridge.Foreign.
func (h *Heap) TypeOf(id pinbridge.Identity) (pinbridge.TypeTag, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	o, err := h.lookup(id)
	if err != nil {
		return 0, err
	}
	return o.typ, nil
}

// FailPin makes subsequent Pin calls return err. Pass nil to clear.
func (h *Heap) FailPin(err error) {
	h.mu.Lock()
	h.failPin = err
	h.mu.Unlock()
}

// Pins returns the pin depth of id, or -1 if it does not exist.
func (h *Heap) Pins(id pinbridge.Identity) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	o, ok := h.objects[id]
	if !ok {
		return -1
	}
	return o.pins
}

// Alive reports whether id has not been collected.
func (h *Heap) Alive(id pinbridge.Identity) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.objects[id]
	return ok
}

// Len returns the number of live objects, the null object included.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.objects)
}

// Collect frees every unpinned object except the null object and returns
// the freed identities in ascending order.
func (h *Heap) Collect() []pinbridge.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()

	var freed []pinbridge.Identity
	for id, o := range h.objects {
		if id == NilID || o.pins > 0 {
			continue
		}
		delete(h.objects, id)
		freed = append(freed, id)
	}
	sort.Slice(freed, func(i, j int) bool { return freed[i] < freed[j] })
	return freed
}

// Calls returns a copy of the pin/unpin log.
func (h *Heap) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Call, len(h.calls))
	copy(out, h.calls)
	return out
}

// ResetCalls clears the call log.
func (h *Heap) ResetCalls() {
	h.mu.Lock()
	h.calls = nil
	h.mu.Unlock()
}

func (h *Heap) lookup(id pinbridge.Identity) (*object, error) {
	o, ok := h.objects[id]
	if !ok {
		return nil, errors.NotFound(errors.PhaseForeign, "object", id.String())
	}
	return o, nil
}
