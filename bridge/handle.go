package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/capsule"
	"github.com/wippyai/pinbridge/errors"
)

// Handle is a host reference to one foreign object. While any handle on an
// identity is open, the foreign object is pinned.
type Handle struct {
	bridge *Bridge
	id     pinbridge.Identity
	typ    pinbridge.TypeTag
	token  capsule.Handle
	closed bool
	mu     sync.Mutex
}

// NewHandle creates a handle on id and pins it if it is not already held.
// On error nothing is retained and the caller keeps its own accounting for id.
func (b *Bridge) NewHandle(id pinbridge.Identity) (*Handle, error) {
	g, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer b.leave(g)

	typ, err := b.typeOf(errors.PhaseConstruct, id)
	if err != nil {
		return nil, b.fail(g, err)
	}
	h, err := b.track(id, typ)
	return h, b.fail(g, err)
}

// track acquires id and wraps a new handle for it. A failed wrap undoes the
// acquire.
func (b *Bridge) track(id pinbridge.Identity, typ pinbridge.TypeTag) (*Handle, error) {
	if _, err := b.objects.Acquire(id, id, b.pin); err != nil {
		return nil, err
	}

	h := &Handle{bridge: b, id: id, typ: typ}
	token, err := b.capsules.Wrap(capsule.KindObject, h, detachHandle)
	if err != nil {
		if rerr := b.objects.Release(id, b.unpin); rerr != nil {
			b.log.Error("rollback of handle construction failed", zap.Error(rerr))
		}
		return nil, errors.New(errors.PhaseConstruct, errors.KindAllocation).
			Identity(uint64(id)).
			Cause(err).
			Detail("handle wrapper").
			Build()
	}
	h.token = token
	return h, nil
}

// detachHandle runs when the handle's wrapper is dropped, by Close or by
// bridge teardown.
func detachHandle(v any) {
	h := v.(*Handle)
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

// ID returns the identity the handle currently refers to.
func (h *Handle) ID() pinbridge.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

// Type returns the foreign type of the referenced object.
func (h *Handle) Type() pinbridge.TypeTag {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.typ
}

// Token returns the registry token identifying this handle.
func (h *Handle) Token() capsule.Handle {
	return h.token
}

// Closed reports whether Close has succeeded.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// RefCount returns how many open handles refer to the same object.
func (h *Handle) RefCount() int {
	return h.bridge.objects.Count(h.ID())
}

// Same reports whether both handles refer to the same foreign object.
func (h *Handle) Same(other *Handle) bool {
	if other == nil {
		return false
	}
	return h.ID() == other.ID()
}

// Share returns a second handle on the same object.
func (h *Handle) Share() (*Handle, error) {
	b := h.bridge
	g, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer b.leave(g)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.Closed(errors.PhaseAcquire, "handle")
	}
	s, err := b.track(h.id, h.typ)
	return s, b.fail(g, err)
}

// Close releases the handle's reference. The object is unpinned when the
// last handle on it closes. Closing twice is an error.
func (h *Handle) Close() error {
	b := h.bridge
	g, err := b.enter()
	if err != nil {
		return err
	}
	defer b.leave(g)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errors.Closed(errors.PhaseRelease, "handle")
	}
	h.closed = true
	id, token := h.id, h.token
	h.mu.Unlock()

	b.capsules.Drop(token)
	return b.fail(g, b.objects.Release(id, b.unpin))
}

// Reseat points the handle at id. The new object must have the handle's
// type unless the handle holds the foreign null, which adopts any type.
// The new identity is acquired before the old one is released, so
// reseating to the current identity never drops the count to zero.
// On error the handle is unchanged.
func (h *Handle) Reseat(id pinbridge.Identity) error {
	b := h.bridge
	g, err := b.enter()
	if err != nil {
		return err
	}
	defer b.leave(g)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.Closed(errors.PhaseReseat, "handle")
	}

	typ, err := b.typeOf(errors.PhaseReseat, id)
	if err != nil {
		return b.fail(g, err)
	}
	if h.typ != pinbridge.TypeNil && typ != h.typ {
		return errors.TypeMismatch(errors.PhaseReseat, uint64(id), h.typ.String(), typ.String())
	}

	if _, err := b.objects.Acquire(id, id, b.pin); err != nil {
		return b.fail(g, err)
	}
	old := h.id
	h.id, h.typ = id, typ
	return b.fail(g, b.objects.Release(old, b.unpin))
}
