package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/capsule"
	"github.com/wippyai/pinbridge/errors"
)

// External is a reference to a host resource handed to the foreign side.
// The destructor runs exactly once, when the last reference closes.
type External struct {
	bridge *Bridge
	id     pinbridge.Identity
	token  capsule.Handle
	closed bool
	mu     sync.Mutex
}

type externalRecord struct {
	payload    any
	destructor func(any)
}

// NewExternal registers payload and returns the first reference to it.
// If NewExternal fails the destructor is not called and the caller still
// owns payload.
func (b *Bridge) NewExternal(payload any, destructor func(any)) (*External, error) {
	g, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer b.leave(g)

	id := pinbridge.Identity(b.nextExt.Add(1))
	rec := &externalRecord{payload: payload, destructor: destructor}
	if _, err := b.externals.Acquire(id, rec, nil); err != nil {
		return nil, b.fail(g, errors.New(errors.PhaseExternal, errors.KindAllocation).
			Cause(err).
			Detail("external resource").
			Build())
	}
	e, err := b.trackExternal(id)
	if err != nil {
		// nil unpin: the payload goes back to the caller untouched
		if rerr := b.externals.Release(id, nil); rerr != nil {
			b.log.Error("rollback of external construction failed", zap.Error(rerr))
		}
		return nil, b.fail(g, err)
	}
	return e, nil
}

func (b *Bridge) trackExternal(id pinbridge.Identity) (*External, error) {
	e := &External{bridge: b, id: id}
	token, err := b.capsules.Wrap(capsule.KindExternal, e, detachExternal)
	if err != nil {
		return nil, errors.New(errors.PhaseExternal, errors.KindAllocation).
			Identity(uint64(id)).
			Cause(err).
			Detail("external wrapper").
			Build()
	}
	e.token = token
	return e, nil
}

func detachExternal(v any) {
	e := v.(*External)
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// destroy runs an external resource's destructor when its count reaches zero.
func (b *Bridge) destroy(id pinbridge.Identity, v any) error {
	rec, ok := v.(*externalRecord)
	if !ok {
		return errors.New(errors.PhaseExternal, errors.KindInvalidData).
			Identity(uint64(id)).
			Detail("unexpected payload %T", v).
			Build()
	}
	if rec.destructor != nil {
		rec.destructor(rec.payload)
	}
	return nil
}

// ID returns the external's identity. Identities are unique per bridge.
func (e *External) ID() pinbridge.Identity {
	return e.id
}

// Token returns the registry token identifying this reference.
func (e *External) Token() capsule.Handle {
	return e.token
}

// Payload returns the wrapped resource while any reference to it is open.
func (e *External) Payload() (any, bool) {
	v, ok := e.bridge.externals.Value(e.id)
	if !ok {
		return nil, false
	}
	return v.(*externalRecord).payload, true
}

// Closed reports whether this reference has been closed, directly or by
// bridge teardown.
func (e *External) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// RefCount returns how many open references share the resource.
func (e *External) RefCount() int {
	return e.bridge.externals.Count(e.id)
}

// Share returns another reference to the same resource.
func (e *External) Share() (*External, error) {
	b := e.bridge
	g, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer b.leave(g)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.Closed(errors.PhaseExternal, "external")
	}
	if _, err := b.externals.Acquire(e.id, nil, nil); err != nil {
		return nil, b.fail(g, err)
	}
	s, err := b.trackExternal(e.id)
	if err != nil {
		if rerr := b.externals.Release(e.id, b.destroy); rerr != nil {
			b.log.Error("rollback of external share failed", zap.Error(rerr))
		}
		return nil, b.fail(g, err)
	}
	return s, nil
}

// Close drops this reference. The destructor runs when the last reference
// closes, with any pending host exception set aside.
func (e *External) Close() error {
	b := e.bridge
	g, err := b.enter()
	if err != nil {
		return err
	}
	defer b.leave(g)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.Closed(errors.PhaseExternal, "external")
	}
	e.closed = true
	e.mu.Unlock()

	b.capsules.Drop(e.token)
	return b.fail(g, b.externals.Release(e.id, b.destroy))
}
