package bridge

import (
	"iter"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/capsule"
	"github.com/wippyai/pinbridge/embedded"
	"github.com/wippyai/pinbridge/errors"
	"github.com/wippyai/pinbridge/hoststate"
	"github.com/wippyai/pinbridge/preserve"
)

// Config holds configuration for bridge creation
type Config struct {
	// Foreign is the foreign runtime. Required.
	Foreign pinbridge.Foreign

	// Host is the host pending-exception state. Defaults to a fresh
	// hoststate.ThreadState.
	Host pinbridge.HostState

	// Logger defaults to Logger().
	Logger *zap.Logger

	// MaxPinned bounds the number of distinct pinned identities per table.
	// 0 means unbounded.
	MaxPinned int

	// MaxHandles bounds the number of live handles and externals.
	// 0 means unbounded.
	MaxHandles int
}

// Bridge owns the bookkeeping for one foreign runtime: the object pin
// table, the external resource table, the registry of host wrappers and the
// busy flag. Create one per foreign runtime and pass it to every caller.
type Bridge struct {
	id        uuid.UUID
	foreign   pinbridge.Foreign
	host      pinbridge.HostState
	log       *zap.Logger
	objects   *preserve.Table
	externals *preserve.Table
	capsules  *capsule.Registry
	state     embedded.State
	nextExt   atomic.Uint64
}

// New creates a bridge and marks the foreign runtime initialized.
func New(cfg *Config) (*Bridge, error) {
	if cfg == nil || cfg.Foreign == nil {
		return nil, errors.InvalidInput(errors.PhaseConstruct, "bridge requires a foreign runtime")
	}

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	host := cfg.Host
	if host == nil {
		host = hoststate.New()
	}

	id := uuid.New()
	log = log.With(zap.Stringer("bridge", id))

	nilID := cfg.Foreign.Nil()
	b := &Bridge{
		id:      id,
		foreign: cfg.Foreign,
		host:    host,
		log:     log,
		objects: preserve.NewTable(&preserve.Config{
			Logger:     log.Named("objects"),
			Sentinel:   &nilID,
			MaxEntries: cfg.MaxPinned,
		}),
		externals: preserve.NewTable(&preserve.Config{
			Logger:     log.Named("externals"),
			MaxEntries: cfg.MaxPinned,
		}),
		capsules: capsule.NewRegistry(&capsule.Config{
			MaxCapsules: cfg.MaxHandles,
		}),
	}
	b.state.Initialize()
	return b, nil
}

// ID identifies the bridge in logs.
func (b *Bridge) ID() uuid.UUID {
	return b.id
}

// Host returns the host state the bridge guards.
func (b *Bridge) Host() pinbridge.HostState {
	return b.host
}

// Foreign returns the foreign runtime.
func (b *Bridge) Foreign() pinbridge.Foreign {
	return b.foreign
}

// Busy reports whether a bridge operation is in progress.
func (b *Bridge) Busy() bool {
	return b.state.Busy()
}

// Do runs fn while holding the foreign runtime's busy flag, for callers
// that touch the foreign heap outside the bridge. Bridge operations called
// from fn fail with a concurrency error.
func (b *Bridge) Do(fn func() error) error {
	return b.state.Do(fn)
}

// Protected returns a snapshot of the pinned foreign identities and the
// number of handles holding each. Diagnostic only.
func (b *Bridge) Protected() iter.Seq2[pinbridge.Identity, int] {
	return b.objects.Snapshot()
}

// Externals returns a snapshot of live external resources and their counts.
func (b *Bridge) Externals() iter.Seq2[pinbridge.Identity, int] {
	return b.externals.Snapshot()
}

// RefCount returns the number of handles holding id.
func (b *Bridge) RefCount(id pinbridge.Identity) int {
	return b.objects.Count(id)
}

// Subscribe adds an observer to the object pin table.
func (b *Bridge) Subscribe(o preserve.Observer) {
	b.objects.Subscribe(o)
}

// Unsubscribe removes an observer from the object pin table.
func (b *Bridge) Unsubscribe(o preserve.Observer) {
	b.objects.Unsubscribe(o)
}

// Lookup turns a handle token back into the handle.
func (b *Bridge) Lookup(token capsule.Handle) (*Handle, bool) {
	if kind, ok := b.capsules.Kind(token); !ok || kind != capsule.KindObject {
		return nil, false
	}
	v, ok := b.capsules.Unwrap(token)
	if !ok {
		return nil, false
	}
	h, ok := v.(*Handle)
	return h, ok
}

// LookupExternal turns an external token back into the external reference.
func (b *Bridge) LookupExternal(token capsule.Handle) (*External, bool) {
	if kind, ok := b.capsules.Kind(token); !ok || kind != capsule.KindExternal {
		return nil, false
	}
	v, ok := b.capsules.Unwrap(token)
	if !ok {
		return nil, false
	}
	e, ok := v.(*External)
	return e, ok
}

// Close tears the bridge down. Every wrapper still registered and every
// identity still held is logged as a leak, identities are unpinned,
// remaining external destructors run, open handles and externals are
// marked closed, and further operations fail. Closing twice is a no-op.
func (b *Bridge) Close() error {
	if err := b.state.Enter(); err != nil {
		if errors.KindOf(err) == errors.KindNotInitialized {
			return nil
		}
		return err
	}
	g := hoststate.Enter(b.host, b.log)
	defer b.state.Shutdown()
	defer g.Exit()

	b.capsules.Each(func(token capsule.Handle, kind capsule.Kind, v any) bool {
		var id pinbridge.Identity
		switch w := v.(type) {
		case *Handle:
			id = w.ID()
		case *External:
			id = w.ID()
		}
		b.log.Warn("leaked wrapper",
			zap.Stringer("kind", kind),
			zap.Uint32("token", uint32(token)),
			zap.Stringer("identity", id))
		return true
	})

	for _, e := range b.objects.Drain(b.unpin) {
		b.log.Warn("leaked pin",
			zap.Stringer("identity", e.Identity),
			zap.Int("count", e.Count),
			zap.Bool("sentinel", b.objects.IsSentinel(e.Identity)))
	}
	for _, e := range b.externals.Drain(b.destroy) {
		b.log.Warn("leaked external",
			zap.Stringer("identity", e.Identity),
			zap.Int("count", e.Count))
	}
	return b.capsules.Close()
}

func (b *Bridge) pin(id pinbridge.Identity, _ any) error {
	return b.foreign.Pin(id)
}

func (b *Bridge) unpin(id pinbridge.Identity, _ any) error {
	return b.foreign.Unpin(id)
}

// enter takes the busy flag and sets aside any in-flight host exception.
func (b *Bridge) enter() (*hoststate.Guard, error) {
	if err := b.state.Enter(); err != nil {
		return nil, err
	}
	return hoststate.Enter(b.host, b.log), nil
}

func (b *Bridge) leave(g *hoststate.Guard) {
	g.Exit()
	b.state.Leave()
}

// fail logs err when it happens while an unrelated host exception is in
// flight. err is still returned to the Go caller; the host state is
// restored by the guard.
func (b *Bridge) fail(g *hoststate.Guard, err error) error {
	if err != nil && g.Saved() {
		b.log.Warn("bookkeeping failed while an exception was pending", zap.Error(err))
	}
	return err
}

func (b *Bridge) typeOf(phase errors.Phase, id pinbridge.Identity) (pinbridge.TypeTag, error) {
	typ, err := b.foreign.TypeOf(id)
	if err != nil {
		return 0, errors.New(phase, errors.KindNotFound).
			Identity(uint64(id)).
			Cause(err).
			Detail("foreign object").
			Build()
	}
	return typ, nil
}
