package trace

import (
	"maps"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/bridge"
	"github.com/wippyai/pinbridge/errors"
)

// Allocator is a foreign runtime that can create objects on demand.
type Allocator interface {
	Alloc(typ pinbridge.TypeTag) pinbridge.Identity
}

// Collector is a foreign runtime whose collector can be triggered.
type Collector interface {
	Collect() []pinbridge.Identity
}

// Report summarizes a replay.
type Report struct {
	Script string
	Steps  int
	// Open lists handles never closed, by name.
	Open []string
	// OpenExternals lists externals never closed, by name.
	OpenExternals []string
	// Destroyed lists externals whose destructor ran, in order.
	Destroyed []string
	// Collected counts objects freed by collect steps.
	Collected int
}

// Leaked reports whether the script left anything open.
func (r *Report) Leaked() bool {
	return len(r.Open) > 0 || len(r.OpenExternals) > 0
}

// Replayer runs scripts against a bridge. Names bound by one script stay
// visible to the next.
type Replayer struct {
	bridge    *bridge.Bridge
	log       *zap.Logger
	objects   map[string]pinbridge.Identity
	handles   map[string]*bridge.Handle
	externals map[string]*bridge.External
	destroyed []string
	collected int
}

// NewReplayer creates a replayer for b.
func NewReplayer(b *bridge.Bridge, log *zap.Logger) *Replayer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Replayer{
		bridge:    b,
		log:       log,
		objects:   make(map[string]pinbridge.Identity),
		handles:   make(map[string]*bridge.Handle),
		externals: make(map[string]*bridge.External),
	}
}

// Object returns the identity bound to name.
func (r *Replayer) Object(name string) (pinbridge.Identity, bool) {
	id, ok := r.objects[name]
	return id, ok
}

// Handle returns the handle bound to name.
func (r *Replayer) Handle(name string) (*bridge.Handle, bool) {
	h, ok := r.handles[name]
	return h, ok
}

// Run executes every step of s and stops at the first unexpected outcome.
// The report is returned even on error and covers the steps that ran.
func (r *Replayer) Run(s *Script) (*Report, error) {
	rep := &Report{Script: s.Name}
	for i, st := range s.Steps {
		err := r.apply(st)
		rep.Steps = i + 1

		r.log.Debug("step",
			zap.Int("index", i),
			zap.String("op", string(st.Op)),
			zap.String("expect", st.Expect),
			zap.Error(err))

		if err := expect(st, err); err != nil {
			kind := errors.KindOf(err)
			if kind == "" {
				kind = errors.KindInvalidData
			}
			r.fill(rep)
			return rep, errors.New(errors.PhaseTrace, kind).
				Cause(err).
				Detail("step %d (%s)", i, st.Op).
				Build()
		}
	}
	r.fill(rep)
	return rep, nil
}

func expect(st Step, err error) error {
	if st.Expect == "" {
		return err
	}
	if err == nil {
		return errors.New(errors.PhaseTrace, errors.KindInvalidData).
			Want(st.Expect).
			Got("success").
			Build()
	}
	if got := errors.KindOf(err); string(got) != st.Expect {
		return errors.New(errors.PhaseTrace, errors.KindInvalidData).
			Want(st.Expect).
			Got(string(got)).
			Cause(err).
			Build()
	}
	return nil
}

func (r *Replayer) fill(rep *Report) {
	rep.Open = nil
	for name, h := range r.handles {
		if !h.Closed() {
			rep.Open = append(rep.Open, name)
		}
	}
	slices.Sort(rep.Open)
	rep.OpenExternals = slices.Sorted(maps.Keys(r.externals))
	rep.Destroyed = slices.Clone(r.destroyed)
	rep.Collected = r.collected
}

func (r *Replayer) apply(st Step) error {
	switch st.Op {
	case OpAlloc:
		alloc, ok := r.bridge.Foreign().(Allocator)
		if !ok {
			return errors.Unsupported(errors.PhaseTrace, "alloc on this foreign runtime")
		}
		typ, ok := pinbridge.ParseTypeTag(st.Type)
		if !ok {
			return errors.NotFound(errors.PhaseTrace, "type", st.Type)
		}
		r.objects[st.Name] = alloc.Alloc(typ)

	case OpBind:
		r.objects[st.Name] = pinbridge.Identity(st.ID)

	case OpNil:
		r.objects[st.Name] = r.bridge.Foreign().Nil()

	case OpNew:
		id, err := r.object(st.Object)
		if err != nil {
			return err
		}
		h, err := r.bridge.NewHandle(id)
		if err != nil {
			return err
		}
		r.handles[st.Name] = h

	case OpShare:
		h, err := r.handle(st.Handle)
		if err != nil {
			return err
		}
		s, err := h.Share()
		if err != nil {
			return err
		}
		r.handles[st.Name] = s

	case OpReseat:
		h, err := r.handle(st.Handle)
		if err != nil {
			return err
		}
		id, err := r.object(st.Object)
		if err != nil {
			return err
		}
		return h.Reseat(id)

	case OpClose:
		h, err := r.handle(st.Handle)
		if err != nil {
			return err
		}
		return h.Close()

	case OpExternal:
		name := st.Name
		e, err := r.bridge.NewExternal(name, func(any) {
			r.destroyed = append(r.destroyed, name)
		})
		if err != nil {
			return err
		}
		r.externals[name] = e

	case OpShareExternal:
		e, err := r.external(st.Handle)
		if err != nil {
			return err
		}
		s, err := e.Share()
		if err != nil {
			return err
		}
		r.externals[st.Name] = s

	case OpCloseExternal:
		e, err := r.external(st.Handle)
		if err != nil {
			return err
		}
		if err := e.Close(); err != nil {
			return err
		}
		delete(r.externals, st.Handle)

	case OpCollect:
		c, ok := r.bridge.Foreign().(Collector)
		if !ok {
			return errors.Unsupported(errors.PhaseTrace, "collect on this foreign runtime")
		}
		r.collected += len(c.Collect())

	case OpCheck:
		id, err := r.object(st.Object)
		if err != nil {
			return err
		}
		if got := r.bridge.RefCount(id); got != *st.Count {
			return errors.New(errors.PhaseTrace, errors.KindInvalidData).
				Identity(uint64(id)).
				Want(strconv.Itoa(*st.Count)).
				Got(strconv.Itoa(got)).
				Detail("count of %s", st.Object).
				Build()
		}

	default:
		return errors.InvalidInput(errors.PhaseTrace, "unknown op "+string(st.Op))
	}
	return nil
}

func (r *Replayer) object(name string) (pinbridge.Identity, error) {
	id, ok := r.objects[name]
	if !ok {
		return 0, errors.NotFound(errors.PhaseTrace, "object", name)
	}
	return id, nil
}

func (r *Replayer) handle(name string) (*bridge.Handle, error) {
	h, ok := r.handles[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseTrace, "handle", name)
	}
	return h, nil
}

func (r *Replayer) external(name string) (*bridge.External, error) {
	e, ok := r.externals[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseTrace, "external", name)
	}
	return e, nil
}
