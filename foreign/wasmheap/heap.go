// Package wasmheap hosts the foreign runtime as a WebAssembly guest.
//
// The guest owns its objects and exports the primitives the bridge needs:
//
//	(func (export "pin") (param i32))
//	(func (export "unpin") (param i32))
//	(func (export "type_of") (param i32) (result i32))
//	(global (export "pinned") (mut i32))   ;; optional pin counter
//
// type_of returns a SEXPTYPE code. Identities are guest i32 values, so only
// identities up to math.MaxUint32 can be pinned.
package wasmheap

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/errors"
)

const (
	exportPin    = "pin"
	exportUnpin  = "unpin"
	exportTypeOf = "type_of"
	exportPinned = "pinned"
)

// Config holds configuration for loading a guest
type Config struct {
	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// NilID is the guest's null object. Defaults to 0.
	NilID pinbridge.Identity

	// Name is the module instance name. Defaults to "foreign".
	Name string

	Logger *zap.Logger
}

// Heap implements pinbridge.Foreign on top of a wazero module instance.
type Heap struct {
	ctx     context.Context
	runtime wazero.Runtime
	mod     api.Module
	pin     api.Function
	unpin   api.Function
	typeOf  api.Function
	pinned  api.Global
	log     *zap.Logger
	nilID   pinbridge.Identity
	mu      sync.Mutex
}

// Load compiles and instantiates the guest. ctx is used for every later
// guest call until Close.
func Load(ctx context.Context, wasm []byte, cfg *Config) (*Heap, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = "foreign"
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := runtime.CompileModule(ctx, wasm)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Load("compile guest", err)
	}
	mod, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Load("instantiate guest", err)
	}

	h := &Heap{
		ctx:     ctx,
		runtime: runtime,
		mod:     mod,
		log:     log,
		nilID:   cfg.NilID,
		pinned:  mod.ExportedGlobal(exportPinned),
	}

	i32 := []api.ValueType{api.ValueTypeI32}
	exports := []struct {
		name    string
		dst     *api.Function
		results []api.ValueType
	}{
		{exportPin, &h.pin, nil},
		{exportUnpin, &h.unpin, nil},
		{exportTypeOf, &h.typeOf, i32},
	}
	for _, e := range exports {
		fn := mod.ExportedFunction(e.name)
		if fn == nil {
			_ = runtime.Close(ctx)
			return nil, errors.NotFound(errors.PhaseLoad, "export", e.name)
		}
		def := fn.Definition()
		if !slices.Equal(def.ParamTypes(), i32) || !slices.Equal(def.ResultTypes(), e.results) {
			_ = runtime.Close(ctx)
			return nil, errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
				Detail("export %q has signature %v -> %v", e.name, def.ParamTypes(), def.ResultTypes()).
				Build()
		}
		*e.dst = fn
	}

	log.Debug("guest loaded",
		zap.String("name", name),
		zap.Bool("pin_counter", h.pinned != nil))
	return h, nil
}

// Nil implements pinbridge.Foreign.
func (h *Heap) Nil() pinbridge.Identity {
	return h.nilID
}

// Pin implements pinbridge.Foreign.
func (h *Heap) Pin(id pinbridge.Identity) error {
	_, err := h.call(h.pin, exportPin, id)
	return err
}

// Unpin implements pinbridge.Foreign.
func (h *Heap) Unpin(id pinbridge.Identity) error {
	_, err := h.call(h.unpin, exportUnpin, id)
	return err
}

// TypeOf implements pinbridge.Foreign.
func (h *Heap) TypeOf(id pinbridge.Identity) (pinbridge.TypeTag, error) {
	res, err := h.call(h.typeOf, exportTypeOf, id)
	if err != nil {
		return 0, err
	}
	code := api.DecodeI32(res[0])
	tag, ok := pinbridge.TypeTagFromCode(code)
	if !ok {
		return 0, errors.New(errors.PhaseForeign, errors.KindInvalidData).
			Identity(uint64(id)).
			Detail("guest returned type code %d", code).
			Build()
	}
	return tag, nil
}

// Pinned reads the guest's pin counter. ok is false when the guest does not
// export one.
func (h *Heap) Pinned() (n int32, ok bool) {
	if h.pinned == nil {
		return 0, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return api.DecodeI32(h.pinned.Get()), true
}

// Close releases the guest and the wazero runtime.
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runtime.Close(h.ctx)
}

func (h *Heap) call(fn api.Function, name string, id pinbridge.Identity) ([]uint64, error) {
	if uint64(id) > math.MaxUint32 {
		return nil, errors.New(errors.PhaseForeign, errors.KindInvalidInput).
			Identity(uint64(id)).
			Detail("identity does not fit in a guest i32").
			Build()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	res, err := fn.Call(h.ctx, api.EncodeU32(uint32(id)))
	if err != nil {
		h.log.Debug("guest call failed",
			zap.String("export", name),
			zap.Stringer("identity", id),
			zap.Error(err))
		return nil, errors.Wrap(errors.PhaseForeign, errors.KindForeignFault, err, name)
	}
	return res, nil
}
