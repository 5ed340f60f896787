//go:build (darwin || linux || freebsd) && (amd64 || arm64)

package libr

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/errors"
)

// Config holds configuration for starting R
type Config struct {
	// Path is the libR file. Empty means search with Find, then let the
	// dynamic loader resolve LibraryName.
	Path string

	// Args are the interpreter arguments. Defaults to
	// {"R", "--quiet", "--no-save", "--no-restore", "--slave"}.
	Args []string

	Logger *zap.Logger
}

var defaultArgs = []string{"R", "--quiet", "--no-save", "--no-restore", "--slave"}

var (
	openOnce sync.Once
	openRt   *Runtime
	openErr  error
)

// Runtime implements pinbridge.Foreign for an embedded R.
type Runtime struct {
	lib    uintptr
	nilVal pinbridge.Identity
	log    *zap.Logger
	closed bool
	mu     sync.Mutex

	preserveObject func(sexp uintptr)
	releaseObject  func(sexp uintptr)
	typeOf         func(sexp uintptr) int32
	initEmbedded   func(argc int32, argv unsafe.Pointer) int32
	endEmbedded    func(fatal int32)
	install        func(name string) uintptr
	mkString       func(s string) uintptr
}

// Open loads libR and initializes the interpreter. R cannot be restarted,
// so every call returns the same Runtime, or the same error.
func Open(cfg *Config) (*Runtime, error) {
	openOnce.Do(func() {
		openRt, openErr = open(cfg)
	})
	return openRt, openErr
}

func open(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	path := cfg.Path
	if path == "" {
		if found, ok := Find(); ok {
			path = found
		} else {
			path = LibraryName()
		}
	}

	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.Load("open "+path, err)
	}

	rt := &Runtime{lib: lib, log: log}
	purego.RegisterLibFunc(&rt.preserveObject, lib, "R_PreserveObject")
	purego.RegisterLibFunc(&rt.releaseObject, lib, "R_ReleaseObject")
	purego.RegisterLibFunc(&rt.typeOf, lib, "TYPEOF")
	purego.RegisterLibFunc(&rt.initEmbedded, lib, "Rf_initEmbeddedR")
	purego.RegisterLibFunc(&rt.endEmbedded, lib, "Rf_endEmbeddedR")
	purego.RegisterLibFunc(&rt.install, lib, "Rf_install")
	purego.RegisterLibFunc(&rt.mkString, lib, "Rf_mkString")

	args := cfg.Args
	if len(args) == 0 {
		args = defaultArgs
	}
	if err := rt.start(args); err != nil {
		return nil, err
	}

	nilAddr, err := purego.Dlsym(lib, "R_NilValue")
	if err != nil {
		return nil, errors.Load("resolve R_NilValue", err)
	}
	rt.nilVal = pinbridge.Identity(readPointer(nilAddr))

	log.Info("R initialized",
		zap.String("library", path),
		zap.Stringer("nil", rt.nilVal))
	return rt, nil
}

// start builds a C argv that stays pinned for the duration of the call.
func (r *Runtime) start(args []string) error {
	var pinner runtime.Pinner
	defer pinner.Unpin()

	argv := make([]*byte, len(args)+1)
	for i, a := range args {
		buf := append([]byte(a), 0)
		pinner.Pin(&buf[0])
		argv[i] = &buf[0]
	}
	pinner.Pin(&argv[0])

	if rc := r.initEmbedded(int32(len(args)), unsafe.Pointer(&argv[0])); rc == 0 {
		return errors.New(errors.PhaseLoad, errors.KindForeignFault).
			Detail("Rf_initEmbeddedR returned %d", rc).
			Build()
	}
	return nil
}

// readPointer loads the pointer-sized value stored at addr. addr comes from
// Dlsym and names a global in libR's data segment: it is not Go memory and
// stays valid until the process exits, so the uintptr round trip is safe.
func readPointer(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr)) //nolint:govet // address of a C global, see above
}

// Nil implements pinbridge.Foreign.
func (r *Runtime) Nil() pinbridge.Identity {
	return r.nilVal
}

// Pin implements pinbridge.Foreign.
func (r *Runtime) Pin(id pinbridge.Identity) error {
	if err := r.check(id); err != nil {
		return err
	}
	r.preserveObject(uintptr(id))
	return nil
}

// Unpin implements pinbridge.Foreign.
func (r *Runtime) Unpin(id pinbridge.Identity) error {
	if err := r.check(id); err != nil {
		return err
	}
	r.releaseObject(uintptr(id))
	return nil
}

// TypeOf implements pinbridge.Foreign.
func (r *Runtime) TypeOf(id pinbridge.Identity) (pinbridge.TypeTag, error) {
	if err := r.check(id); err != nil {
		return 0, err
	}
	code := r.typeOf(uintptr(id))
	tag, ok := pinbridge.TypeTagFromCode(code)
	if !ok {
		return 0, errors.New(errors.PhaseForeign, errors.KindInvalidData).
			Identity(uint64(id)).
			Detail("SEXPTYPE %d", code).
			Build()
	}
	return tag, nil
}

// Install returns the symbol called name. Symbols are never collected.
func (r *Runtime) Install(name string) (pinbridge.Identity, error) {
	if err := r.check(r.nilVal); err != nil {
		return 0, err
	}
	return pinbridge.Identity(r.install(name)), nil
}

// MkString allocates a length-one character vector. The result is
// unprotected: pin it before R allocates again.
func (r *Runtime) MkString(s string) (pinbridge.Identity, error) {
	if err := r.check(r.nilVal); err != nil {
		return 0, err
	}
	return pinbridge.Identity(r.mkString(s)), nil
}

// Close shuts the interpreter down. The process cannot start R again.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.endEmbedded(0)
	r.log.Info("R terminated")
	return nil
}

func (r *Runtime) check(id pinbridge.Identity) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return errors.Closed(errors.PhaseForeign, "R runtime")
	}
	if id == 0 {
		return errors.InvalidInput(errors.PhaseForeign, "null SEXP")
	}
	return nil
}
