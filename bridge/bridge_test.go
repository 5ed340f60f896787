package bridge

import (
	"errors"
	"maps"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/pinbridge"
	pberrors "github.com/wippyai/pinbridge/errors"
	"github.com/wippyai/pinbridge/foreign/memheap"
	"github.com/wippyai/pinbridge/hoststate"
)

type fixture struct {
	heap   *memheap.Heap
	host   *hoststate.ThreadState
	bridge *Bridge
	logs   *observer.ObservedLogs
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	heap := memheap.New()
	host := hoststate.New()
	cfg.Foreign = heap
	cfg.Host = host
	cfg.Logger = zap.New(core)

	b, err := New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{heap: heap, host: host, bridge: b, logs: logs}
}

func TestNew_RequiresForeign(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, pberrors.ErrInvalidInput) {
		t.Errorf("New(nil) = %v", err)
	}
	if _, err := New(&Config{}); !errors.Is(err, pberrors.ErrInvalidInput) {
		t.Errorf("New(empty) = %v", err)
	}
}

func TestHandle_PinLifecycle(t *testing.T) {
	f := newFixture(t, Config{})
	x := f.heap.Alloc(pinbridge.TypeReal)

	h1, err := f.bridge.NewHandle(x)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	h2, err := f.bridge.NewHandle(x)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	if h1.RefCount() != 2 {
		t.Errorf("RefCount = %d, want 2", h1.RefCount())
	}
	if f.heap.Pins(x) != 1 {
		t.Errorf("pins = %d, want 1", f.heap.Pins(x))
	}

	if err := h1.Close(); err != nil {
		t.Fatal(err)
	}
	if f.heap.Pins(x) != 1 {
		t.Error("unpinned while a handle is open")
	}
	f.heap.Collect()
	if !f.heap.Alive(x) {
		t.Fatal("object collected while held")
	}

	if err := h2.Close(); err != nil {
		t.Fatal(err)
	}
	want := []memheap.Call{{Op: memheap.OpPin, Identity: x}, {Op: memheap.OpUnpin, Identity: x}}
	if diff := cmp.Diff(want, f.heap.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if f.bridge.RefCount(x) != 0 {
		t.Error("entry left after last close")
	}
	f.heap.Collect()
	if f.heap.Alive(x) {
		t.Error("object survived after last handle closed")
	}
}

func TestHandle_DoubleClose(t *testing.T) {
	f := newFixture(t, Config{})
	h, err := f.bridge.NewHandle(f.heap.Alloc(pinbridge.TypeList))
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); !errors.Is(err, pberrors.ErrClosed) {
		t.Errorf("second Close = %v, want closed", err)
	}
	if !h.Closed() {
		t.Error("Closed() = false")
	}
	if len(f.heap.Calls()) != 2 {
		t.Errorf("calls = %v", f.heap.Calls())
	}
}

func TestHandle_UnknownObject(t *testing.T) {
	f := newFixture(t, Config{})
	if _, err := f.bridge.NewHandle(99); !errors.Is(err, pberrors.ErrNotFound) {
		t.Errorf("NewHandle(unknown) = %v", err)
	}
	if len(maps.Collect(f.bridge.Protected())) != 0 {
		t.Error("failed construction left an entry")
	}
}

func TestHandle_ReseatOrder(t *testing.T) {
	f := newFixture(t, Config{})
	x := f.heap.Alloc(pinbridge.TypeReal)
	y := f.heap.Alloc(pinbridge.TypeReal)

	h, err := f.bridge.NewHandle(x)
	if err != nil {
		t.Fatal(err)
	}
	f.heap.ResetCalls()

	if err := h.Reseat(y); err != nil {
		t.Fatalf("Reseat: %v", err)
	}
	want := []memheap.Call{{Op: memheap.OpPin, Identity: y}, {Op: memheap.OpUnpin, Identity: x}}
	if diff := cmp.Diff(want, f.heap.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if h.ID() != y {
		t.Errorf("ID = %v, want %v", h.ID(), y)
	}

	counts := maps.Collect(f.bridge.Protected())
	wantCounts := map[pinbridge.Identity]int{y: 1}
	if diff := cmp.Diff(wantCounts, counts); diff != "" {
		t.Errorf("protected mismatch (-want +got):\n%s", diff)
	}
}

func TestHandle_ReseatSharedSource(t *testing.T) {
	f := newFixture(t, Config{})
	x := f.heap.Alloc(pinbridge.TypeReal)
	y := f.heap.Alloc(pinbridge.TypeReal)

	h, _ := f.bridge.NewHandle(x)
	other, _ := f.bridge.NewHandle(x)
	f.heap.ResetCalls()

	if err := h.Reseat(y); err != nil {
		t.Fatal(err)
	}
	if f.bridge.RefCount(x) != 1 || f.bridge.RefCount(y) != 1 {
		t.Errorf("counts x=%d y=%d, want 1 and 1", f.bridge.RefCount(x), f.bridge.RefCount(y))
	}
	want := []memheap.Call{{Op: memheap.OpPin, Identity: y}}
	if diff := cmp.Diff(want, f.heap.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	_ = other.Close()
	_ = h.Close()
}

func TestHandle_SelfReseat(t *testing.T) {
	f := newFixture(t, Config{})
	x := f.heap.Alloc(pinbridge.TypeString)
	h, _ := f.bridge.NewHandle(x)
	f.heap.ResetCalls()

	if err := h.Reseat(x); err != nil {
		t.Fatal(err)
	}
	if len(f.heap.Calls()) != 0 {
		t.Errorf("self reseat touched the heap: %v", f.heap.Calls())
	}
	if h.RefCount() != 1 {
		t.Errorf("RefCount = %d, want 1", h.RefCount())
	}
}

func TestHandle_ReseatTypeMismatch(t *testing.T) {
	f := newFixture(t, Config{})
	x := f.heap.Alloc(pinbridge.TypeReal)
	s := f.heap.Alloc(pinbridge.TypeString)
	h, _ := f.bridge.NewHandle(x)
	f.heap.ResetCalls()

	err := h.Reseat(s)
	if !errors.Is(err, pberrors.ErrTypeMismatch) {
		t.Fatalf("Reseat = %v, want type mismatch", err)
	}
	var pe *pberrors.Error
	if !errors.As(err, &pe) || pe.Want != "double" || pe.Got != "character" {
		t.Errorf("error detail = %+v", pe)
	}
	if h.ID() != x || h.Type() != pinbridge.TypeReal {
		t.Error("handle changed on failed reseat")
	}
	if f.bridge.RefCount(s) != 0 || len(f.heap.Calls()) != 0 {
		t.Error("failed reseat changed bookkeeping")
	}
}

func TestHandle_NilAdoptsType(t *testing.T) {
	f := newFixture(t, Config{})
	x := f.heap.Alloc(pinbridge.TypeInteger)

	h, err := f.bridge.NewHandle(f.heap.Nil())
	if err != nil {
		t.Fatal(err)
	}
	if len(f.heap.Calls()) != 0 {
		t.Error("sentinel was pinned")
	}
	if err := h.Reseat(x); err != nil {
		t.Fatalf("Reseat from nil: %v", err)
	}
	if h.Type() != pinbridge.TypeInteger {
		t.Errorf("Type = %v", h.Type())
	}

	counts := maps.Collect(f.bridge.Protected())
	wantCounts := map[pinbridge.Identity]int{memheap.NilID: 0, x: 1}
	if diff := cmp.Diff(wantCounts, counts); diff != "" {
		t.Errorf("protected mismatch (-want +got):\n%s", diff)
	}
}

func TestHandle_SentinelImmortal(t *testing.T) {
	f := newFixture(t, Config{})
	nilID := f.heap.Nil()

	for round := 0; round < 3; round++ {
		var hs []*Handle
		for i := 0; i < 4; i++ {
			h, err := f.bridge.NewHandle(nilID)
			if err != nil {
				t.Fatal(err)
			}
			hs = append(hs, h)
		}
		for _, h := range hs {
			if err := h.Close(); err != nil {
				t.Fatal(err)
			}
		}
	}
	if len(f.heap.Calls()) != 0 {
		t.Errorf("sentinel touched the heap: %v", f.heap.Calls())
	}
	if _, ok := maps.Collect(f.bridge.Protected())[nilID]; !ok {
		t.Error("sentinel entry removed")
	}
}

func TestHandle_ShareAndSame(t *testing.T) {
	f := newFixture(t, Config{})
	x := f.heap.Alloc(pinbridge.TypeEnvironment)
	y := f.heap.Alloc(pinbridge.TypeEnvironment)

	h, _ := f.bridge.NewHandle(x)
	s, err := h.Share()
	if err != nil {
		t.Fatal(err)
	}
	o, _ := f.bridge.NewHandle(y)

	if !h.Same(s) || h.Same(o) || h.Same(nil) {
		t.Error("Same gave the wrong answer")
	}
	if s.RefCount() != 2 || s.Token() == h.Token() {
		t.Errorf("share: count=%d tokens %d/%d", s.RefCount(), s.Token(), h.Token())
	}

	got, ok := f.bridge.Lookup(s.Token())
	if !ok || got != s {
		t.Error("Lookup did not return the shared handle")
	}
	if _, ok := f.bridge.LookupExternal(s.Token()); ok {
		t.Error("object token resolved as external")
	}

	_ = h.Close()
	if _, err := h.Share(); !errors.Is(err, pberrors.ErrClosed) {
		t.Errorf("Share after close = %v", err)
	}
	if _, ok := f.bridge.Lookup(h.Token()); ok {
		t.Error("closed handle still resolvable")
	}
}

func TestHandle_Busy(t *testing.T) {
	f := newFixture(t, Config{})
	x := f.heap.Alloc(pinbridge.TypeReal)
	h, _ := f.bridge.NewHandle(x)

	err := f.bridge.Do(func() error {
		if !f.bridge.Busy() {
			t.Error("Busy() = false inside Do")
		}
		if _, err := f.bridge.NewHandle(x); !errors.Is(err, pberrors.ErrConcurrency) {
			t.Errorf("NewHandle while busy = %v", err)
		}
		if err := h.Close(); !errors.Is(err, pberrors.ErrConcurrency) {
			t.Errorf("Close while busy = %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if h.Closed() || h.RefCount() != 1 {
		t.Error("rejected call changed state")
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close after busy = %v", err)
	}
}

func TestHandle_WrapperExhaustionRollsBack(t *testing.T) {
	f := newFixture(t, Config{MaxHandles: 1})
	x := f.heap.Alloc(pinbridge.TypeReal)
	y := f.heap.Alloc(pinbridge.TypeReal)

	if _, err := f.bridge.NewHandle(x); err != nil {
		t.Fatal(err)
	}
	_, err := f.bridge.NewHandle(y)
	if !errors.Is(err, pberrors.ErrAllocation) {
		t.Fatalf("NewHandle = %v, want allocation error", err)
	}
	if f.bridge.RefCount(y) != 0 || f.heap.Pins(y) != 0 {
		t.Error("failed construction kept y pinned")
	}
	want := []memheap.Call{
		{Op: memheap.OpPin, Identity: x},
		{Op: memheap.OpPin, Identity: y},
		{Op: memheap.OpUnpin, Identity: y},
	}
	if diff := cmp.Diff(want, f.heap.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestHandle_PinFault(t *testing.T) {
	f := newFixture(t, Config{})
	x := f.heap.Alloc(pinbridge.TypeReal)
	f.heap.FailPin(pberrors.InvalidInput(pberrors.PhaseForeign, "heap exhausted"))

	if _, err := f.bridge.NewHandle(x); !errors.Is(err, pberrors.ErrForeignFault) {
		t.Errorf("NewHandle = %v, want foreign fault", err)
	}
	if f.bridge.RefCount(x) != 0 {
		t.Error("entry inserted after failed pin")
	}
}

func TestHandle_PendingExceptionPreserved(t *testing.T) {
	f := newFixture(t, Config{})
	x := f.heap.Alloc(pinbridge.TypeReal)
	pending := f.host.Raise("KeyboardInterrupt", errors.New("interrupted"))

	h, err := f.bridge.NewHandle(x)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if f.host.Current() != pending {
		t.Error("pending exception not restored")
	}
}

func TestBridge_CloseReportsLeaks(t *testing.T) {
	f := newFixture(t, Config{})
	x := f.heap.Alloc(pinbridge.TypeReal)
	h, err := f.bridge.NewHandle(x)
	if err != nil {
		t.Fatal(err)
	}
	destroyed := 0
	e, err := f.bridge.NewExternal("conn", func(any) { destroyed++ })
	if err != nil {
		t.Fatal(err)
	}

	if err := f.bridge.Close(); err != nil {
		t.Fatal(err)
	}
	if f.heap.Pins(x) != 0 {
		t.Error("teardown left x pinned")
	}
	if destroyed != 1 {
		t.Errorf("destructor ran %d times", destroyed)
	}
	if n := f.logs.FilterMessage("leaked pin").Len(); n != 1 {
		t.Errorf("leaked pin logs = %d, want 1", n)
	}
	if n := f.logs.FilterMessage("leaked external").Len(); n != 1 {
		t.Errorf("leaked external logs = %d, want 1", n)
	}
	wrappers := f.logs.FilterMessage("leaked wrapper").All()
	if len(wrappers) != 2 {
		t.Fatalf("leaked wrapper logs = %d, want 2", len(wrappers))
	}
	var kinds []string
	for _, w := range wrappers {
		kinds = append(kinds, w.ContextMap()["kind"].(string))
	}
	if diff := cmp.Diff([]string{"object", "external"}, kinds); diff != "" {
		t.Errorf("wrapper kinds mismatch (-want +got):\n%s", diff)
	}
	if !h.Closed() || !e.Closed() {
		t.Error("teardown left wrappers open")
	}
	if n := f.logs.FilterField(zap.Stringer("bridge", f.bridge.ID())).Len(); n == 0 {
		t.Error("log entries do not carry the bridge id")
	}

	if _, err := f.bridge.NewHandle(x); !errors.Is(err, pberrors.ErrNotInitialized) {
		t.Errorf("NewHandle after Close = %v", err)
	}
	if err := f.bridge.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
