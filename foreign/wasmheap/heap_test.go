package wasmheap

import (
	"context"
	"errors"
	"testing"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/bridge"
	pberrors "github.com/wippyai/pinbridge/errors"
)

// counterGuest exports pin/unpin that bump the "pinned" global and a
// type_of that returns the identity's top byte.
var counterGuest = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: (i32) -> (), (i32) -> i32
	0x01, 0x0a, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x01, 0x7f, 0x01, 0x7f,
	// functions
	0x03, 0x04, 0x03, 0x00, 0x00, 0x01,
	// globals: (mut i32) = 0
	0x06, 0x06, 0x01, 0x7f, 0x01, 0x41, 0x00, 0x0b,
	// exports
	0x07, 0x22, 0x04,
	0x03, 'p', 'i', 'n', 0x00, 0x00,
	0x05, 'u', 'n', 'p', 'i', 'n', 0x00, 0x01,
	0x07, 't', 'y', 'p', 'e', '_', 'o', 'f', 0x00, 0x02,
	0x06, 'p', 'i', 'n', 'n', 'e', 'd', 0x03, 0x00,
	// code
	0x0a, 0x1d, 0x03,
	0x09, 0x00, 0x23, 0x00, 0x41, 0x01, 0x6a, 0x24, 0x00, 0x0b,
	0x09, 0x00, 0x23, 0x00, 0x41, 0x01, 0x6b, 0x24, 0x00, 0x0b,
	0x07, 0x00, 0x20, 0x00, 0x41, 0x18, 0x76, 0x0b,
}

// emptyGuest is a module with no exports.
var emptyGuest = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func object(tag pinbridge.TypeTag, n uint32) pinbridge.Identity {
	return pinbridge.Identity(uint32(tag)<<24 | n)
}

func load(t *testing.T) *Heap {
	t.Helper()
	h, err := Load(context.Background(), counterGuest, &Config{MemoryLimitPages: 1})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func pinned(t *testing.T, h *Heap) int32 {
	t.Helper()
	n, ok := h.Pinned()
	if !ok {
		t.Fatal("guest has no pin counter")
	}
	return n
}

func TestHeap_Primitives(t *testing.T) {
	h := load(t)
	x := object(pinbridge.TypeList, 7)

	typ, err := h.TypeOf(x)
	if err != nil {
		t.Fatalf("TypeOf: %v", err)
	}
	if typ != pinbridge.TypeList {
		t.Errorf("TypeOf = %v, want list", typ)
	}
	if typ, _ := h.TypeOf(h.Nil()); typ != pinbridge.TypeNil {
		t.Errorf("TypeOf(nil) = %v", typ)
	}

	if err := h.Pin(x); err != nil {
		t.Fatal(err)
	}
	if err := h.Pin(x); err != nil {
		t.Fatal(err)
	}
	if err := h.Unpin(x); err != nil {
		t.Fatal(err)
	}
	if got := pinned(t, h); got != 1 {
		t.Errorf("pinned = %d, want 1", got)
	}
}

func TestHeap_InvalidTypeCode(t *testing.T) {
	h := load(t)
	if _, err := h.TypeOf(pinbridge.Identity(200 << 24)); !errors.Is(err, pberrors.ErrInvalidData) {
		t.Errorf("TypeOf(bad tag) = %v", err)
	}
}

func TestHeap_IdentityRange(t *testing.T) {
	h := load(t)
	if err := h.Pin(1 << 40); !errors.Is(err, pberrors.ErrInvalidInput) {
		t.Errorf("Pin(wide) = %v", err)
	}
	if got := pinned(t, h); got != 0 {
		t.Errorf("pinned = %d after rejected pin", got)
	}
}

func TestLoad_MissingExports(t *testing.T) {
	_, err := Load(context.Background(), emptyGuest, nil)
	if !errors.Is(err, pberrors.ErrNotFound) {
		t.Errorf("Load = %v, want not found", err)
	}
}

func TestLoad_Garbage(t *testing.T) {
	if _, err := Load(context.Background(), []byte("not wasm"), nil); err == nil {
		t.Error("expected compile error")
	}
}

func TestHeap_WithBridge(t *testing.T) {
	h := load(t)
	b, err := bridge.New(&bridge.Config{Foreign: h})
	if err != nil {
		t.Fatal(err)
	}
	x := object(pinbridge.TypeReal, 1)
	y := object(pinbridge.TypeReal, 2)
	s := object(pinbridge.TypeString, 3)

	h1, err := b.NewHandle(x)
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := h1.Share()
	if got := pinned(t, h); got != 1 {
		t.Errorf("pinned = %d, want 1", got)
	}

	if err := h2.Reseat(s); !errors.Is(err, pberrors.ErrTypeMismatch) {
		t.Errorf("Reseat(string) = %v", err)
	}
	if err := h2.Reseat(y); err != nil {
		t.Fatal(err)
	}
	if got := pinned(t, h); got != 2 {
		t.Errorf("pinned = %d, want 2", got)
	}

	_ = h1.Close()
	_ = h2.Close()
	if got := pinned(t, h); got != 0 {
		t.Errorf("pinned = %d after closing all handles", got)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}
