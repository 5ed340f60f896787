package trace

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/pinbridge/bridge"
	pberrors "github.com/wippyai/pinbridge/errors"
	"github.com/wippyai/pinbridge/foreign/memheap"
)

func newReplayer(t *testing.T) (*Replayer, *memheap.Heap) {
	t.Helper()
	heap := memheap.New()
	b, err := bridge.New(&bridge.Config{Foreign: heap})
	require.NoError(t, err)
	return NewReplayer(b, nil), heap
}

func TestRun_Balanced(t *testing.T) {
	s, err := LoadFile("testdata/balanced.yaml")
	require.NoError(t, err)

	r, heap := newReplayer(t)
	rep, err := r.Run(s)
	require.NoError(t, err)

	require.Equal(t, len(s.Steps), rep.Steps)
	require.False(t, rep.Leaked())
	require.Equal(t, []string{"conn"}, rep.Destroyed)
	require.Equal(t, 3, rep.Collected)
	require.Equal(t, 1, heap.Len())
}

func TestRun_Leaky(t *testing.T) {
	s, err := LoadFile("testdata/leaky.yaml")
	require.NoError(t, err)

	r, heap := newReplayer(t)
	rep, err := r.Run(s)
	require.NoError(t, err)

	require.True(t, rep.Leaked())
	require.Equal(t, []string{"h"}, rep.Open)
	require.Equal(t, []string{"file"}, rep.OpenExternals)
	require.Empty(t, rep.Destroyed)

	x, ok := r.Object("x")
	require.True(t, ok)
	require.Equal(t, 1, heap.Pins(x))
}

func TestRun_UnexpectedFailure(t *testing.T) {
	s, err := Parse([]byte(`
name: bad
steps:
  - {op: alloc, name: x, type: double}
  - {op: new, name: h, object: x}
  - {op: close, handle: h}
  - {op: close, handle: h}
  - {op: collect}
`))
	require.NoError(t, err)

	r, _ := newReplayer(t)
	rep, err := r.Run(s)
	require.ErrorIs(t, err, pberrors.ErrClosed)
	require.Equal(t, 4, rep.Steps)
}

func TestRun_ExpectationNotMet(t *testing.T) {
	s, err := Parse([]byte(`
steps:
  - {op: alloc, name: x, type: double}
  - {op: new, name: h, object: x, expect: concurrency}
`))
	require.NoError(t, err)

	r, _ := newReplayer(t)
	_, err = r.Run(s)
	require.ErrorIs(t, err, pberrors.ErrInvalidData)
	require.Contains(t, err.Error(), "concurrency")
}

func TestRun_CheckMismatch(t *testing.T) {
	s, err := Parse([]byte(`
steps:
  - {op: alloc, name: x, type: double}
  - {op: new, name: h, object: x}
  - {op: check, object: x, count: 2}
`))
	require.NoError(t, err)

	r, _ := newReplayer(t)
	_, err = r.Run(s)
	require.ErrorIs(t, err, pberrors.ErrInvalidData)
	require.Contains(t, err.Error(), "count of x")
}

func TestRun_Bind(t *testing.T) {
	s, err := Parse([]byte(`
steps:
  - {op: bind, name: ghost, id: 77}
  - {op: new, name: h, object: ghost, expect: not_found}
  - {op: new, name: h, object: missing, expect: not_found}
`))
	require.NoError(t, err)

	r, _ := newReplayer(t)
	_, err = r.Run(s)
	require.NoError(t, err)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown op", "steps: [{op: explode}]"},
		{"unknown field", "steps: [{op: collect, colour: red}]"},
		{"alloc without type", "steps: [{op: alloc, name: x}]"},
		{"new without object", "steps: [{op: new, name: h}]"},
		{"reseat without handle", "steps: [{op: reseat, object: x}]"},
		{"check without count", "steps: [{op: check, object: x}]"},
		{"close without handle", "steps: [{op: close}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
		})
	}
}

func TestScript_EncodeRoundTrip(t *testing.T) {
	s, err := LoadFile("testdata/balanced.yaml")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Encode(&buf))

	back, err := Parse(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, s, back)
}
