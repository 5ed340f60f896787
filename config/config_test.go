package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	pberrors "github.com/wippyai/pinbridge/errors"
	"github.com/wippyai/pinbridge/foreign/memheap"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *Config
		wantErr error
	}{
		{
			name:  "empty uses defaults",
			input: "",
			want:  Default(),
		},
		{
			name: "full",
			input: `
[bridge]
max-pinned = 64
max-handles = 128

[log]
level = "debug"
format = "json"

[foreign]
backend = "wasm"
module = "guest.wasm"
memory-limit-pages = 16
`,
			want: &Config{
				Bridge: Bridge{MaxPinned: 64, MaxHandles: 128},
				Log:    Log{Level: "debug", Format: "json"},
				Foreign: Foreign{
					Backend:          BackendWasm,
					Module:           "guest.wasm",
					MemoryLimitPages: 16,
				},
			},
		},
		{
			name:    "unknown key",
			input:   "[bridge]\nmax-pins = 3\n",
			wantErr: pberrors.ErrInvalidInput,
		},
		{
			name:    "bad level",
			input:   "[log]\nlevel = \"loud\"\n",
			wantErr: pberrors.ErrInvalidInput,
		},
		{
			name:    "bad format",
			input:   "[log]\nformat = \"xml\"\n",
			wantErr: pberrors.ErrInvalidInput,
		},
		{
			name:    "unknown backend",
			input:   "[foreign]\nbackend = \"jvm\"\n",
			wantErr: pberrors.ErrNotFound,
		},
		{
			name:    "wasm without module",
			input:   "[foreign]\nbackend = \"wasm\"\n",
			wantErr: pberrors.ErrInvalidInput,
		},
		{
			name:    "negative limit",
			input:   "[bridge]\nmax-pinned = -1\n",
			wantErr: pberrors.ErrInvalidInput,
		},
		{
			name:    "syntax",
			input:   "[bridge",
			wantErr: pberrors.ErrInvalidData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_UnknownKeyNamed(t *testing.T) {
	_, err := Parse("[bridge]\nmax-pins = 3\n")
	if err == nil || !strings.Contains(err.Error(), "bridge.max-pins") {
		t.Errorf("error %v does not name the key", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pinbridge.toml")
	if err := os.WriteFile(path, []byte("[bridge]\nmax-handles = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Bridge.MaxHandles != 2 {
		t.Errorf("MaxHandles = %d", cfg.Bridge.MaxHandles)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, pberrors.ErrNotFound) {
		t.Errorf("Load(missing) = %v", err)
	}
}

func TestDumpRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Bridge.MaxPinned = 9
	cfg.Foreign.Args = []string{"R", "--vanilla"}

	var buf bytes.Buffer
	if err := cfg.Dump(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := Parse(buf.String())
	if err != nil {
		t.Fatalf("Parse(dump) = %v\n%s", err, buf.String())
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	log, err := cfg.Logger()
	if err != nil {
		t.Fatal(err)
	}
	if log.Core().Enabled(-1) {
		t.Error("debug enabled at warn level")
	}
	if !log.Core().Enabled(1) {
		t.Error("warn disabled at warn level")
	}
}

func TestBridgeConfig(t *testing.T) {
	cfg := Default()
	cfg.Bridge = Bridge{MaxPinned: 3, MaxHandles: 4}
	heap := memheap.New()

	bc := cfg.BridgeConfig(heap, nil)
	if bc.Foreign != heap || bc.MaxPinned != 3 || bc.MaxHandles != 4 {
		t.Errorf("BridgeConfig = %+v", bc)
	}
}
