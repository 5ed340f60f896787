package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/config"
	"github.com/wippyai/pinbridge/errors"
	"github.com/wippyai/pinbridge/foreign/libr"
	"github.com/wippyai/pinbridge/foreign/memheap"
	"github.com/wippyai/pinbridge/foreign/wasmheap"
)

// openForeign starts the configured backend. The returned func releases it.
func openForeign(ctx context.Context, cfg *config.Foreign, log *zap.Logger) (pinbridge.Foreign, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendMemory:
		return memheap.New(), noop, nil

	case config.BackendWasm:
		data, err := os.ReadFile(cfg.Module)
		if err != nil {
			return nil, nil, errors.Load("read "+cfg.Module, err)
		}
		h, err := wasmheap.Load(ctx, data, &wasmheap.Config{
			MemoryLimitPages: cfg.MemoryLimitPages,
			NilID:            pinbridge.Identity(cfg.NilID),
			Logger:           log.Named("wasm"),
		})
		if err != nil {
			return nil, nil, err
		}
		return h, h.Close, nil

	case config.BackendR:
		rt, err := libr.Open(&libr.Config{
			Path:   cfg.Library,
			Args:   cfg.Args,
			Logger: log.Named("libr"),
		})
		if err != nil {
			return nil, nil, err
		}
		return rt, rt.Close, nil

	default:
		return nil, nil, errors.NotFound(errors.PhaseConfig, "backend", cfg.Backend)
	}
}
