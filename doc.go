// Package pinbridge shares ownership of objects living in a foreign,
// garbage-collected heap with Go code.
//
// The foreign collector cannot see Go references and Go cannot see the
// foreign object graph. The bridge keeps a side table recording, for every
// foreign object exposed to Go, how many Go handles reference it. The first
// handle pins the object in the foreign runtime, the last one to go away
// unpins it.
//
// # Architecture Overview
//
//	pinbridge/            Root package with Identity, TypeTag, Foreign and HostState
//	├── preserve/         Pin table: per-identity counts, pin/unpin transitions
//	├── bridge/           Owning context, Handle and External reference types
//	├── hoststate/        Pending-exception state and the save/restore Guard
//	├── capsule/          Registry of opaque host wrappers with destructors
//	├── embedded/         Foreign runtime status flags (initialized, busy)
//	├── foreign/          Foreign runtime backends (memheap, wasmheap, libr)
//	├── config/           TOML configuration and logger construction
//	├── trace/            Scripted bookkeeping replays for leak hunting
//	├── errors/           Structured error types
//	└── cmd/pinstat/      Leak-hunting CLI with an interactive mode
//
// # Quick Start
//
//	heap := memheap.New()
//	b, err := bridge.New(&bridge.Config{Foreign: heap})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	h, err := b.NewHandle(heap.Alloc(pinbridge.TypeReal))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close()
//
//	for id, count := range b.Protected() {
//	    fmt.Println(id, count)
//	}
//
// # Foreign Null
//
// The foreign runtime's "no object" sentinel is immortal. It is tracked in
// the table like any other identity but never pinned or unpinned.
package pinbridge
