// Package trace replays scripted handle traffic against a bridge.
//
// Scripts are YAML:
//
//	name: reseat keeps the target alive
//	steps:
//	  - {op: alloc, name: x, type: double}
//	  - {op: alloc, name: y, type: double}
//	  - {op: new, name: h, object: x}
//	  - {op: reseat, handle: h, object: y}
//	  - {op: collect}
//	  - {op: check, object: y, count: 1}
//	  - {op: close, handle: h}
//
// A step with expect must fail with that error kind. The report lists
// handles and externals the script never closed.
package trace
