// Package capsule is the registry of host wrappers.
//
// A capsule pairs a Go payload with an optional destructor and is named by
// a small integer Handle. Handles, unlike Go pointers, may be stored in
// foreign memory and turned back into the payload later:
//
//	reg := capsule.NewRegistry(&capsule.Config{MaxCapsules: 1024})
//	h, err := reg.Wrap(capsule.KindObject, value, nil)
//	v, ok := reg.Unwrap(h)
//	reg.Drop(h) // runs the destructor
//
// Slots of dropped capsules are reused. Wrap fails with an allocation
// error once MaxCapsules live capsules exist.
package capsule
