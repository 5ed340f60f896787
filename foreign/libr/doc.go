// Package libr drives an embedded R interpreter through libR, loaded at
// run time with purego. No cgo is involved.
//
// Identities are SEXP addresses. Pinning uses R_PreserveObject and
// R_ReleaseObject, which R tracks as a multiset, so nested pins of the
// same object need the same number of releases. R can only be initialized
// once per process and must be driven from a single OS thread; callers
// should runtime.LockOSThread before Open.
package libr
