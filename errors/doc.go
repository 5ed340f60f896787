// Package errors provides structured error types for the pinbridge library.
//
// Errors are categorized by Phase (which bookkeeping step failed) and Kind
// (error category). The Error type carries the foreign identity involved,
// the expected and actual foreign types for mismatches, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseReseat, errors.KindTypeMismatch).
//		Identity(uint64(id)).
//		Want("double").
//		Got("list").
//		Detail("handle declared as double").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnbalancedRelease(errors.PhaseRelease, uint64(id))
//	err := errors.Concurrency("R is busy")
//
// Kinds are matched with errors.Is against the exported sentinels:
//
//	if errors.Is(err, errors.ErrUnbalancedRelease) { ... }
package errors
