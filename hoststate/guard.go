package hoststate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/pinbridge"
)

// Guard sets a pending host exception aside while bookkeeping runs.
//
//	g := hoststate.Enter(state, log)
//	defer g.Exit()
//
// Exit reports and discards anything the guarded code left pending, then
// puts the original exception back, so the caller observes exactly the
// state it had before Enter. When nothing was pending at Enter, Exit leaves
// new exceptions in place for the caller to handle.
type Guard struct {
	state  pinbridge.HostState
	saved  *pinbridge.Exception
	log    *zap.Logger
	active bool
	done   bool
}

// Enter fetches and clears the pending exception, if any.
// A nil logger discards reports.
func Enter(state pinbridge.HostState, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Guard{state: state, log: log}
	if state != nil && state.Pending() {
		g.saved = state.Fetch()
		g.active = true
	}
	return g
}

// Saved reports whether an exception was in flight at Enter.
func (g *Guard) Saved() bool {
	return g.active
}

// Exit restores the saved exception. Safe to call more than once; only
// the first call has an effect.
func (g *Guard) Exit() {
	if g.done {
		return
	}
	g.done = true
	if !g.active {
		return
	}
	if g.state.Pending() {
		Report(g.log, g.state.Fetch())
	}
	g.state.Restore(g.saved)
}

// Report logs an exception that cannot be propagated.
func Report(log *zap.Logger, exc *pinbridge.Exception) {
	if exc == nil {
		return
	}
	log.Error("exception discarded during bookkeeping",
		zap.String("type", exc.Type),
		zap.Error(exc.Value),
		zap.String("trace", fmt.Sprintf("%+v", exc.Trace)))
}
