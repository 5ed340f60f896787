package preserve

import (
	"go.uber.org/zap"

	"github.com/wippyai/pinbridge"
)

// Action pins or unpins an identity. handle is the raw handle stored
// with the entry; actions must not call back into the table.
type Action func(id pinbridge.Identity, handle any) error

// EventType identifies a pin table transition.
type EventType uint8

const (
	// EventPinned fires when an identity enters the table.
	EventPinned EventType = iota
	// EventAcquired fires when an existing entry's count grows.
	EventAcquired
	// EventReleased fires when an entry's count shrinks but it stays.
	EventReleased
	// EventUnpinned fires when an identity leaves the table.
	EventUnpinned
)

func (t EventType) String() string {
	switch t {
	case EventPinned:
		return "pinned"
	case EventAcquired:
		return "acquired"
	case EventReleased:
		return "released"
	case EventUnpinned:
		return "unpinned"
	default:
		return "unknown"
	}
}

// Event describes a single transition.
type Event struct {
	Identity pinbridge.Identity
	Count    int
	Type     EventType
}

// Observer receives notifications about pin table transitions.
type Observer interface {
	OnPinEvent(Event)
}

// Entry is one row of a snapshot or drain.
type Entry struct {
	Identity pinbridge.Identity
	Count    int
}

// Config configures a Table.
type Config struct {
	// Logger receives bookkeeping diagnostics. Defaults to Logger().
	Logger *zap.Logger

	// Sentinel, when set, is the immortal identity: counted like any other
	// entry but never pinned, never unpinned and never removed.
	Sentinel *pinbridge.Identity

	// MaxEntries bounds the number of distinct identities.
	// Growing past it fails with an allocation error. 0 means unbounded.
	MaxEntries int
}
