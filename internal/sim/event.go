// internal/sim/event.go

package sim

import (
	"fpsched/internal/sched"
)

// EventKind is the type of a queued simulator event
type EventKind int

const (
	EventArrive EventKind = iota
	EventExpire
	EventRelease
	EventDeadline
)

func (k EventKind) String() string {
	switch k {
	case EventArrive:
		return "Arrive"
	case EventExpire:
		return "Expire"
	case EventRelease:
		return "Release"
	case EventDeadline:
		return "Deadline"
	default:
		return "Unknown"
	}
}

// event sits in the queue until its time comes. inst is an arena index, -1
// when the event is not about a particular job.
type event struct {
	kind EventKind
	task int
	inst int
}

// RecordKind labels a line of the execution log
type RecordKind int

const (
	RecordPri RecordKind = iota
	RecordRun
	RecordRelease
	RecordCompleted
	RecordMissed
	RecordDeadline
)

func (k RecordKind) String() string {
	switch k {
	case RecordPri:
		return "pri"
	case RecordRun:
		return "run"
	case RecordRelease:
		return "release"
	case RecordCompleted:
		return "completed"
	case RecordMissed:
		return "missed"
	case RecordDeadline:
		return "deadline"
	default:
		return "unknown"
	}
}

// Record is one line of the execution log. For RecordRun, Time..Until is
// the interval the task (or "idle") held the processor; for RecordPri, Time
// carries the priority.
type Record struct {
	Kind  RecordKind
	Task  string
	Time  sched.Time
	Until sched.Time
}

// nodeKey orders the event queue by time, then by insertion.
type nodeKey struct {
	at  sched.Time
	seq uint64
}

// cmp implements the comparator for the red-black tree ordering.
func cmp(a, b any) int {
	ka, kb := a.(nodeKey), b.(nodeKey)
	switch {
	case ka.at < kb.at:
		return -1
	case ka.at > kb.at:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}
