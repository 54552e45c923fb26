// internal/sched/task.go

package sched

import (
	"fmt"

	"github.com/pkg/errors"
)

// Time is the integer unit every timing parameter is expressed in.
type Time int64

// Unknown marks a priority, threshold, response time or thread that has not
// been assigned yet.
const Unknown = -1

// Task represents one periodic (or sporadically periodic) task.
type Task struct {
	Name   string
	C      Time // worst-case execution time at the current frequency
	Cu     Time // worst-case execution time at the fastest frequency (DVS only)
	T      Time // outer period or minimum interarrival time
	Inner  Time // inner period between releases of a burst
	Burst  Time // burst size (n), 1 for plain periodic tasks
	D      Time // relative deadline
	J      Time // release jitter
	B      Time // blocking term
	R      Time // last computed worst-case response time
	P      int  // priority, 0 is the most urgent
	PT     int  // preemption threshold, PT <= P when meaningful
	S      int  // 1 schedulable, 0 not, -1 never analyzed
	Freq   int  // frequency level (DVS only)
	Thread int  // implementation thread after partitioning
}

// Utilization returns C/T.
func (t Task) Utilization() float64 {
	return float64(t.C) / float64(t.T)
}

// Preemptible reports whether nothing is allowed to hold off preemption of t.
func (t Task) Preemptible() bool { return t.P == t.PT }

// DivCeil is integer ceiling division.
func DivCeil(x, y Time) Time {
	if x%y == 0 {
		return x / y
	}
	return 1 + x/y
}

// DivFloor is integer division truncating toward zero.
func DivFloor(x, y Time) Time {
	return x / y
}

// mustf panics when a caller broke a precondition.
func mustf(cond bool, format string, args ...any) {
	if !cond {
		panic(errors.Errorf("sched: "+format, args...))
	}
}

func (t Task) String() string {
	return fmt.Sprintf("%s(C=%d T=%d D=%d P=%d PT=%d)", t.Name, t.C, t.T, t.D, t.P, t.PT)
}
