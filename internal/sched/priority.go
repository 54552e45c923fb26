// internal/sched/priority.go

package sched

import (
	"fmt"
	"math"
	"math/rand"
)

// PriorityOrder names a static priority assignment policy.
type PriorityOrder int

const (
	RateMonotonic PriorityOrder = iota
	DeadlineMonotonic
	InOrder   // task i gets priority i
	ByCluster // clusters get consecutive bands, respecting barriers
)

func (o PriorityOrder) String() string {
	switch o {
	case RateMonotonic:
		return "RM"
	case DeadlineMonotonic:
		return "DM"
	case InOrder:
		return "InOrder"
	case ByCluster:
		return "ByCluster"
	default:
		return "Unknown"
	}
}

// SetPriorities assigns priorities with the given policy and, except for
// ByCluster, makes every task preemptible.
func (ts *TaskSet) SetPriorities(order PriorityOrder) {
	switch order {
	case ByCluster:
		ts.setPrioritiesByCluster()

	case InOrder:
		for i := range ts.Tasks {
			ts.Tasks[i].P = i
		}
		ts.MakeAllPreemptible()

	case RateMonotonic, DeadlineMonotonic:
		taken := make([]bool, len(ts.Tasks))
		for p := range ts.Tasks {
			best, bestKey := -1, Time(math.MaxInt64)
			for j := range ts.Tasks {
				key := ts.Tasks[j].T
				if order == DeadlineMonotonic {
					key = ts.Tasks[j].D
				}
				if !taken[j] && key < bestKey {
					best, bestKey = j, key
				}
			}
			mustf(best != -1, "no task left for priority %d", p)
			ts.Tasks[best].P = p
			taken[best] = true
		}
		ts.MakeAllPreemptible()

	default:
		panic(fmt.Sprintf("sched: unknown priority order %d", int(order)))
	}
}

// setPrioritiesByCluster walks the barrier bands from the bottom up and hands
// out priorities cluster by cluster, so cluster members are contiguous.
func (ts *TaskSet) setPrioritiesByCluster() {
	pri := len(ts.Tasks) - 1
	ts.SortTaskBarriers()
	for k := -1; k < len(ts.Barriers); k++ {
		lo := len(ts.Tasks) - 1
		if k >= 0 {
			lo = ts.Barriers[k]
		}
		hi := -1
		if k < len(ts.Barriers)-1 {
			hi = ts.Barriers[k+1]
		}
		for _, cl := range ts.Clusters {
			first := cl.Tasks[0]
			if first > lo || first <= hi {
				continue
			}
			for _, t := range cl.Tasks {
				ts.Tasks[t].P = pri
				pri--
			}
		}
	}
}

// AssignPri moves task t to newPri and shifts the tasks in between by one,
// dragging their thresholds along (clamped to the valid range).
func (ts *TaskSet) AssignPri(t, newPri int) {
	ts.assignPri(t, newPri, true)
}

// AssignOnlyPri is AssignPri without touching any threshold.
func (ts *TaskSet) AssignOnlyPri(t, newPri int) {
	ts.assignPri(t, newPri, false)
}

func (ts *TaskSet) assignPri(t, newPri int, shiftPT bool) {
	ts.checkIndex(t)
	n := len(ts.Tasks)
	mustf(newPri >= 0 && newPri < n, "priority %d out of range [0,%d)", newPri, n)

	old := ts.Tasks[t].P
	if old == newPri {
		return
	}
	for j := range ts.Tasks {
		tj := &ts.Tasks[j]
		switch {
		case newPri > old && tj.P <= newPri && tj.P > old:
			tj.P--
			if shiftPT && tj.PT > 0 {
				tj.PT--
			}
		case newPri < old && tj.P >= newPri && tj.P < old:
			tj.P++
			if shiftPT && tj.PT < n-1 {
				tj.PT++
			}
		}
	}
	ts.Tasks[t].P = newPri
}

// MakeAllPreemptible sets PT = P for every task.
func (ts *TaskSet) MakeAllPreemptible() {
	for i := range ts.Tasks {
		ts.Tasks[i].PT = ts.Tasks[i].P
	}
}

// MakeAllNonPreemptible sets every threshold to the most urgent priority.
func (ts *TaskSet) MakeAllNonPreemptible() {
	m := ts.MinPri()
	for i := range ts.Tasks {
		ts.Tasks[i].PT = m
	}
}

func (ts *TaskSet) IsAllPreemptible() bool {
	for _, t := range ts.Tasks {
		if !t.Preemptible() {
			return false
		}
	}
	return true
}

func (ts *TaskSet) IsAllNonPreemptible() bool {
	m := len(ts.Tasks) + 1
	for _, t := range ts.Tasks {
		m = min(m, t.P)
	}
	for _, t := range ts.Tasks {
		if t.PT > m {
			return false
		}
	}
	return true
}

// AssignRandomPreemptThresh draws every threshold uniformly from [0, P).
func (ts *TaskSet) AssignRandomPreemptThresh(rng *rand.Rand) {
	for i := range ts.Tasks {
		t := &ts.Tasks[i]
		if t.P == 0 {
			t.PT = 0
		} else {
			t.PT = rng.Intn(t.P)
		}
	}
}

// NewSem declares a semaphore for the priority ceiling protocol.
func (ts *TaskSet) NewSem(name string) {
	mustf(len(ts.Sems) < ts.maxSems, "too many semaphores (max %d)", ts.maxSems)
	for _, s := range ts.Sems {
		mustf(s.Name != name, "duplicate semaphore name %s", name)
	}
	ts.Sems = append(ts.Sems, Sem{Name: name, Ceiling: Unknown})
}

// NewLock records that task holds sem for at most lockTime.
func (ts *TaskSet) NewLock(sem, task string, lockTime Time) {
	mustf(lockTime >= 0, "negative lock time")
	mustf(len(ts.Locks) < ts.maxLocks, "too many locks (max %d)", ts.maxLocks)
	t := ts.FindTask(task)
	mustf(t != -1, "task %s not found", task)
	s := -1
	for i := range ts.Sems {
		if ts.Sems[i].Name == sem {
			s = i
		}
	}
	mustf(s != -1, "semaphore %s not found", sem)
	ts.Locks = append(ts.Locks, Lock{Task: t, Sem: s, LockTime: lockTime})
}

// CalculateBlockingPCP recomputes semaphore ceilings and each task's B: the
// longest critical section of a lower-priority task on a semaphore whose
// ceiling is at or above the task's priority.
func (ts *TaskSet) CalculateBlockingPCP() {
	for s := range ts.Sems {
		ceil := len(ts.Tasks) + 1
		for _, l := range ts.Locks {
			if l.Sem == s {
				ceil = min(ceil, ts.Tasks[l.Task].P)
			}
		}
		ts.Sems[s].Ceiling = ceil
	}
	for i := range ts.Tasks {
		var b Time
		for _, l := range ts.Locks {
			if ts.Sems[l.Sem].Ceiling <= ts.Tasks[i].P && ts.Tasks[l.Task].P > ts.Tasks[i].P {
				b = max(b, l.LockTime)
			}
		}
		ts.Tasks[i].B = b
	}
}

// ImplementClustersUsingLocks turns every cluster into a semaphore held by
// each member for its whole execution.
func (ts *TaskSet) ImplementClustersUsingLocks() {
	for c, cl := range ts.Clusters {
		name := fmt.Sprintf("cluster%d", c)
		ts.NewSem(name)
		for _, t := range cl.Tasks {
			ts.NewLock(name, ts.Tasks[t].Name, ts.Tasks[t].C)
		}
	}
}
