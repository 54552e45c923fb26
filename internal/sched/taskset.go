// internal/sched/taskset.go

package sched

import (
	"math"
)

// MaxBarriers bounds the number of task barriers per set.
const MaxBarriers = 12

// MaxTasksPerCluster bounds the size of a single task cluster.
const MaxTasksPerCluster = 50

// Sem is a semaphore guarded by the priority ceiling protocol.
type Sem struct {
	Name    string
	Ceiling int
}

// Lock records that a task holds a semaphore for at most LockTime.
type Lock struct {
	Task     int // index into TaskSet.Tasks
	Sem      int // index into TaskSet.Sems
	LockTime Time
}

// Cluster is a group of tasks that must be mutually non-preemptible.
type Cluster struct {
	Name  string
	Tasks []int
	Merge bool // cluster may be joined with its neighbours when partitioning
}

// Params sizes a new TaskSet and fixes its timer overheads.
type Params struct {
	Name        string
	MaxTasks    int
	MaxSems     int
	MaxLocks    int
	MaxClusters int

	Tclk Time // timer interrupt period
	Cclk Time // timer interrupt cost
	Cql  Time // cost of moving one task to the run queue
	Cqs  Time // cost of each subsequent task moved in the same tick

	Analysis AnalysisKind
	MaxResp  Time // saturation bound meaning "infeasible"; <= 0 leaves it unset
}

// TaskSet is an ordered collection of tasks plus the constraints and analysis
// bound to them. A task's index is its identity.
type TaskSet struct {
	Name  string
	Tasks []Task

	Sems     []Sem
	Locks    []Lock
	Clusters []Cluster
	Barriers []int

	Tclk, Cclk, Cql, Cqs Time

	Analysis AnalysisKind
	MaxResp  Time

	maxTasks, maxSems, maxLocks, maxClusters int
}

// NewTaskSet creates an empty set.
func NewTaskSet(p Params) *TaskSet {
	mustf(p.MaxTasks > 0, "max tasks must be positive, got %d", p.MaxTasks)
	mustf(p.MaxSems >= 0 && p.MaxLocks >= 0 && p.MaxClusters >= 0, "negative capacity")
	mustf(p.Tclk > 0, "Tclk must be positive, got %d", p.Tclk)
	mustf(p.Cclk >= 0 && p.Cql >= 0 && p.Cqs >= 0, "negative overhead")
	mustf(p.Analysis.known(), "unknown analysis %d", int(p.Analysis))

	return &TaskSet{
		Name:        p.Name,
		Tasks:       make([]Task, 0, p.MaxTasks),
		Tclk:        p.Tclk,
		Cclk:        p.Cclk,
		Cql:         p.Cql,
		Cqs:         p.Cqs,
		Analysis:    p.Analysis,
		MaxResp:     p.MaxResp,
		maxTasks:    p.MaxTasks,
		maxSems:     p.MaxSems,
		maxLocks:    p.MaxLocks,
		maxClusters: p.MaxClusters,
	}
}

// N returns the number of tasks.
func (ts *TaskSet) N() int { return len(ts.Tasks) }

// SetAnalysis rebinds the analysis used by Feasible and friends.
func (ts *TaskSet) SetAnalysis(a AnalysisKind) {
	mustf(a.known(), "unknown analysis %d", int(a))
	ts.Analysis = a
}

// Clone returns a deep copy. Mutating the copy never affects ts.
func (ts *TaskSet) Clone() *TaskSet {
	c := *ts
	c.Tasks = make([]Task, len(ts.Tasks), cap(ts.Tasks))
	copy(c.Tasks, ts.Tasks)
	c.Sems = append([]Sem(nil), ts.Sems...)
	c.Locks = append([]Lock(nil), ts.Locks...)
	c.Barriers = append([]int(nil), ts.Barriers...)
	c.Clusters = make([]Cluster, len(ts.Clusters))
	for i, cl := range ts.Clusters {
		c.Clusters[i] = Cluster{Name: cl.Name, Merge: cl.Merge, Tasks: append([]int(nil), cl.Tasks...)}
	}
	return &c
}

// NewTask appends a task and returns its index.
func (ts *TaskSet) NewTask(C, T, inner, n, D, J, B Time, name string) int {
	mustf(C >= 0, "task %s: C must be >= 0", name)
	mustf(T > 0, "task %s: T must be > 0", name)
	mustf(inner > 0, "task %s: inner period must be > 0", name)
	mustf(n > 0, "task %s: burst size must be > 0", name)
	mustf(D > 0, "task %s: D must be > 0", name)
	mustf(J >= 0, "task %s: J must be >= 0", name)
	mustf(B >= 0, "task %s: B must be >= 0", name)
	mustf(len(ts.Tasks) < ts.maxTasks, "too many tasks (max %d)", ts.maxTasks)
	for _, t := range ts.Tasks {
		mustf(t.Name != name, "duplicate task name %s", name)
	}

	ts.Tasks = append(ts.Tasks, Task{
		Name:   name,
		C:      C,
		Cu:     C,
		T:      T,
		Inner:  inner,
		Burst:  n,
		D:      D,
		J:      J,
		B:      B,
		R:      Unknown,
		P:      Unknown,
		PT:     Unknown,
		S:      Unknown,
		Thread: Unknown,
	})
	return len(ts.Tasks) - 1
}

// NewSimpleTask appends a task that is not sporadically periodic.
func (ts *TaskSet) NewSimpleTask(C, T, D, J, B Time, name string) int {
	return ts.NewTask(C, T, T, 1, D, J, B, name)
}

// NewSimpleTaskWithPri is NewSimpleTask with priority and threshold preset.
func (ts *TaskSet) NewSimpleTaskWithPri(C, T, D, J, B Time, P, PT int, name string) int {
	i := ts.NewSimpleTask(C, T, D, J, B, name)
	ts.Tasks[i].P = P
	ts.Tasks[i].PT = PT
	return i
}

// FindTask returns the index of the named task or -1.
func (ts *TaskSet) FindTask(name string) int {
	for i := range ts.Tasks {
		if ts.Tasks[i].Name == name {
			return i
		}
	}
	return -1
}

func (ts *TaskSet) checkIndex(i int) {
	mustf(i >= 0 && i < len(ts.Tasks), "task index %d out of range [0,%d)", i, len(ts.Tasks))
}

// SetPri sets the priority of task i without touching anyone else.
func (ts *TaskSet) SetPri(i, P int) {
	ts.checkIndex(i)
	mustf(P >= 0, "priority must be >= 0, got %d", P)
	ts.Tasks[i].P = P
}

// SetPreemptThresh sets the preemption threshold of task i.
func (ts *TaskSet) SetPreemptThresh(i, PT int) {
	ts.checkIndex(i)
	mustf(PT >= 0, "threshold must be >= 0, got %d", PT)
	ts.Tasks[i].PT = PT
}

// SetWCET overwrites C of task i.
func (ts *TaskSet) SetWCET(i int, C Time) {
	ts.checkIndex(i)
	ts.Tasks[i].C = C
}

// ChangeWCET adds inc to C of task i.
func (ts *TaskSet) ChangeWCET(i int, inc Time) {
	ts.checkIndex(i)
	ts.Tasks[i].C += inc
}

// SetJitter overwrites J of task i.
func (ts *TaskSet) SetJitter(i int, J Time) {
	ts.checkIndex(i)
	ts.Tasks[i].J = J
}

// UtilizationTask returns C/T of task i.
func (ts *TaskSet) UtilizationTask(i int) float64 {
	ts.checkIndex(i)
	return ts.Tasks[i].Utilization()
}

// Utilization returns the total processor utilization.
func (ts *TaskSet) Utilization() float64 {
	var u float64
	for i := range ts.Tasks {
		u += ts.Tasks[i].Utilization()
	}
	return u
}

// NormalizeUtilization divides every C by the current utilization, which
// leaves the set near U = 1. norm is currently ignored.
func (ts *TaskSet) NormalizeUtilization(norm float64) {
	u := ts.Utilization()
	for i := range ts.Tasks {
		ts.Tasks[i].C = Time(float64(ts.Tasks[i].C) / u)
	}
}

// IsSporadicallyPeriodic reports whether some task bursts (n != 1 or t != T).
func (ts *TaskSet) IsSporadicallyPeriodic() bool {
	for _, t := range ts.Tasks {
		if t.Burst != 1 || t.Inner != t.T {
			return true
		}
	}
	return false
}

// HasOverheads reports whether any timer overhead is non-zero.
func (ts *TaskSet) HasOverheads() bool {
	return ts.Cql != 0 || ts.Cqs != 0 || ts.Cclk != 0
}

// HasJitter reports whether any task has release jitter.
func (ts *TaskSet) HasJitter() bool {
	for _, t := range ts.Tasks {
		if t.J != 0 {
			return true
		}
	}
	return false
}

// NoZeroWCET reports whether every task has C > 0.
func (ts *TaskSet) NoZeroWCET() bool {
	for _, t := range ts.Tasks {
		mustf(t.C >= 0, "task %s has negative C", t.Name)
		if t.C == 0 {
			return false
		}
	}
	return true
}

// MaxDeadline returns the largest relative deadline.
func (ts *TaskSet) MaxDeadline() Time {
	var m Time
	for _, t := range ts.Tasks {
		m = max(m, t.D)
	}
	return m
}

// WCETEqual reports whether both sets have the same task count and Cs.
func WCETEqual(a, b *TaskSet) bool {
	if a.N() != b.N() {
		return false
	}
	for i := range a.Tasks {
		if a.Tasks[i].C != b.Tasks[i].C {
			return false
		}
	}
	return true
}

// SameResponseTimes reports whether both sets agree on schedulability and,
// for schedulable tasks, on response time.
func SameResponseTimes(a, b *TaskSet) bool {
	mustf(a.N() == b.N(), "task count mismatch %d != %d", a.N(), b.N())
	for i := range a.Tasks {
		if a.Tasks[i].S != b.Tasks[i].S {
			return false
		}
		if a.Tasks[i].S == 1 && a.Tasks[i].R != b.Tasks[i].R {
			return false
		}
	}
	return true
}

// SecondWorse sums how much b's response times exceed a's.
func SecondWorse(a, b *TaskSet) Time {
	mustf(a.N() == b.N(), "task count mismatch %d != %d", a.N(), b.N())
	var bad Time
	for i := range a.Tasks {
		if d := b.Tasks[i].R - a.Tasks[i].R; d > 0 {
			bad += d
		}
	}
	return bad
}

// IsPriUnique reports whether priorities form a permutation of 0..n-1.
func (ts *TaskSet) IsPriUnique() bool {
	seen := make([]bool, len(ts.Tasks))
	for _, t := range ts.Tasks {
		if t.P < 0 || t.P >= len(ts.Tasks) || seen[t.P] {
			return false
		}
		seen[t.P] = true
	}
	return true
}

// IsThreshLowerThanPri reports whether some task has PT > P.
func (ts *TaskSet) IsThreshLowerThanPri() bool {
	for _, t := range ts.Tasks {
		if t.PT > t.P {
			return true
		}
	}
	return false
}

// MinPri returns the numerically smallest priority, or n when empty.
func (ts *TaskSet) MinPri() int {
	m := len(ts.Tasks)
	for _, t := range ts.Tasks {
		m = min(m, t.P)
	}
	return m
}

// TaskWithPri returns the index of the task holding priority p, or -1.
func (ts *TaskSet) TaskWithPri(p int) int {
	for i := range ts.Tasks {
		if ts.Tasks[i].P == p {
			return i
		}
	}
	return -1
}

// ScaleWCET sets every C to floor(orig*s). orig must have the same length.
func (ts *TaskSet) ScaleWCET(orig []Time, s float64) {
	mustf(len(orig) == len(ts.Tasks), "scale vector length mismatch")
	for i := range ts.Tasks {
		ts.Tasks[i].C = Time(math.Floor(float64(orig[i]) * s))
	}
}

// WCETs returns a copy of every task's C.
func (ts *TaskSet) WCETs() []Time {
	out := make([]Time, len(ts.Tasks))
	for i := range ts.Tasks {
		out[i] = ts.Tasks[i].C
	}
	return out
}
