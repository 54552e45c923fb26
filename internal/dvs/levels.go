// Package dvs lowers per-task processor frequency levels to save energy
// while keeping a preemption-threshold task set schedulable.
package dvs

import (
	"math"

	"github.com/pkg/errors"

	"fpsched/internal/sched"
)

// Levels is the ordered table of frequency scales. Level 0 is the slowest,
// the last level runs at full speed (1.0).
type Levels []float64

// DefaultLevels is the table used when the configuration names none.
var DefaultLevels = Levels{0.1, 0.3, 0.5, 0.7, 0.9, 1.0}

// Min is the slowest level.
func (l Levels) Min() int { return 0 }

// Max is the fastest level.
func (l Levels) Max() int { return len(l) - 1 }

func (l Levels) check(f int) {
	mustf(f >= l.Min() && f <= l.Max(), "frequency level %d outside [%d,%d]", f, l.Min(), l.Max())
}

// WCETAt is the execution time at level f of work that takes cu at full
// speed, rounded up.
func (l Levels) WCETAt(cu sched.Time, f int) sched.Time {
	l.check(f)
	return sched.Time(math.Ceil(float64(cu) / l[f]))
}

// NewTask appends a task whose full-speed WCET is cu, running at level f.
func (l Levels) NewTask(ts *sched.TaskSet, cu, T, inner, n, D, J, B sched.Time, f int, name string) int {
	i := ts.NewTask(l.WCETAt(cu, f), T, inner, n, D, J, B, name)
	ts.Tasks[i].Cu = cu
	ts.Tasks[i].Freq = f
	return i
}

// NewSimpleTask is NewTask for a plain periodic task.
func (l Levels) NewSimpleTask(ts *sched.TaskSet, cu, T, D, J, B sched.Time, f int, name string) int {
	return l.NewTask(ts, cu, T, T, 1, D, J, B, f, name)
}

// SetLevel moves task t to level f and recomputes its WCET. Nothing
// happens when t is already there.
func (l Levels) SetLevel(ts *sched.TaskSet, t, f int) {
	l.check(f)
	if ts.Tasks[t].Freq == f {
		return
	}
	ts.SetWCET(t, l.WCETAt(ts.Tasks[t].Cu, f))
	ts.Tasks[t].Freq = f
}

// Inc raises task t one level, saturating at Max.
func (l Levels) Inc(ts *sched.TaskSet, t int) {
	if f := ts.Tasks[t].Freq; f < l.Max() {
		l.SetLevel(ts, t, f+1)
	}
}

// Dec lowers task t one level, saturating at Min.
func (l Levels) Dec(ts *sched.TaskSet, t int) {
	if f := ts.Tasks[t].Freq; f > l.Min() {
		l.SetLevel(ts, t, f-1)
	}
}

// LevelOf returns the level of the whole set, read from its first task.
func (l Levels) LevelOf(ts *sched.TaskSet) int {
	mustf(ts.N() > 0, "%s is empty", ts.Name)
	return ts.Tasks[0].Freq
}

// SetAllLevels moves every task to level f. Nothing happens when the first
// task is already there.
func (l Levels) SetAllLevels(ts *sched.TaskSet, f int) {
	l.check(f)
	if l.LevelOf(ts) == f {
		return
	}
	for i := ts.N() - 1; i >= 0; i-- {
		l.SetLevel(ts, i, f)
	}
}

// IncAll raises the set one level.
func (l Levels) IncAll(ts *sched.TaskSet) {
	if f := l.LevelOf(ts); f < l.Max() {
		l.SetAllLevels(ts, f+1)
	}
}

// DecAll lowers the set one level.
func (l Levels) DecAll(ts *sched.TaskSet) {
	if f := l.LevelOf(ts); f > l.Min() {
		l.SetAllLevels(ts, f-1)
	}
}

// LowestLevel returns the slowest level any task runs at.
func (l Levels) LowestLevel(ts *sched.TaskSet) int {
	f := l.Max()
	for _, t := range ts.Tasks {
		if t.Freq < f {
			f = t.Freq
		}
	}
	return f
}

// CountAt returns how many tasks run at level f.
func (l Levels) CountAt(ts *sched.TaskSet, f int) int {
	n := 0
	for _, t := range ts.Tasks {
		if t.Freq == f {
			n++
		}
	}
	return n
}

// CuAt sums the full-speed WCETs of the tasks at level f.
func (l Levels) CuAt(ts *sched.TaskSet, f int) sched.Time {
	var sum sched.Time
	for _, t := range ts.Tasks {
		if t.Freq == f {
			sum += t.Cu
		}
	}
	return sum
}

// TaskEnergy is C·scale³ for a task at level f.
func (l Levels) TaskEnergy(t sched.Task, f int) float64 {
	l.check(f)
	return float64(l.WCETAt(t.Cu, f)) * math.Pow(l[f], 3)
}

// Energy sums C·scale³ over the set at its current levels.
func (l Levels) Energy(ts *sched.TaskSet) float64 {
	var e float64
	for _, t := range ts.Tasks {
		l.check(t.Freq)
		e += float64(t.C) * math.Pow(l[t.Freq], 3)
	}
	return e
}

// AveragePower is the per-hyperperiod energy figure of a feasible set, or
// -1 when the set is not feasible.
func (l Levels) AveragePower(ts *sched.TaskSet) float64 {
	mustf(ts.N() > 0, "%s is empty", ts.Name)
	if ts.Feasible(true) != ts.N() {
		return -1
	}
	return l.Energy(ts)
}

// Validate reports whether l is a usable table.
func (l Levels) Validate() error {
	if len(l) == 0 {
		return errors.New("empty frequency table")
	}
	if l[len(l)-1] != 1.0 {
		return errors.Errorf("fastest frequency scale is %v, want 1.0", l[len(l)-1])
	}
	for i, s := range l {
		if s <= 0 || s > 1 {
			return errors.Errorf("frequency scale %v outside (0,1]", s)
		}
		if i > 0 && s <= l[i-1] {
			return errors.Errorf("frequency scales not increasing at level %d", i)
		}
	}
	return nil
}

func mustf(cond bool, format string, args ...any) {
	if !cond {
		panic(errors.Errorf("dvs: "+format, args...))
	}
}
