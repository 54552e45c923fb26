package dvs

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/sirupsen/logrus"

	"fpsched/internal/sched"
)

// Optimizer runs the frequency heuristics over one Levels table. The input
// set is never modified; every heuristic returns a feasible copy.
type Optimizer struct {
	Levels Levels
	log    *logrus.Entry
}

// NewOptimizer returns an Optimizer over levels. A nil log falls back to
// the standard logger.
func NewOptimizer(levels Levels, log *logrus.Entry) *Optimizer {
	if log == nil {
		log = logrus.WithField("component", "dvs")
	}
	return &Optimizer{Levels: levels, log: log}
}

// MPTA assigns optimal thresholds and then maximizes them.
func (o *Optimizer) MPTA(ts *sched.TaskSet) bool {
	if !ts.AssignOptimalPreemptionThresholds() {
		return false
	}
	ts.MaximizePreemptThresholds()
	return true
}

// IPTA assigns optimal thresholds only.
func (o *Optimizer) IPTA(ts *sched.TaskSet) bool {
	return ts.AssignOptimalPreemptionThresholds()
}

func (o *Optimizer) feasibleAfterSlowdown(ts *sched.TaskSet, t int) bool {
	mustf(ts.Tasks[t].Freq > o.Levels.Min(), "task %s already at the slowest level", ts.Tasks[t].Name)
	c := ts.Clone()
	o.Levels.SetLevel(c, t, c.Tasks[t].Freq-1)
	return o.MPTA(c)
}

// savedEnergy is what slowing task t down one level saves.
func (o *Optimizer) savedEnergy(ts *sched.TaskSet, t int) float64 {
	task := ts.Tasks[t]
	mustf(task.Freq > o.Levels.Min(), "task %s already at the slowest level", task.Name)
	return o.Levels.TaskEnergy(task, task.Freq) - o.Levels.TaskEnergy(task, task.Freq-1)
}

// LowestLevelForAllTasks lowers the whole set in lock-step while thresholds
// can still be found, then leaves ts at the slowest common level that
// worked, with thresholds assigned and maximized.
func (o *Optimizer) LowestLevelForAllTasks(ts *sched.TaskSet) {
	c := ts.Clone()
	var old int
	for {
		old = o.Levels.LevelOf(c)
		if old <= o.Levels.Min() {
			break
		}
		o.Levels.DecAll(c)
		if !o.MPTA(c) {
			break
		}
	}
	o.Levels.SetAllLevels(ts, old)
	o.MPTA(ts)
	o.log.WithFields(logrus.Fields{"set": ts.Name, "level": old}).Debug("common frequency level")
}

type cell struct {
	saved float64
	ts    *sched.TaskSet
}

// LowestEnergyOnSubFreq picks, among the tasks at level f, the subset whose
// slowdown to f-1 saves the most energy while thresholds can still be
// assigned. It is a 0/1 knapsack over the slowed-down execution time, with
// tasks taken from the lowest priority up. Cells hold their own copies; ts
// is not modified. Returns ts's copy unchanged when nothing can be slowed.
func (o *Optimizer) LowestEnergyOnSubFreq(ts *sched.TaskSet, f int) *sched.TaskSet {
	mustf(f > o.Levels.Min(), "no level below %d", f)
	maxTime := int(o.Levels.WCETAt(o.Levels.CuAt(ts, f), f-1))

	prev := make([]cell, maxTime+1)
	for i := range prev {
		prev[i] = cell{ts: ts}
	}

	best := cell{ts: ts}
	items := 0
	for p := ts.N() - 1; p >= 0; p-- {
		t := ts.TaskWithPri(p)
		mustf(t != -1, "no task with priority %d in %s", p, ts.Name)
		if ts.Tasks[t].Freq != f || !o.feasibleAfterSlowdown(ts, t) {
			continue
		}
		items++
		d := int(o.Levels.WCETAt(ts.Tasks[t].Cu, f-1))

		cur := make([]cell, len(prev))
		copy(cur, prev)
		for time := d; time <= maxTime; time++ {
			from := prev[time-d]
			if !o.feasibleAfterSlowdown(from.ts, t) {
				continue
			}
			saved := from.saved + o.savedEnergy(from.ts, t)
			if cur[time].saved >= saved {
				continue
			}
			next := from.ts.Clone()
			o.Levels.Dec(next, t)
			o.MPTA(next)
			cur[time] = cell{saved: saved, ts: next}
		}

		for time := 1; time <= maxTime; time++ {
			if cur[time].saved > best.saved {
				best = cur[time]
			}
		}
		prev = cur
	}

	o.log.WithFields(logrus.Fields{
		"set":      ts.Name,
		"level":    f,
		"items":    items,
		"capacity": maxTime,
		"saved":    best.saved,
	}).Debug("knapsack on frequency level")
	return best.ts.Clone()
}

// LowestLevelForEachTask repeats the knapsack on the slowest occupied level
// until no task moves further down.
func (o *Optimizer) LowestLevelForEachTask(ts *sched.TaskSet) *sched.TaskSet {
	lowest := ts.Clone()
	for {
		f := o.Levels.LowestLevel(lowest)
		if f > o.Levels.Min() {
			lowest = o.LowestEnergyOnSubFreq(lowest, f)
		}
		if f-1 < o.Levels.Min() || o.Levels.CountAt(lowest, f-1) == 0 {
			return lowest
		}
	}
}

func (o *Optimizer) mustBeFeasible(ts *sched.TaskSet, heuristic string) {
	mustf(ts.Feasible(true) == ts.N(), "%s left %s infeasible", heuristic, ts.Name)
}

// FPPTDVS assigns thresholds, finds the slowest common level and then lowers
// tasks level by level with the knapsack.
func (o *Optimizer) FPPTDVS(ts *sched.TaskSet) *sched.TaskSet {
	work := ts.Clone()
	o.mustBeFeasible(work, "input")
	o.MPTA(work)
	o.LowestLevelForAllTasks(work)
	work = o.LowestLevelForEachTask(work)

	o.mustBeFeasible(work, "FP_PTDVS")
	o.log.WithFields(logrus.Fields{"set": ts.Name, "energy": o.Levels.Energy(work)}).Info("FP_PTDVS done")
	return work
}

// EEFPPT lowers tasks one at a time, starting from the last one, to the
// slowest feasible level. The task at which the set first turns
// infeasible gets one chance to be rescued by narrowing thresholds below it
// before its level is restored.
func (o *Optimizer) EEFPPT(ts *sched.TaskSet) *sched.TaskSet {
	work := ts.Clone()
	o.mustBeFeasible(work, "input")
	if !o.IPTA(work) {
		work = ts.Clone()
		work.Feasible(true)
	}
	n := work.N()

	old := o.Levels.Min()
	i := n - 1
	for ; i >= 0; i-- {
		for work.Feasible(true) == n && work.Tasks[i].Freq != o.Levels.Min() {
			old = work.Tasks[i].Freq
			o.Levels.Dec(work, i)
		}
		if work.Feasible(true) != n {
			break
		}
	}
	if i >= 0 && !o.narrowThresholds(work, i) {
		o.Levels.SetLevel(work, i, old)
	}

	o.mustBeFeasible(work, "EE_FPPT")
	o.log.WithFields(logrus.Fields{"set": ts.Name, "energy": o.Levels.Energy(work)}).Info("EE_FPPT done")
	return work
}

// narrowThresholds lowers the thresholds of tasks below t until each is
// on time, then checks t and everything above it. On success the new
// thresholds are copied into ts.
func (o *Optimizer) narrowThresholds(ts *sched.TaskSet, t int) bool {
	c := ts.Clone()
	n := c.N()
	for p := n - 1; p > c.Tasks[t].P; p-- {
		j := c.TaskWithPri(p)
		mustf(j != -1, "no task with priority %d in %s", p, c.Name)
		ok := c.FeasibleOneTask(j)
		for !ok && c.Tasks[j].PT > 0 {
			c.Tasks[j].PT--
			ok = c.FeasibleOneTask(j)
		}
		if !ok {
			return false
		}
	}
	if c.Feasible(true) != n {
		return false
	}
	for i := range c.Tasks {
		ts.Tasks[i].PT = c.Tasks[i].PT
	}
	return true
}

type cuKey struct {
	cu sched.Time
	i  int
}

// byCuDesc orders tasks by full-speed WCET, largest first, then by index.
func byCuDesc(a, b any) int {
	ka, kb := a.(cuKey), b.(cuKey)
	switch {
	case ka.cu > kb.cu:
		return -1
	case ka.cu < kb.cu:
		return 1
	case ka.i < kb.i:
		return -1
	case ka.i > kb.i:
		return 1
	default:
		return 0
	}
}

// Greedy lowers tasks in decreasing WCET order until the set turns
// infeasible, then backs the last task off one step.
func (o *Optimizer) Greedy(ts *sched.TaskSet) *sched.TaskSet {
	work := ts.Clone()
	o.mustBeFeasible(work, "input")
	n := work.N()

	order := treemap.NewWith(byCuDesc)
	for i, t := range work.Tasks {
		order.Put(cuKey{cu: t.Cu, i: i}, i)
	}

	old := o.Levels.Max()
	for _, v := range order.Values() {
		t := v.(int)
		for work.Feasible(true) == n && work.Tasks[t].Freq != o.Levels.Min() {
			old = work.Tasks[t].Freq
			o.Levels.Dec(work, t)
		}
		if work.Feasible(true) != n {
			o.Levels.SetLevel(work, t, old)
			break
		}
	}

	o.mustBeFeasible(work, "GREEDY")
	o.log.WithFields(logrus.Fields{"set": ts.Name, "energy": o.Levels.Energy(work)}).Info("GREEDY done")
	return work
}
