// internal/sched/thresholds.go

package sched

import (
	"sort"
)

func (ts *TaskSet) mustUsePreemptThresholds() {
	mustf(ts.Analysis.UsesPreemptThresholds(), "%s does not model preemption thresholds", ts.Analysis)
}

// AssignOptimalPreemptionThresholds gives every task, from the lowest
// priority up, the least urgent threshold at which it meets its deadline.
// Priorities must already be unique. It returns false as soon as some task
// cannot be saved even as fully non-preemptible.
func (ts *TaskSet) AssignOptimalPreemptionThresholds() bool {
	ts.mustUsePreemptThresholds()
	mustf(ts.IsPriUnique(), "%s needs unique priorities", ts.Name)
	ts.MakeAllPreemptible()

	for cur := len(ts.Tasks) - 1; cur >= 0; cur-- {
		i := ts.TaskWithPri(cur)
		t := &ts.Tasks[i]
		if ts.npConstraintBroken(i) {
			t.PT--
			mustf(t.PT >= 0, "task %s threshold underflow", t.Name)
		}
		ts.RespectConstraints()
		for ts.Analysis.ResponseTime(ts, i, 0) > t.D {
			t.PT--
			if t.PT < 0 {
				t.PT = 0
				return false
			}
		}
	}
	return true
}

// MaximizePreemptThresholds makes each threshold as urgent as possible, in
// ascending priority order, stopping at barriers or as soon as the task whose
// priority equals the new threshold would miss its deadline. The set must be
// feasible on entry and stays feasible.
func (ts *TaskSet) MaximizePreemptThresholds() {
	ts.mustUsePreemptThresholds()
	ts.mustBeValid()
	mustf(ts.NoZeroWCET(), "%s has a zero WCET", ts.Name)

	for cur := range ts.Tasks {
		for i := range ts.Tasks {
			if ts.Tasks[i].P != cur {
				continue
			}
			ts.raiseThreshold(i)
		}
	}
	mustf(ts.IsFeasible(), "%s became infeasible while maximizing thresholds", ts.Name)
}

func (ts *TaskSet) raiseThreshold(i int) {
	t := &ts.Tasks[i]
	for t.PT > 0 {
		for _, b := range ts.Barriers {
			if i > b && t.PT-1 <= b {
				return
			}
		}
		t.PT--
		for j := range ts.Tasks {
			if ts.Tasks[j].P == t.PT && ts.Analysis.ResponseTime(ts, j, 0) > ts.Tasks[j].D {
				t.PT++
				return
			}
		}
	}
}

// OptimalPartitionIntoThreads groups tasks into the fewest mutually
// non-preemptible threads, stores each task's thread and returns the count.
func (ts *TaskSet) OptimalPartitionIntoThreads() int {
	ts.mustUsePreemptThresholds()
	ts.mustBeValid()

	order := make([]int, len(ts.Tasks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ts.Tasks[order[a]].PT > ts.Tasks[order[b]].PT
	})

	threads := 0
	for k, tk := range order {
		if tk == -1 {
			continue
		}
		ts.Tasks[tk].Thread = threads
		for j := k + 1; j < len(order); j++ {
			tj := order[j]
			if tj != -1 && ts.Tasks[tj].P >= ts.Tasks[tk].PT {
				ts.Tasks[tj].Thread = threads
				order[j] = -1
			}
		}
		threads++
	}

	for k := range ts.Tasks {
		for j := range ts.Tasks {
			if j != k && ts.Tasks[k].Thread == ts.Tasks[j].Thread {
				mustf(ts.Tasks[k].P >= ts.Tasks[j].PT && ts.Tasks[j].P >= ts.Tasks[k].PT,
					"tasks %d and %d share thread %d but can preempt each other", k, j, ts.Tasks[k].Thread)
			}
		}
	}
	return threads
}

// GreedyPrioritiesAndThresholds assigns priorities band by band between
// barriers. Without run-time threshold support each band is filled with whole
// clusters; with it, the task with the largest lateness is pushed to each
// slot and thresholds are assigned afterwards. Returns whether the result is
// feasible.
func (ts *TaskSet) GreedyPrioritiesAndThresholds(ptSupport bool) bool {
	ts.SortTaskBarriers()
	ts.CreateClustersForSingletons()
	mustf(ts.AreAllTasksInClusters(), "%s has unclustered tasks", ts.Name)
	ts.SetPriorities(ByCluster)
	ts.MakeAllPreemptible()
	if ts.HasConstraints() {
		ts.RespectConstraints()
	}
	ts.mustBeValid()

	ok := ts.tryRanges(len(ts.Tasks)-1, 0, ptSupport)
	if !ok {
		return false
	}
	if ptSupport {
		return ts.IsFeasible()
	}
	mustf(ts.IsFeasible(), "greedy cluster assignment for %s is not feasible", ts.Name)
	return true
}

func (ts *TaskSet) tryRanges(bottom, bar int, ptSupport bool) bool {
	top := -1
	if bar < len(ts.Barriers) {
		top = ts.Barriers[bar]
	}
	var ok bool
	if ptSupport {
		ok = ts.tryScheduleRangePT(bottom, top, bottom)
	} else {
		ok = ts.tryScheduleRangeNPT(bottom, top, bottom)
	}
	if !ok {
		return false
	}
	if bar >= len(ts.Barriers) {
		if ptSupport {
			return ts.AssignOptimalPreemptionThresholds()
		}
		return true
	}
	return ts.tryRanges(top, bar+1, ptSupport)
}

// tryScheduleRangePT fills priorities pri, pri-1, ... top+1 with the task from
// (top, bottom] that is latest when placed there.
func (ts *TaskSet) tryScheduleRangePT(bottom, top, pri int) bool {
	mustf(bottom >= 0 && bottom < len(ts.Tasks), "range bottom %d out of range", bottom)
	mustf(top >= -1 && top < len(ts.Tasks), "range top %d out of range", top)

	for ; pri > top; pri-- {
		best, worst := -1, Time(-1)
		for i := top + 1; i <= bottom; i++ {
			if ts.Tasks[i].P > pri {
				continue
			}
			old := ts.Tasks[i].P
			ts.AssignPri(i, pri)
			if late := ts.lateness(i); late > worst {
				best, worst = i, late
			}
			ts.AssignPri(i, old)
		}
		mustf(best != -1, "no task can take priority %d", pri)
		ts.AssignPri(best, pri)
	}
	return true
}

// tryScheduleRangeNPT places whole clusters from pri upward, recursing on the
// remaining slots after each cluster that fits.
func (ts *TaskSet) tryScheduleRangeNPT(bottom, top, pri int) bool {
	mustf(bottom >= 0 && bottom < len(ts.Tasks), "range bottom %d out of range", bottom)
	mustf(top >= -1 && top < len(ts.Tasks), "range top %d out of range", top)
	if pri == top {
		return true
	}
	for c := range ts.Clusters {
		if ts.clusterLowest(c, false) > pri || ts.Clusters[c].Tasks[0] <= top {
			continue
		}
		if ts.tryScheduleCluster(c, pri) {
			return ts.tryScheduleRangeNPT(bottom, top, pri-len(ts.Clusters[c].Tasks))
		}
	}
	return false
}

// tryScheduleCluster gives cluster c the priorities pri, pri-1, ... picking
// for each slot the first member that is on time there. All members share
// the band's highest priority as threshold. Priorities are restored when
// some slot cannot be filled.
func (ts *TaskSet) tryScheduleCluster(c, pri int) bool {
	members := ts.Clusters[c].Tasks
	top := pri - (len(members) - 1)
	oldPri := make([]int, len(members))
	placed := make([]bool, len(members))
	for k, t := range members {
		ts.Tasks[t].PT = top
		oldPri[k] = ts.Tasks[t].P
	}

	next := pri
	for range members {
		found := false
		for k, t := range members {
			if placed[k] {
				continue
			}
			old := ts.Tasks[t].P
			ts.AssignOnlyPri(t, next)
			if ts.lateness(t) == 0 {
				placed[k] = true
				found = true
				break
			}
			ts.AssignOnlyPri(t, old)
		}
		if !found {
			for k, t := range members {
				ts.Tasks[t].P = oldPri[k]
			}
			return false
		}
		next--
	}
	return true
}

// ExhaustiveAssignOptimalPrioritiesAndThresholds tries every priority
// permutation and, for each, every threshold vector with PT <= P, on a copy of
// ts. Combinations the bound analysis cannot judge are skipped. It returns the
// number of feasible combinations and the number analyzed.
//
// The cost is O(n!·n!) analyses; it is only usable as a reference for a
// handful of tasks.
func (ts *TaskSet) ExhaustiveAssignOptimalPrioritiesAndThresholds() (feasible, total int) {
	work := ts.Clone()
	n := len(work.Tasks)

	var pickPT func(t int)
	pickPT = func(t int) {
		for pt := 0; pt <= work.Tasks[t].P; pt++ {
			work.Tasks[t].PT = pt
			if t < n-1 {
				pickPT(t + 1)
				continue
			}
			if !work.Analysis.Valid(work) {
				continue
			}
			total++
			if work.Feasible(false) == n {
				feasible++
			}
		}
	}

	used := make([]bool, n)
	var pickPri func(t int)
	pickPri = func(t int) {
		for p := 0; p < n; p++ {
			if used[p] {
				continue
			}
			used[p] = true
			work.Tasks[t].P = p
			if t == n-1 {
				pickPT(0)
			} else {
				pickPri(t + 1)
			}
			used[p] = false
		}
	}
	pickPri(0)
	return feasible, total
}
