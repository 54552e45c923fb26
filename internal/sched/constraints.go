// internal/sched/constraints.go

package sched

import (
	"math/rand"
	"sort"
)

// respectLimit bounds the constraint repair loops; hitting it means the
// constraints contradict each other.
const respectLimit = 10000

// NewTaskCluster adds an empty cluster and returns its index.
func (ts *TaskSet) NewTaskCluster(name string) int {
	mustf(len(ts.Clusters) < ts.maxClusters, "too many task clusters (max %d)", ts.maxClusters)
	ts.Clusters = append(ts.Clusters, Cluster{Name: name})
	return len(ts.Clusters) - 1
}

// AddToTaskCluster puts the named task into cluster c.
func (ts *TaskSet) AddToTaskCluster(c int, task string) {
	mustf(c >= 0 && c < len(ts.Clusters), "cluster %d does not exist", c)
	cl := &ts.Clusters[c]
	for _, t := range cl.Tasks {
		mustf(ts.Tasks[t].Name != task, "task %s already in cluster %s", task, cl.Name)
	}
	t := ts.FindTask(task)
	mustf(t != -1, "task %s not found", task)
	mustf(len(cl.Tasks) < MaxTasksPerCluster, "too many tasks in cluster %s", cl.Name)
	cl.Tasks = append(cl.Tasks, t)
}

// InCluster reports whether task t belongs to a cluster. A task may belong
// to at most one.
func (ts *TaskSet) InCluster(t int) bool {
	n := 0
	for _, cl := range ts.Clusters {
		for _, x := range cl.Tasks {
			if x == t {
				n++
			}
		}
	}
	mustf(n <= 1, "task %d is in %d clusters", t, n)
	return n == 1
}

// NewTaskBarrier forbids priorities and thresholds from crossing x: tasks
// with index <= x stay at or above x and the rest stay below.
func (ts *TaskSet) NewTaskBarrier(x int) {
	ts.checkIndex(x)
	mustf(len(ts.Barriers) < MaxBarriers, "too many task barriers (max %d)", MaxBarriers)
	ts.Barriers = append(ts.Barriers, x)
}

// SortTaskBarriers orders barriers from lowest to highest priority, which is
// numerically descending.
func (ts *TaskSet) SortTaskBarriers() {
	sort.Sort(sort.Reverse(sort.IntSlice(ts.Barriers)))
}

// PutAllTasksInOneCluster makes the whole set mutually non-preemptible.
func (ts *TaskSet) PutAllTasksInOneCluster() {
	c := ts.NewTaskCluster("all")
	for _, t := range ts.Tasks {
		ts.AddToTaskCluster(c, t.Name)
	}
}

// CreateClustersForSingletons gives every unclustered task its own cluster.
func (ts *TaskSet) CreateClustersForSingletons() {
	for i := range ts.Tasks {
		if !ts.InCluster(i) {
			c := ts.NewTaskCluster(ts.Tasks[i].Name)
			ts.AddToTaskCluster(c, ts.Tasks[i].Name)
		}
	}
}

// AreAllTasksInClusters reports whether every task belongs to a cluster.
func (ts *TaskSet) AreAllTasksInClusters() bool {
	for i := range ts.Tasks {
		if !ts.InCluster(i) {
			return false
		}
	}
	return true
}

func (ts *TaskSet) HasTaskBarriers() bool { return len(ts.Barriers) > 0 }

// HasTaskClusters ignores singleton clusters, which constrain nothing.
func (ts *TaskSet) HasTaskClusters() bool {
	for _, cl := range ts.Clusters {
		if len(cl.Tasks) > 1 {
			return true
		}
	}
	return false
}

func (ts *TaskSet) HasConstraints() bool {
	return ts.HasTaskBarriers() || ts.HasTaskClusters()
}

// clusterHighest returns the most urgent (numerically smallest) priority or
// threshold of any task in cluster c.
func (ts *TaskSet) clusterHighest(c int, withPT bool) int {
	m := len(ts.Tasks) + 1
	for _, t := range ts.Clusters[c].Tasks {
		m = min(m, ts.Tasks[t].P)
		if withPT {
			m = min(m, ts.Tasks[t].PT)
		}
	}
	return m
}

// clusterLowest returns the least urgent (numerically largest) priority or
// threshold of any task in cluster c.
func (ts *TaskSet) clusterLowest(c int, withPT bool) int {
	m := 0
	for _, t := range ts.Clusters[c].Tasks {
		m = max(m, ts.Tasks[t].P)
		if withPT {
			m = max(m, ts.Tasks[t].PT)
		}
	}
	return m
}

// constraintConflict reports whether some barrier splits a cluster.
func (ts *TaskSet) constraintConflict() bool {
	for c := range ts.Clusters {
		hi, lo := ts.clusterHighest(c, true), ts.clusterLowest(c, true)
		for _, b := range ts.Barriers {
			if b >= hi && b < lo {
				return true
			}
		}
	}
	return false
}

// BarriersPermitPri reports whether task t may hold priority pri.
func (ts *TaskSet) BarriersPermitPri(t, pri int) bool {
	for _, b := range ts.Barriers {
		if b >= t && pri > b {
			return false
		}
		if b < t && pri <= b {
			return false
		}
	}
	return true
}

// ConstraintsValid checks ranges, mutual non-preemptibility inside clusters
// and barrier placement.
func (ts *TaskSet) ConstraintsValid() bool {
	n := len(ts.Tasks)
	for _, t := range ts.Tasks {
		if t.P < 0 || t.P >= n || t.PT < 0 || t.PT >= n {
			return false
		}
	}
	if ts.constraintConflict() {
		return false
	}

	for _, cl := range ts.Clusters {
		mustf(len(cl.Tasks) > 0 && len(cl.Tasks) <= n, "cluster %s has %d tasks", cl.Name, len(cl.Tasks))
		for a := 0; a < len(cl.Tasks); a++ {
			ta := &ts.Tasks[cl.Tasks[a]]
			for b := a + 1; b < len(cl.Tasks); b++ {
				tb := &ts.Tasks[cl.Tasks[b]]
				if ta.P < tb.PT || tb.P < ta.PT {
					return false
				}
			}
		}
	}

	for _, bi := range ts.Barriers {
		for j, t := range ts.Tasks {
			if j > bi && (t.P <= bi || t.PT <= bi) {
				return false
			}
			if j <= bi && (t.P > bi || t.PT > bi) {
				return false
			}
		}
	}
	return true
}

// respectBarriers moves priorities and thresholds back inside their barrier
// bands and reports whether anything changed.
func (ts *TaskSet) respectBarriers() bool {
	changed := false
	for _, bi := range ts.Barriers {
		for j := range ts.Tasks {
			if j > bi && ts.Tasks[j].P <= bi {
				ts.AssignPri(j, bi+1)
				changed = true
			}
			if j > bi && ts.Tasks[j].PT <= bi {
				ts.Tasks[j].PT = bi + 1
				changed = true
			}
			if j <= bi && ts.Tasks[j].P > bi {
				ts.AssignPri(j, bi)
				changed = true
			}
			if j <= bi && ts.Tasks[j].PT > bi {
				ts.Tasks[j].PT = bi
				changed = true
			}
		}
	}
	return changed
}

// RespectConstraints repairs cluster violations by raising thresholds, never
// by lowering priorities, then repairs barriers.
func (ts *TaskSet) RespectConstraints() {
	ts.respect(func(lo, hi int) {
		// hi's priority is above lo's threshold: raise lo's threshold.
		ts.Tasks[lo].PT = ts.Tasks[hi].P
	})
}

// RespectConstraintsRandomly repairs each cluster violation either by
// raising a threshold or by moving a priority, picked by a fair coin.
func (ts *TaskSet) RespectConstraintsRandomly(rng *rand.Rand) {
	ts.respect(func(lo, hi int) {
		if rng.Float64() < 0.5 {
			ts.Tasks[lo].PT = ts.Tasks[hi].P
		} else {
			ts.AssignPri(hi, ts.Tasks[lo].PT)
		}
	})
}

// respect loops until every cluster pair is mutually non-preemptible.
// fix is called with (lo, hi) when P[hi] < PT[lo].
func (ts *TaskSet) respect(fix func(lo, hi int)) {
	for cnt := 0; ; cnt++ {
		mustf(cnt <= respectLimit, "constraints of %s cannot be satisfied", ts.Name)
		changed := false
		for c := range ts.Clusters {
			cl := &ts.Clusters[c]
			for a := 0; a < len(cl.Tasks); a++ {
				ta := cl.Tasks[a]
				for b := a + 1; b < len(cl.Tasks); b++ {
					tb := cl.Tasks[b]
					if ts.Tasks[ta].P < ts.Tasks[tb].PT {
						fix(tb, ta)
						changed = true
					}
					if ts.Tasks[tb].P < ts.Tasks[ta].PT {
						fix(ta, tb)
						changed = true
					}
				}
			}
		}
		if ts.respectBarriers() {
			changed = true
		}
		if !changed {
			break
		}
	}
	mustf(ts.ConstraintsValid(), "constraints of %s still invalid after repair", ts.Name)
}

// npConstraintBroken reports whether task t's threshold lets it be preempted
// by a member of its own cluster.
func (ts *TaskSet) npConstraintBroken(t int) bool {
	for _, cl := range ts.Clusters {
		found := false
		for _, x := range cl.Tasks {
			if x == t {
				found = true
			}
		}
		if !found {
			continue
		}
		for _, x := range cl.Tasks {
			if x != t && ts.Tasks[t].PT > ts.Tasks[x].P {
				return true
			}
		}
	}
	return false
}

// RequiresRuntimePTSupport reports whether the current thresholds can only be
// implemented with run-time preemption threshold support, i.e. they cannot be
// realized purely by locking each cluster.
func (ts *TaskSet) RequiresRuntimePTSupport() bool {
	if !ts.AreAllTasksInClusters() {
		return true
	}
	for _, cl := range ts.Clusters {
		pt := Unknown
		for _, t := range cl.Tasks {
			if pt == Unknown {
				pt = ts.Tasks[t].PT
			}
			if ts.Tasks[t].PT != pt {
				return true
			}
		}
	}
	return false
}

// SetPreemptionThresholdsNPT gives every task in a cluster the cluster's
// highest priority as threshold.
func (ts *TaskSet) SetPreemptionThresholdsNPT() {
	for c := range ts.Clusters {
		hi := ts.clusterHighest(c, false)
		mustf(hi != len(ts.Tasks)+1, "cluster %s is empty", ts.Clusters[c].Name)
		for _, t := range ts.Clusters[c].Tasks {
			ts.Tasks[t].PT = hi
		}
	}
}

// canSwapClusters reports whether no barrier separates clusters c1 and c2.
func (ts *TaskSet) canSwapClusters(c1, c2 int) bool {
	p1 := ts.Tasks[ts.Clusters[c1].Tasks[0]].P
	p2 := ts.Tasks[ts.Clusters[c2].Tasks[0]].P
	for _, b := range ts.Barriers {
		if b < p1 && b >= p2 {
			return false
		}
		if b >= p1 && b < p2 {
			return false
		}
	}
	return true
}

// swapClusters exchanges the priority blocks of two clusters.
func (ts *TaskSet) swapClusters(c1, c2 int) {
	var p1, p2, inc1, inc2 int
	if ts.clusterLowest(c1, false) < ts.clusterLowest(c2, false) {
		p1, inc1 = ts.clusterHighest(c1, false), 1
		p2, inc2 = ts.clusterLowest(c2, false), -1
	} else {
		p1, inc1 = ts.clusterLowest(c1, false), -1
		p2, inc2 = ts.clusterHighest(c2, false), 1
	}
	for _, t := range ts.Clusters[c1].Tasks {
		ts.AssignPri(t, p2)
		p2 += inc2
	}
	for _, t := range ts.Clusters[c2].Tasks {
		ts.AssignPri(t, p1)
		p1 += inc1
	}
}

// clustersJoinable reports whether cluster j sits directly above cluster i
// with no barrier in between.
func (ts *TaskSet) clustersJoinable(i, j int) bool {
	ci, cj := &ts.Clusters[i], &ts.Clusters[j]
	adjacent := ts.Tasks[cj.Tasks[0]].PT+len(cj.Tasks) == ts.Tasks[ci.Tasks[0]].PT
	return adjacent && ts.canSwapClusters(i, j)
}

// joinMergeableClusters lifts the thresholds of every cluster marked Merge
// to those of the cluster above it.
func (ts *TaskSet) joinMergeableClusters() {
	for range ts.Clusters {
		for i := range ts.Clusters {
			if !ts.Clusters[i].Merge {
				continue
			}
			for j := range ts.Clusters {
				if ts.clustersJoinable(i, j) {
					pt := ts.Tasks[ts.Clusters[j].Tasks[0]].PT
					for _, t := range ts.Clusters[i].Tasks {
						ts.Tasks[t].PT = pt
					}
				}
			}
		}
	}
}
