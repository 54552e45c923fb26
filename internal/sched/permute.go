// internal/sched/permute.go

package sched

import (
	"math/rand"
)

// continueProb is the chance a permutation performs one more step.
const continueProb = 0.4

func (ts *TaskSet) permutePriOnce(rng *rand.Rand) {
	n := len(ts.Tasks)
	t := rng.Intn(n)
	switch {
	case rng.Float64() < 0.5:
		ts.AssignPri(t, rng.Intn(n))
	case rng.Float64() < 0.5:
		if ts.Tasks[t].P < n-1 {
			ts.AssignPri(t, ts.Tasks[t].P+1)
		}
	default:
		if ts.Tasks[t].P > 0 {
			ts.AssignPri(t, ts.Tasks[t].P-1)
		}
	}
}

// permuteThreshOnce may leave PT outside [0, P]; callers clamp.
func (ts *TaskSet) permuteThreshOnce(rng *rand.Rand) {
	n := len(ts.Tasks)
	t := &ts.Tasks[rng.Intn(n)]
	switch {
	case rng.Float64() < 0.5:
		t.PT = rng.Intn(n)
	case rng.Float64() < 0.5:
		t.PT++
	default:
		t.PT--
	}
}

// PermutePri applies one or more random priority moves.
func (ts *TaskSet) PermutePri(rng *rand.Rand) {
	for {
		ts.permutePriOnce(rng)
		if rng.Float64() >= continueProb {
			return
		}
	}
}

// PermutePriAndThresh mixes priority and threshold moves, then redraws any
// threshold that left [0, P].
func (ts *TaskSet) PermutePriAndThresh(rng *rand.Rand) {
	for {
		if rng.Float64() < 0.5 {
			ts.permutePriOnce(rng)
		} else {
			ts.permuteThreshOnce(rng)
		}
		if rng.Float64() >= continueProb {
			break
		}
	}
	for i := range ts.Tasks {
		t := &ts.Tasks[i]
		if t.PT > t.P || t.PT < 0 {
			if t.P == 0 {
				t.PT = 0
			} else {
				t.PT = rng.Intn(t.P)
			}
		}
		mustf(t.PT >= 0 && t.PT <= t.P, "task %s threshold %d outside [0,%d]", t.Name, t.PT, t.P)
	}
}

// RandomizePriorities shuffles priorities with n random moves and makes the
// set preemptible.
func (ts *TaskSet) RandomizePriorities(rng *rand.Rand) {
	for range ts.Tasks {
		ts.permutePriOnce(rng)
	}
	ts.MakeAllPreemptible()
}

// give up picking clusters after this many draws
const (
	pickIntraLimit = 100
	pickSwapLimit  = 250
)

// PermuteNPT perturbs a cluster-only assignment: it swaps two priorities
// inside a cluster or swaps two clusters that no barrier separates, and may
// flip a cluster's merge flag. The result never needs run-time threshold
// support.
func (ts *TaskSet) PermuteNPT(rng *rand.Rand) {
	mustf(!ts.RequiresRuntimePTSupport(), "%s needs run-time threshold support", ts.Name)
	nc := len(ts.Clusters)

	if rng.Float64() < 0.5 {
		c := -1
		for z := 0; z <= pickIntraLimit; z++ {
			if k := rng.Intn(nc); len(ts.Clusters[k].Tasks) > 1 {
				c = k
				break
			}
		}
		if c != -1 {
			cl := ts.Clusters[c].Tasks
			t1, t2 := cl[rng.Intn(len(cl))], cl[rng.Intn(len(cl))]
			mustf(ts.Tasks[t1].PT == ts.Tasks[t2].PT, "cluster %s has mixed thresholds", ts.Clusters[c].Name)
			ts.Tasks[t1].P, ts.Tasks[t2].P = ts.Tasks[t2].P, ts.Tasks[t1].P
		}
	} else {
		for z := 0; z <= pickSwapLimit; z++ {
			c1, c2 := rng.Intn(nc), rng.Intn(nc)
			if ts.canSwapClusters(c1, c2) {
				ts.swapClusters(c1, c2)
				ts.SetPreemptionThresholdsNPT()
				break
			}
		}
	}

	if rng.Float64() < 0.5 {
		ts.Clusters[rng.Intn(nc)].Merge = rng.Float64() >= 0.65
	}
	ts.joinMergeableClusters()

	mustf(!ts.RequiresRuntimePTSupport(), "%s needs run-time threshold support after permuting", ts.Name)
}
