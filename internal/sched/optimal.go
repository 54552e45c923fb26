// internal/sched/optimal.go

package sched

// AssignOptimalPri runs Audsley's bottom-up priority assignment. The set must
// be all preemptible or all non-preemptible and stays that way. Priorities
// start in index order; on failure they are left partially assigned and
// false is returned.
func (ts *TaskSet) AssignOptimalPri() bool {
	ts.mustBeValid()
	preemptible := ts.IsAllPreemptible()
	mustf(preemptible || ts.IsAllNonPreemptible(), "%s mixes preemptible and non-preemptible tasks", ts.Name)

	for j := range ts.Tasks {
		ts.Tasks[j].P = j
	}

	ordered := len(ts.Tasks) - 1
	var good bool
	for {
		good = false
		for j := range ts.Tasks {
			Pj := ts.Tasks[j].P
			if Pj > ordered || !ts.BarriersPermitPri(j, ordered) {
				continue
			}

			ts.AssignPri(j, ordered)
			if preemptible {
				ts.MakeAllPreemptible()
			} else {
				ts.MakeAllNonPreemptible()
			}
			if len(ts.Locks) > 0 {
				ts.CalculateBlockingPCP()
			}

			if ts.Analysis.ResponseTime(ts, j, ts.Tasks[j].C) <= ts.Tasks[j].D {
				ordered--
				good = true
			} else {
				ts.AssignPri(j, Pj)
			}
		}
		if ordered < 0 || !good {
			break
		}
	}

	if good {
		mustf(ts.Feasible(true) == len(ts.Tasks), "optimal priorities for %s are not feasible", ts.Name)
	}
	return good
}

// MaximizeInsensitivityOptimal binary searches the largest WCET scale in
// [1, 30] at which AssignOptimalPri still succeeds and returns a copy carrying
// the priorities found there and the original WCETs.
func (ts *TaskSet) MaximizeInsensitivityOptimal() *TaskSet {
	ts.mustBeValid()
	out := ts.Clone()
	mustf(out.IsAllPreemptible() || out.IsAllNonPreemptible(), "%s mixes preemptible and non-preemptible tasks", ts.Name)
	mustf(out.IsFeasible(), "%s is not feasible to begin with", ts.Name)

	orig := ts.WCETs()
	low, high := 1.0, 30.0
	for high-low > Thresh {
		mid := (low + high) / 2
		out.ScaleWCET(orig, mid)
		if out.AssignOptimalPri() {
			low = mid
		} else {
			high = mid
		}
	}

	out.ScaleWCET(orig, low)
	mustf(out.AssignOptimalPri(), "priorities at scale %f vanished", low)
	out.ScaleWCET(orig, 1.0)
	return out
}
