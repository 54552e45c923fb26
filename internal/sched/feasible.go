// internal/sched/feasible.go

package sched

import "github.com/pkg/errors"

// mustBeValid panics when the bound analysis does not apply to ts.
func (ts *TaskSet) mustBeValid() {
	if err := ts.Analysis.Check(ts); err != nil {
		panic(errors.Wrapf(err, "%s cannot analyze %s", ts.Analysis, ts.Name))
	}
}

// Feasible runs the bound analysis over every task in index order, storing R
// and S, and returns how many tasks meet their deadline. With all == false it
// stops at the first miss. A utilization above 1 short-circuits to 0.
func (ts *TaskSet) Feasible(all bool) int {
	ts.mustBeValid()

	for i := range ts.Tasks {
		ts.Tasks[i].S = 0
	}
	if ts.Utilization() > 1.0 {
		return 0
	}

	n := 0
	for i := range ts.Tasks {
		t := &ts.Tasks[i]
		t.R = ts.Analysis.ResponseTime(ts, i, 0)
		if t.R <= t.D {
			t.S = 1
			n++
		} else if !all {
			break
		}
	}
	return n
}

// IsFeasible reports whether every task meets its deadline.
func (ts *TaskSet) IsFeasible() bool {
	return ts.Feasible(false) == len(ts.Tasks)
}

// FeasibleOneTask analyzes task i alone and updates its R and S.
func (ts *TaskSet) FeasibleOneTask(i int) bool {
	ts.mustBeValid()
	ts.checkIndex(i)

	t := &ts.Tasks[i]
	t.S = 0
	if ts.Utilization() > 1.0 {
		return false
	}
	t.R = ts.Analysis.ResponseTime(ts, i, 0)
	if t.R <= t.D {
		t.S = 1
		return true
	}
	return false
}

// lateness refreshes R of task i and returns how far it overshoots D.
func (ts *TaskSet) lateness(i int) Time {
	t := &ts.Tasks[i]
	t.R = ts.Analysis.ResponseTime(ts, i, 0)
	return max(0, t.R-t.D)
}
