// internal/sched/analysis_threshold.go

package sched

// george is the non-preemptive test of George, Rivierre and Spuri.
type george struct{}

func (george) check(ts *TaskSet) error {
	switch {
	case !ts.IsAllNonPreemptible():
		return errNotNonPreemptible
	case ts.IsSporadicallyPeriodic():
		return errSporadic
	case ts.HasOverheads():
		return errOverheads
	case !ts.ConstraintsValid():
		return errConstraintsBroken
	}
	return nil
}

// lowerPriorityBlock is the longest a lower-priority job can hold the CPU
// after task i is released.
func (george) lowerPriorityBlock(ts *TaskSet, i int) Time {
	var b Time
	for j := range ts.Tasks {
		if ts.Tasks[j].P > ts.Tasks[i].P {
			b = max(b, ts.Tasks[j].C-1)
		}
	}
	return b
}

// busyPeriod returns the level-i busy period length. It starts at 1 since 0
// is a trivial fixed point.
func (g george) busyPeriod(ts *TaskSet, i int) Time {
	block := g.lowerPriorityBlock(ts, i)
	L := Time(1)
	for {
		old := L
		L = block
		for j := range ts.Tasks {
			if ts.Tasks[j].P <= ts.Tasks[i].P {
				L += DivCeil(old, ts.Tasks[j].T) * ts.Tasks[j].C
			}
		}
		if L == old || L >= ts.MaxResp {
			break
		}
	}
	return min(L, ts.MaxResp)
}

// start returns when the q-th job of task i starts, or -1 if it never does.
func (g george) start(ts *TaskSet, i int, q Time) Time {
	ti := &ts.Tasks[i]
	block := g.lowerPriorityBlock(ts, i)
	var w, last Time
	for {
		last = w
		w = q*ti.C + block
		for j := range ts.Tasks {
			tj := &ts.Tasks[j]
			if j != i && tj.P <= ti.P {
				w += (1 + DivFloor(last+tj.J, tj.T)) * tj.C
			}
		}
		if w == last || w <= 0 || w >= ts.MaxResp {
			break
		}
	}
	if w == last {
		return w
	}
	return -1
}

func (g george) responseTime(ts *TaskSet, i int, _ Time) Time {
	ti := &ts.Tasks[i]
	L := g.busyPeriod(ts, i)
	if L >= ts.MaxResp {
		return ts.MaxResp
	}
	Q := DivFloor(L, ti.T)

	var r Time
	for q := Time(0); q <= Q; q++ {
		w := g.start(ts, i, q)
		if w == -1 {
			return ts.MaxResp
		}
		r = max(r, w+ti.C+ti.J-q*ti.T)
	}
	if r < ts.MaxResp {
		return r
	}
	return ts.MaxResp
}

// wang is the original Wang/Saksena preemption-threshold test. It charges
// blocking with the full C and is known to under-estimate some response times.
type wang struct{}

func (wang) check(ts *TaskSet) error {
	switch {
	case ts.IsSporadicallyPeriodic():
		return errSporadic
	case ts.HasOverheads():
		return errOverheads
	case ts.HasJitter():
		return errJitter
	case ts.IsThreshLowerThanPri():
		return errThreshBelowPri
	case !ts.ConstraintsValid():
		return errConstraintsBroken
	}
	return nil
}

func (wang) block(ts *TaskSet, i int) Time {
	var b Time
	Pi := ts.Tasks[i].P
	for j := range ts.Tasks {
		tj := &ts.Tasks[j]
		if tj.PT <= Pi && Pi < tj.P {
			b = max(b, tj.C)
		}
	}
	return b
}

func (w wang) start(ts *TaskSet, i int, q Time) Time {
	ti := &ts.Tasks[i]
	block := w.block(ts, i)
	var s, prev Time
	for {
		prev = s
		s = block + (q-1)*ti.C
		for j := range ts.Tasks {
			tj := &ts.Tasks[j]
			if tj.P < ti.P {
				s += (1 + DivFloor(prev, tj.T)) * tj.C
			}
		}
		if s == prev || s >= ts.MaxResp {
			break
		}
	}
	return min(s, ts.MaxResp)
}

func (w wang) finish(ts *TaskSet, i int, q Time) Time {
	ti := &ts.Tasks[i]
	s := w.start(ts, i, q)
	if s == ts.MaxResp {
		return ts.MaxResp
	}
	var f, prev Time
	for {
		prev = f
		f = s + ti.C
		for j := range ts.Tasks {
			tj := &ts.Tasks[j]
			if tj.P < ti.PT {
				f += (DivCeil(prev, tj.T) - (1 + DivFloor(s, tj.T))) * tj.C
			}
		}
		if f == prev || f >= ts.MaxResp {
			break
		}
	}
	return min(f, ts.MaxResp)
}

func (w wang) responseTime(ts *TaskSet, i int, _ Time) Time {
	ti := &ts.Tasks[i]
	var r Time
	for q := Time(1); ; q++ {
		f := w.finish(ts, i, q)
		r = max(r, f-(q-1)*ti.T)
		if f <= q*ti.T {
			break
		}
	}
	if r < ts.MaxResp {
		return r
	}
	return ts.MaxResp
}

// wangFixed corrects the blocking term of wang: a blocker can only run for
// C-1 before task i is released, and equal-priority tasks can block too.
type wangFixed struct{}

func (wangFixed) check(ts *TaskSet) error {
	switch {
	case ts.IsSporadicallyPeriodic():
		return errSporadic
	case ts.HasOverheads():
		return errOverheads
	case !ts.IsPriUnique():
		return errPriNotUnique
	case ts.IsThreshLowerThanPri():
		return errThreshBelowPri
	case !ts.ConstraintsValid():
		return errConstraintsBroken
	}
	return nil
}

func (wangFixed) block(ts *TaskSet, i int) Time {
	var b Time
	Pi := ts.Tasks[i].P
	for j := range ts.Tasks {
		tj := &ts.Tasks[j]
		if j != i && tj.PT <= Pi && Pi <= tj.P {
			b = max(b, tj.C-1)
		}
	}
	return b
}

// busyPeriod uses the jittered arrival count for every task at or above
// task i's priority.
func (w wangFixed) busyPeriod(ts *TaskSet, i int) Time {
	block := w.block(ts, i)
	L := Time(1)
	for {
		old := L
		L = block
		for j := range ts.Tasks {
			tj := &ts.Tasks[j]
			if tj.P <= ts.Tasks[i].P {
				L += DivCeil(old+tj.J, tj.T) * tj.C
			}
		}
		if L == old || L >= ts.MaxResp {
			break
		}
	}
	return min(L, ts.MaxResp)
}

func (w wangFixed) start(ts *TaskSet, i int, q Time) Time {
	ti := &ts.Tasks[i]
	block := w.block(ts, i)
	var s, prev Time
	for {
		prev = s
		s = block + q*ti.C
		for j := range ts.Tasks {
			tj := &ts.Tasks[j]
			if j != i && tj.P <= ti.P {
				s += (1 + DivFloor(prev+tj.J, tj.T)) * tj.C
			}
		}
		if s == prev || s >= ts.MaxResp {
			break
		}
	}
	return min(s, ts.MaxResp)
}

// maxFinishIterations guards the finish-time fixed point against cycling.
const maxFinishIterations = 100000

func (w wangFixed) finish(ts *TaskSet, i int, q Time) Time {
	ti := &ts.Tasks[i]
	s := w.start(ts, i, q)
	if s == ts.MaxResp {
		return ts.MaxResp
	}
	var f, prev Time
	for rep := 0; ; rep++ {
		mustf(rep <= maxFinishIterations, "finish time of task %s does not converge", ti.Name)
		prev = f
		f = s + ti.C
		for j := range ts.Tasks {
			tj := &ts.Tasks[j]
			if tj.P < ti.PT {
				f += (DivCeil(prev+tj.J, tj.T) - (1 + DivFloor(s+tj.J, tj.T))) * tj.C
			}
		}
		if f == prev || f >= ts.MaxResp {
			break
		}
	}
	return min(f, ts.MaxResp)
}

func (w wangFixed) responseTime(ts *TaskSet, i int, _ Time) Time {
	ti := &ts.Tasks[i]
	L := w.busyPeriod(ts, i)
	if L >= ts.MaxResp {
		return ts.MaxResp
	}
	Q := DivFloor(L, ti.T)

	var r Time
	for q := Time(0); q <= Q; q++ {
		f := w.finish(ts, i, q)
		r = max(r, f+ti.J-q*ti.T)
	}
	if r < ts.MaxResp {
		return r
	}
	return ts.MaxResp
}
