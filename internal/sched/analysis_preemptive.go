// internal/sched/analysis_preemptive.go

package sched

// audsley is the basic busy-period test for fully preemptive, strictly
// periodic task sets with D <= T.
type audsley struct{}

func (audsley) check(ts *TaskSet) error {
	for _, t := range ts.Tasks {
		if t.D > t.T {
			return errDeadlineAfterT
		}
	}
	switch {
	case ts.IsSporadicallyPeriodic():
		return errSporadic
	case !ts.IsAllPreemptible():
		return errNotPreemptible
	case ts.HasConstraints():
		return errConstraints
	case ts.HasOverheads():
		return errOverheads
	}
	return nil
}

func (audsley) responseTime(ts *TaskSet, i int, guess Time) Time {
	ti := &ts.Tasks[i]
	resp := guess
	for {
		prev := resp
		resp = ti.C + ti.B
		for j := range ts.Tasks {
			tj := &ts.Tasks[j]
			if j != i && tj.P <= ti.P {
				resp += DivCeil(prev+tj.J, tj.T) * tj.C
			}
		}
		if resp < 0 || resp > ts.MaxResp {
			return ts.MaxResp
		}
		if resp == prev {
			return resp + ti.J
		}
	}
}

// tindellGeneral handles sporadically periodic bursts and timer tick
// overheads.
type tindellGeneral struct{}

func (tindellGeneral) check(ts *TaskSet) error {
	switch {
	case !ts.IsAllPreemptible():
		return errNotPreemptible
	case ts.HasConstraints():
		return errConstraints
	}
	return nil
}

// bursts returns the number of complete outer periods of task j that fit
// in a window of length w.
func bursts(tj *Task, w Time) Time {
	return (tj.J + w) / tj.T
}

// interference sums the higher-priority work released in a window of length w.
func (tindellGeneral) interference(ts *TaskSet, i int, w Time) Time {
	var sum Time
	for j := range ts.Tasks {
		tj := &ts.Tasks[j]
		if j == i || tj.P > ts.Tasks[i].P {
			continue
		}
		F := bursts(tj, w)
		sum += (min(tj.Burst, DivCeil(tj.J+w-F*tj.T, tj.Inner)) + F*tj.Burst) * tj.C
	}
	return sum
}

// tickOverheads charges timer interrupts plus run-queue manipulation.
func (tindellGeneral) tickOverheads(ts *TaskSet, w Time) Time {
	var K Time
	for j := range ts.Tasks {
		tj := &ts.Tasks[j]
		F := bursts(tj, w)
		K += min(DivCeil(tj.J+w-tj.T*F, tj.Inner), tj.Burst) + tj.Burst*F
	}
	L := DivCeil(w, ts.Tclk)
	return L*ts.Cclk + min(L, K)*ts.Cql + max(K-L, 0)*ts.Cqs
}

func (a tindellGeneral) window(ts *TaskSet, i int, M, m Time) Time {
	ti := &ts.Tasks[i]
	var w, last Time
	for {
		last = w
		w = (M*ti.Burst+m+1)*ti.C + ti.B + a.interference(ts, i, last) + a.tickOverheads(ts, last)
		if w == last || w <= 0 || w >= ts.MaxResp {
			break
		}
	}
	if w == last {
		return w
	}
	return ts.MaxResp
}

func (a tindellGeneral) responseTime(ts *TaskSet, i int, _ Time) Time {
	ti := &ts.Tasks[i]
	var r Time
	q := Time(0)
	for {
		M := q / ti.Burst
		m := q - M*ti.Burst
		w := a.window(ts, i, M, m)
		r = max(r, w+ti.J-m*ti.Inner-M*ti.T)

		q++
		M = q / ti.Burst
		m = q - M*ti.Burst
		if w <= M*ti.T+m*ti.Inner-ti.J || r >= ts.MaxResp {
			break
		}
	}
	if r < ts.MaxResp {
		return r
	}
	return ts.MaxResp
}

// tindellRestricted is the per-activation busy window test without bursts.
type tindellRestricted struct{}

func (tindellRestricted) check(ts *TaskSet) error {
	switch {
	case !ts.IsAllPreemptible():
		return errNotPreemptible
	case ts.IsSporadicallyPeriodic():
		return errSporadic
	case ts.HasOverheads():
		return errOverheads
	}
	return nil
}

func (tindellRestricted) window(ts *TaskSet, i int, q Time) Time {
	ti := &ts.Tasks[i]
	var w, last Time
	for {
		last = w
		w = (q+1)*ti.C + ti.B
		for j := range ts.Tasks {
			tj := &ts.Tasks[j]
			if j != i && tj.P <= ti.P {
				w += DivCeil(tj.J+last, tj.T) * tj.C
			}
		}
		if w == last || w <= 0 || w >= ts.MaxResp {
			break
		}
	}
	if w == last {
		return w
	}
	return ts.MaxResp
}

func (a tindellRestricted) responseTime(ts *TaskSet, i int, _ Time) Time {
	ti := &ts.Tasks[i]
	var r Time
	for q := Time(0); ; {
		w := a.window(ts, i, q)
		r = max(r, w+ti.J-q*ti.T)
		q++
		if w <= q*ti.T-ti.J || r >= ts.MaxResp {
			break
		}
	}
	if r < ts.MaxResp {
		return r
	}
	return ts.MaxResp
}
