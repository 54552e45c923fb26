// internal/sched/scale.go

package sched

// Thresh is the bracket width at which the critical scale search stops.
const Thresh = 0.00001

// bracket limits for FindCriticalScale. A set that is still feasible at
// maxScale (all WCETs zero, say) reports maxScale.
const (
	maxScale = 1e9
	minScale = 1e-12
)

// feasibleAtScale sets every C to floor(orig*s) and reports whether the
// whole set is feasible.
func (ts *TaskSet) feasibleAtScale(orig []Time, s float64) bool {
	ts.ScaleWCET(orig, s)
	return ts.Feasible(false) == len(ts.Tasks)
}

// FindCriticalScale returns the largest uniform WCET multiplier, to within
// Thresh, that keeps ts feasible. The WCETs of ts are restored before
// returning; the second result is a copy scaled to that multiplier.
func (ts *TaskSet) FindCriticalScale() (float64, *TaskSet) {
	orig := ts.WCETs()
	defer ts.ScaleWCET(orig, 1.0)

	low, high := 1.0, 1.0
	if ts.feasibleAtScale(orig, 1.0) {
		for {
			high *= 10
			if high >= maxScale {
				return maxScale, ts.Clone()
			}
			if !ts.feasibleAtScale(orig, high) {
				break
			}
		}
	} else {
		for {
			low *= 0.1
			if low <= minScale {
				return 0, ts.Clone()
			}
			if ts.feasibleAtScale(orig, low) {
				break
			}
		}
	}

	for high-low > Thresh {
		mid := (low + high) / 2
		if ts.feasibleAtScale(orig, mid) {
			low = mid
		} else {
			high = mid
		}
	}

	mustf(ts.feasibleAtScale(orig, low), "critical scale %f of %s is not feasible", low, ts.Name)
	return low, ts.Clone()
}

// CriticalScale is FindCriticalScale without the scaled copy.
func (ts *TaskSet) CriticalScale() float64 {
	s, _ := ts.FindCriticalScale()
	return s
}

// FeasibleAtScale reports whether ts stays feasible with every WCET scaled
// by s. The WCETs are restored before returning.
func (ts *TaskSet) FeasibleAtScale(s float64) bool {
	orig := ts.WCETs()
	defer ts.ScaleWCET(orig, 1.0)
	return ts.feasibleAtScale(orig, s)
}
