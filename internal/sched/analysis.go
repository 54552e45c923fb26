// internal/sched/analysis.go

package sched

import (
	"strings"

	"github.com/pkg/errors"
)

// AnalysisKind selects one of the built-in response-time analyses.
type AnalysisKind int

const (
	Audsley92 AnalysisKind = iota
	Tindell92General
	Tindell92Restricted
	George96
	Wang00 // published preemption-threshold analysis, known to be optimistic
	Wang00Fixed
	numAnalyses
)

// analysis is what every response-time test provides.
type analysis interface {
	// check returns nil when the analysis applies to ts, or the reason it does not.
	check(ts *TaskSet) error
	responseTime(ts *TaskSet, i int, guess Time) Time
}

// analyses is indexed by AnalysisKind and never mutated.
var analyses = [numAnalyses]analysis{
	Audsley92:           audsley{},
	Tindell92General:    tindellGeneral{},
	Tindell92Restricted: tindellRestricted{},
	George96:            george{},
	Wang00:              wang{},
	Wang00Fixed:         wangFixed{},
}

func (a AnalysisKind) String() string {
	switch a {
	case Audsley92:
		return "Audsley92"
	case Tindell92General:
		return "Tindell92_general"
	case Tindell92Restricted:
		return "Tindell92_restricted"
	case George96:
		return "George96"
	case Wang00:
		return "Wang00"
	case Wang00Fixed:
		return "Wang00_fixed"
	default:
		return "Unknown"
	}
}

// aliases of analyses under the names experiment scripts use
var analysisAliases = map[string]AnalysisKind{
	"eefppt": Wang00Fixed,
}

// ParseAnalysis maps a name such as "Wang00_fixed" to its kind. Matching is
// case-insensitive and ignores underscores.
func ParseAnalysis(name string) (AnalysisKind, error) {
	norm := func(s string) string { return strings.ToLower(strings.ReplaceAll(s, "_", "")) }
	if a, ok := analysisAliases[norm(name)]; ok {
		return a, nil
	}
	for a := AnalysisKind(0); a < numAnalyses; a++ {
		if norm(a.String()) == norm(name) {
			return a, nil
		}
	}
	return 0, errors.Errorf("unknown analysis %q", name)
}

func (a AnalysisKind) known() bool { return a >= 0 && a < numAnalyses }

// UsesPreemptThresholds reports whether the analysis understands PT != P.
func (a AnalysisKind) UsesPreemptThresholds() bool {
	return a == Wang00 || a == Wang00Fixed
}

// Check explains why the analysis cannot be applied to ts, or returns nil.
func (a AnalysisKind) Check(ts *TaskSet) error {
	mustf(a.known(), "unknown analysis %d", int(a))
	if ts.MaxResp <= 0 {
		return errors.New("max_resp not set")
	}
	return analyses[a].check(ts)
}

// Valid reports whether the analysis applies to ts.
func (a AnalysisKind) Valid(ts *TaskSet) bool { return a.Check(ts) == nil }

// ResponseTime returns the worst-case response time of task i, or ts.MaxResp
// when the task cannot be shown to finish within that bound. guess seeds the
// fixed point for analyses that accept one.
func (a AnalysisKind) ResponseTime(ts *TaskSet, i int, guess Time) Time {
	mustf(a.known(), "unknown analysis %d", int(a))
	ts.checkIndex(i)
	return analyses[a].responseTime(ts, i, guess)
}

// ResponseTime runs the bound analysis for task i without touching R or S.
func (ts *TaskSet) ResponseTime(i int, guess Time) Time {
	return ts.Analysis.ResponseTime(ts, i, guess)
}

// shared applicability checks

var (
	errNotPreemptible    = errors.New("not every task is preemptible")
	errNotNonPreemptible = errors.New("not every task is non-preemptible")
	errSporadic          = errors.New("some task is sporadically periodic")
	errOverheads         = errors.New("task set has timer overheads")
	errConstraints       = errors.New("task set has clusters or barriers")
	errConstraintsBroken = errors.New("priorities or thresholds break a cluster or barrier")
	errJitter            = errors.New("task set has jitter")
	errThreshBelowPri    = errors.New("some threshold is lower than its priority")
	errPriNotUnique      = errors.New("priorities are not unique")
	errDeadlineAfterT    = errors.New("some deadline exceeds its period")
)
