package taskgen

import (
	"fpsched/internal/dvs"
	"fpsched/internal/sched"
)

// special set: full-speed WCET and period (= deadline) per task
var specialTasks = []struct {
	name  string
	cu, t sched.Time
}{
	{"t0", 22, 988},
	{"t1", 32, 253},
	{"t2", 14, 169},
	{"t3", 14, 382},
	{"t4", 21, 620},
	{"t5", 77, 805},
	{"t6", 35, 472},
	{"t7", 14, 276},
	{"t8", 86, 781},
	{"t9", 84, 839},
}

// Special returns the fixed ten-task DVS reference set at full speed with
// priorities in index order, analyzed once.
func Special(levels dvs.Levels, maxResp sched.Time) *sched.TaskSet {
	ts := sched.NewTaskSet(sched.Params{
		Name:        "special task set",
		MaxTasks:    10,
		MaxSems:     25,
		MaxLocks:    25,
		MaxClusters: 10,
		Tclk:        10000,
		Analysis:    sched.Wang00Fixed,
		MaxResp:     maxResp,
	})
	for _, st := range specialTasks {
		levels.NewSimpleTask(ts, st.cu, st.t, st.t, 0, 0, levels.Max(), st.name)
	}
	ts.SetPriorities(sched.InOrder)
	ts.Feasible(true)
	return ts
}
