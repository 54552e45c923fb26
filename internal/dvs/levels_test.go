package dvs

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpsched/internal/sched"
)

// newDVSSet builds a full-speed DVS set with D = T and priorities in index
// order. Each entry is {Cu, T}.
func newDVSSet(t *testing.T, l Levels, tasks ...[2]sched.Time) *sched.TaskSet {
	t.Helper()
	ts := sched.NewTaskSet(sched.Params{
		Name:        t.Name(),
		MaxTasks:    len(tasks),
		MaxClusters: len(tasks),
		Tclk:        10000,
		Analysis:    sched.Wang00Fixed,
		MaxResp:     100000,
	})
	for i, c := range tasks {
		l.NewSimpleTask(ts, c[0], c[1], c[1], 0, 0, l.Max(), fmt.Sprintf("t%d", i))
	}
	ts.SetPriorities(sched.InOrder)
	return ts
}

func TestWCETAt(t *testing.T) {
	l := DefaultLevels
	assert.Equal(t, sched.Time(10), l.WCETAt(10, l.Max()))
	assert.Equal(t, sched.Time(34), l.WCETAt(10, 1))
	assert.Equal(t, sched.Time(100), l.WCETAt(10, 0))
	assert.Panics(t, func() { l.WCETAt(10, len(l)) })
}

func TestSetLevel(t *testing.T) {
	l := DefaultLevels
	ts := newDVSSet(t, l, [2]sched.Time{10, 100}, [2]sched.Time{20, 200})

	l.Dec(ts, 0)
	assert.Equal(t, l.Max()-1, ts.Tasks[0].Freq)
	assert.Equal(t, sched.Time(12), ts.Tasks[0].C)
	assert.Equal(t, sched.Time(10), ts.Tasks[0].Cu)

	l.Inc(ts, 0)
	l.Inc(ts, 0)
	assert.Equal(t, l.Max(), ts.Tasks[0].Freq)
	assert.Equal(t, sched.Time(10), ts.Tasks[0].C)

	l.SetAllLevels(ts, 0)
	assert.Equal(t, 0, l.LevelOf(ts))
	assert.Equal(t, []sched.Time{100, 200}, ts.WCETs())
	l.DecAll(ts)
	assert.Equal(t, 0, l.LowestLevel(ts))

	l.IncAll(ts)
	assert.Equal(t, 2, l.CountAt(ts, 1))
	assert.Equal(t, sched.Time(30), l.CuAt(ts, 1))
	assert.Equal(t, sched.Time(0), l.CuAt(ts, 0))
}

func TestEnergy(t *testing.T) {
	l := DefaultLevels
	ts := newDVSSet(t, l, [2]sched.Time{10, 100}, [2]sched.Time{20, 200})
	assert.InDelta(t, 30, l.Energy(ts), 1e-9)

	l.SetLevel(ts, 1, 2)
	// 40 time units at half speed
	assert.InDelta(t, 10+40*math.Pow(0.5, 3), l.Energy(ts), 1e-9)
	assert.InDelta(t, l.TaskEnergy(ts.Tasks[1], 2), 40*math.Pow(0.5, 3), 1e-9)
	assert.InDelta(t, l.Energy(ts), l.AveragePower(ts), 1e-9)

	l.SetAllLevels(ts, 0)
	assert.Equal(t, -1.0, l.AveragePower(ts), "overloaded at the slowest level")
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultLevels.Validate())
	require.NoError(t, Levels{1.0}.Validate())

	for _, l := range []Levels{nil, {0.5}, {0.5, 0.5, 1.0}, {0, 1.0}, {0.5, 1.5}} {
		assert.Error(t, l.Validate(), "%v", l)
	}
}
