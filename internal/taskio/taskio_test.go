package taskio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpsched/internal/sched"
)

func testSet(t *testing.T) *sched.TaskSet {
	t.Helper()
	ts := sched.NewTaskSet(LoadParams(100000))
	ts.NewSimpleTask(1, 4, 4, 0, 0, "fast")
	ts.NewSimpleTask(2, 6, 5, 1, 0, "medium")
	ts.NewSimpleTask(2, 12, 12, 0, 0, "slow")
	ts.SetPriorities(sched.InOrder)
	ts.Tasks[2].PT = 1
	return ts
}

type timing struct {
	Name         string
	C, T, D, J   sched.Time
	Inner, Burst sched.Time
	P, PT        int
}

func timings(ts *sched.TaskSet) []timing {
	out := make([]timing, ts.N())
	for i, t := range ts.Tasks {
		out[i] = timing{t.Name, t.C, t.T, t.D, t.J, t.Inner, t.Burst, t.P, t.PT}
	}
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	ts := testSet(t)
	ts.Feasible(true)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ts))
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))

	got, err := Read(&buf, LoadParams(100000))
	require.NoError(t, err)
	if diff := cmp.Diff(timings(ts), timings(got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSporadicLine(t *testing.T) {
	in := `Task C T t n D J B U P S R
burst 2 100 10 3 50 0 0 0.06 0 1 6
plain 5 40 40 1 40 0 0 0.125 1 1 11
`
	ts, err := Read(strings.NewReader(in), LoadParams(100000))
	require.NoError(t, err)
	require.Equal(t, 2, ts.N())

	b := ts.Tasks[0]
	assert.Equal(t, "burst", b.Name)
	assert.Equal(t, sched.Time(10), b.Inner)
	assert.Equal(t, sched.Time(3), b.Burst)
	assert.Equal(t, sched.Time(50), b.D)
	assert.Equal(t, 0, b.PT, "the sporadic form carries no threshold")
	assert.True(t, ts.IsSporadicallyPeriodic())

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ts))
	assert.Len(t, strings.Fields(strings.Split(buf.String(), "\n")[0]), 12)
}

func TestReadDefaultBurst(t *testing.T) {
	ts, err := Read(strings.NewReader("x 1 100 10 0 100 0 0 0.01 0 1 1\n"), LoadParams(100000))
	require.NoError(t, err)
	assert.Equal(t, sched.Time(defaultBurst), ts.Tasks[0].Burst)
}

func TestReadSkipsNoise(t *testing.T) {
	in := `
# a comment line
Task C T D J U P PT S R Thr
a 1 10 10 0 0.1 0 0 1 1 0
 b 2 20 20 0 0.1 1 1 1 3 0
`
	ts, err := Read(strings.NewReader(in), LoadParams(100000))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{ts.Tasks[0].Name, ts.Tasks[1].Name})
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"duplicate", "a 1 10 10 0 0.1 0 0 1 1 0\na 1 10 10 0 0.1 1 1 1 1 0\n", "duplicate task a"},
		{"zero period", "a 1 0 10 0 0.1 0 0 1 1 0\n", "bad timing parameters"},
		{"negative jitter", "a 1 10 10 -2 0.1 0 0 1 1 0\n", "bad timing parameters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in), LoadParams(100000))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	p := LoadParams(100000)
	p.MaxTasks = 1
	_, err := Read(strings.NewReader("a 1 10 10 0 0.1 0 0 1 1 0\nb 1 10 10 0 0.1 1 1 1 1 0\n"), p)
	assert.ErrorContains(t, err, "more than 1 tasks")
}

func TestSaveAndLoad(t *testing.T) {
	ts := testSet(t)
	path := filepath.Join(t.TempDir(), "nested", "dir", "set.txt")
	require.NoError(t, Save(path, ts))

	got, err := Load(path, LoadParams(100000))
	require.NoError(t, err)
	assert.Equal(t, timings(ts), timings(got))

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"), LoadParams(100000))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFprint(t *testing.T) {
	ts := testSet(t)
	ts.Feasible(true)

	var buf bytes.Buffer
	Fprint(&buf, ts, nil)
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "task set "+ts.Name+"\n"))
	for _, want := range []string{"fast", "medium", "slow", "THR", "0.75000"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "CU")

	buf.Reset()
	Fprint(&buf, ts, []float64{0.5, 1.0})
	assert.Contains(t, buf.String(), "CU")
}

func TestExports(t *testing.T) {
	ts := testSet(t)

	var buf bytes.Buffer
	require.NoError(t, WriteArbdead(&buf, ts))
	assert.True(t, strings.HasPrefix(buf.String(), "parameters 1000 0 0 0 9999999\n"))
	assert.Contains(t, buf.String(), "task medium 6 6 1 5 2 1 0\n")

	buf.Reset()
	require.NoError(t, WriteSource(&buf, ts))
	assert.Contains(t, buf.String(), `ts.NewSimpleTaskWithPri(2, 12, 12, 0, 0, 2, 1, "slow")`)

	buf.Reset()
	require.NoError(t, WriteLatex(&buf, ts))
	assert.Contains(t, buf.String(), `fast& 1& 4& 4& 0& 0\\`)
	assert.True(t, strings.HasSuffix(buf.String(), "\\end{tabular}\n"))
}
