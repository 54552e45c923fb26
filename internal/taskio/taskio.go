// Package taskio reads and writes task sets in the line-oriented text
// format used by the experiment scripts, and exports them for reports.
package taskio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"fpsched/internal/sched"
)

// defaultBurst is the burst size given to sporadically periodic lines that
// declare n = 0.
const defaultBurst = 1000

// LoadParams is what a loaded set is created with.
func LoadParams(maxResp sched.Time) sched.Params {
	return sched.Params{
		Name:        "loaded_task_set",
		MaxTasks:    50,
		MaxSems:     50,
		MaxLocks:    50,
		MaxClusters: 50,
		Tclk:        1000,
		Analysis:    sched.Wang00Fixed,
		MaxResp:     maxResp,
	}
}

// Load reads the task set stored at path.
func Load(path string, p sched.Params) (*sched.TaskSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open task set %s", path)
	}
	defer f.Close()

	ts, err := Read(f, p)
	if err != nil {
		return nil, errors.Wrapf(err, "read task set %s", path)
	}
	return ts, nil
}

// Read parses one task per line. A line is either
//
//	name C T t n D J B U P S R         (sporadically periodic)
//	name C T D J U P PT S R Thr        (periodic)
//
// and anything else, such as table headers, is skipped. U, S, R and Thr are
// recomputed rather than trusted. The 12-field form carries no threshold and
// loads with PT = 0.
func Read(r io.Reader, p sched.Params) (*sched.TaskSet, error) {
	ts := sched.NewTaskSet(p)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var (
			name                     string
			C, T, t, n, D, J, B, Thr sched.Time
			U                        float64
			P, PT, S                 int
			R                        sched.Time
		)
		fields := strings.Fields(line)
		switch len(fields) {
		case 12:
			if _, err := fmt.Sscan(line, &name, &C, &T, &t, &n, &D, &J, &B, &U, &P, &S, &R); err != nil {
				continue
			}
		case 11:
			if _, err := fmt.Sscan(line, &name, &C, &T, &D, &J, &U, &P, &PT, &S, &R, &Thr); err != nil {
				continue
			}
			t, n = T, 1
		default:
			continue
		}
		if n == 0 {
			n = defaultBurst
		}
		if ts.N() >= p.MaxTasks {
			return nil, errors.Errorf("more than %d tasks", p.MaxTasks)
		}
		if ts.FindTask(name) != -1 {
			return nil, errors.Errorf("duplicate task %s", name)
		}
		if C < 0 || T <= 0 || t <= 0 || n <= 0 || D <= 0 || J < 0 || B < 0 {
			return nil, errors.Errorf("task %s: bad timing parameters", name)
		}
		i := ts.NewTask(C, T, t, n, D, J, B, name)
		ts.Tasks[i].P = P
		ts.Tasks[i].PT = PT
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan task set")
	}
	return ts, nil
}

// Write emits ts in the form Read accepts: the 12-field form when the set
// is sporadically periodic, the 11-field form otherwise.
func Write(w io.Writer, ts *sched.TaskSet) error {
	bw := bufio.NewWriter(w)
	sporadic := ts.IsSporadicallyPeriodic()
	for i, t := range ts.Tasks {
		if sporadic {
			fmt.Fprintf(bw, "%s %d %d %d %d %d %d %d %.5f %d %d %d\n",
				t.Name, t.C, t.T, t.Inner, t.Burst, t.D, t.J, t.B, ts.UtilizationTask(i), t.P, t.S, t.R)
		} else {
			fmt.Fprintf(bw, "%s %d %d %d %d %.5f %d %d %d %d %d\n",
				t.Name, t.C, t.T, t.D, t.J, ts.UtilizationTask(i), t.P, t.PT, t.S, t.R, t.Thread)
		}
	}
	return errors.Wrap(bw.Flush(), "write task set")
}

// Save writes ts to path with Write.
func Save(path string, ts *sched.TaskSet) error {
	return WriteFile(path, ts, Write)
}

// WriteFile creates path, including missing parent directories, and fills
// it with write.
func WriteFile(path string, ts *sched.TaskSet, write func(io.Writer, *sched.TaskSet) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := write(f, ts); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
