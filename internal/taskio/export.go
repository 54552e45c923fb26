package taskio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"fpsched/internal/sched"
)

func itoa[T ~int | ~int64](v T) string { return strconv.FormatInt(int64(v), 10) }

// Fprint renders ts as a table. When scales is non-nil the frequency
// columns (Cu and the scale of each task's level) replace J and Thr.
func Fprint(w io.Writer, ts *sched.TaskSet, scales []float64) {
	fmt.Fprintf(w, "task set %s\n", ts.Name)
	fmt.Fprintf(w, "parameters  Tclk %d  Cclk %d  Cql %d  Cqs %d  analysis %s\n",
		ts.Tclk, ts.Cclk, ts.Cql, ts.Cqs, ts.Analysis)

	var (
		header []string
		rows   [][]string
		uCol   int // column holding utilization
	)
	u := func(i int) string { return fmt.Sprintf("%.5f", ts.UtilizationTask(i)) }
	switch {
	case ts.IsSporadicallyPeriodic():
		header, uCol = []string{"Task", "C", "T", "t", "n", "D", "J", "B", "U", "P", "S", "R"}, 8
		for i, t := range ts.Tasks {
			rows = append(rows, []string{t.Name, itoa(t.C), itoa(t.T), itoa(t.Inner), itoa(t.Burst), itoa(t.D),
				itoa(t.J), itoa(t.B), u(i), itoa(t.P), itoa(t.S), itoa(t.R)})
		}
	case scales != nil:
		header, uCol = []string{"Task", "C", "T", "D", "R", "U", "P", "PT", "S", "Cu", "F"}, 5
		for i, t := range ts.Tasks {
			f := "-"
			if t.Freq >= 0 && t.Freq < len(scales) {
				f = fmt.Sprintf("%.5f", scales[t.Freq])
			}
			rows = append(rows, []string{t.Name, itoa(t.C), itoa(t.T), itoa(t.D), itoa(t.R),
				u(i), itoa(t.P), itoa(t.PT), itoa(t.S), itoa(t.Cu), f})
		}
	default:
		header, uCol = []string{"Task", "C", "T", "D", "J", "U", "P", "PT", "S", "R", "Thr"}, 5
		for i, t := range ts.Tasks {
			rows = append(rows, []string{t.Name, itoa(t.C), itoa(t.T), itoa(t.D), itoa(t.J),
				u(i), itoa(t.P), itoa(t.PT), itoa(t.S), itoa(t.R), itoa(t.Thread)})
		}
	}
	footer := make([]string, len(header))
	footer[uCol] = fmt.Sprintf("%.5f", ts.Utilization())

	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.SetFooter(footer)
	table.Render()

	if len(ts.Clusters) > 0 {
		fmt.Fprintf(w, "%d task clusters\n", len(ts.Clusters))
		for i, c := range ts.Clusters {
			fmt.Fprintf(w, "task cluster %d:", i)
			for _, t := range c.Tasks {
				fmt.Fprintf(w, " %d", t)
			}
			fmt.Fprintln(w)
		}
	}
	if len(ts.Barriers) > 0 {
		fmt.Fprintf(w, "%d / %d task barriers\nbarriers at:", len(ts.Barriers), sched.MaxBarriers)
		for _, b := range ts.Barriers {
			fmt.Fprintf(w, " %d", b)
		}
		fmt.Fprintln(w)
	}
}

// WriteArbdead writes the parameter/task description read by the arbitrary
// deadline analyzer.
func WriteArbdead(w io.Writer, ts *sched.TaskSet) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "parameters %d %d %d %d 9999999\n", ts.Tclk, ts.Cclk, ts.Cql, ts.Cqs)
	for _, t := range ts.Tasks {
		fmt.Fprintf(bw, "task %s %d %d %d %d %d %d %d\n", t.Name, t.T, t.Inner, t.Burst, t.D, t.C, t.J, t.B)
	}
	return errors.Wrap(bw.Flush(), "write arbdead file")
}

// WriteSource writes Go statements that rebuild the tasks of ts on a
// variable named ts, keeping priorities and thresholds.
func WriteSource(w io.Writer, ts *sched.TaskSet) error {
	bw := bufio.NewWriter(w)
	for _, t := range ts.Tasks {
		fmt.Fprintf(bw, "ts.NewSimpleTaskWithPri(%d, %d, %d, %d, %d, %d, %d, %q)\n",
			t.C, t.T, t.D, t.J, t.B, t.P, t.PT, t.Name)
	}
	return errors.Wrap(bw.Flush(), "write source")
}

// WriteLatex writes a tabular of the timing parameters of ts.
func WriteLatex(w io.Writer, ts *sched.TaskSet) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, `\begin{tabular}{|l|r|r|r|r|r|}`)
	fmt.Fprintln(bw, `\hline`)
	fmt.Fprintln(bw, `Name& C& T& D& J& B\\`)
	fmt.Fprintln(bw, `\hline`)
	for _, t := range ts.Tasks {
		fmt.Fprintf(bw, "%s& %d& %d& %d& %d& %d\\\\\n", t.Name, t.C, t.T, t.D, t.J, t.B)
	}
	fmt.Fprintln(bw, `\hline`)
	fmt.Fprintln(bw, `\end{tabular}`)
	return errors.Wrap(bw.Flush(), "write latex")
}
