package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/wondertwin-ai/qverify/internal/runner"
)

// ConsoleColumns are the table headings, in order.
var ConsoleColumns = []string{
	"ID", "Category", "URL", "Method", "Expected", "Description", "Actual", "Warnings", "Result", "Notes",
}

type consoleReporter struct {
	mu      sync.Mutex
	out     io.Writer
	showAll bool
}

func newConsoleReporter(out io.Writer, showAll bool) Reporter {
	return &consoleReporter{out: out, showAll: showAll}
}

// HandleSuiteResult prints the table for one suite run immediately.
func (c *consoleReporter) HandleSuiteResult(result *runner.SuiteResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	WriteTable(c.out, result, c.showAll)
}

func (c *consoleReporter) Flush() error { return nil }

// WriteTable renders one row per outcome. Passing and skipped cases are
// left out unless showAll is set.
func WriteTable(w io.Writer, result *runner.SuiteResult, showAll bool) {
	passed, failed, skipped := result.Counts()

	fmt.Fprintf(w, "\nSuite %s on %s\n", result.Suite, result.Backend)

	rows := 0
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(ConsoleColumns, "\t"))
	for _, o := range result.Outcomes {
		if !showAll && o.Status() != runner.StatusFail {
			continue
		}
		rows++
		fmt.Fprintln(tw, strings.Join(Row(o), "\t"))
	}
	if rows > 0 {
		tw.Flush()
	} else {
		fmt.Fprintln(w, "No failures.")
	}

	fmt.Fprintf(w, "%d passed, %d failed, %d skipped in %s\n",
		passed, failed, skipped, result.Duration.Round(time.Millisecond))
}

// Row returns the table cells for one outcome.
func Row(o runner.Outcome) []string {
	tc := o.Case
	expected := "-"
	if tc.ExpectedStatus != 0 {
		expected = fmt.Sprint(tc.ExpectedStatus)
	}
	return []string{
		fmt.Sprint(tc.ID),
		cell(tc.Category),
		tc.URL,
		tc.HTTPMethod(),
		expected,
		cell(tc.Description),
		statusText(o.ActualStatus()),
		warningCounts(o),
		o.Status().String(),
		cell(o.Notes()),
	}
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.NewReplacer("\t", " ", "\n", " ").Replace(s)
}
