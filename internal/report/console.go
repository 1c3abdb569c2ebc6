package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"okucheck/internal/contract"
)

const (
	passMark = "✓"
	failMark = "✗"
	rule     = "============================================================"
)

// Console renders cases and the run summary as human-readable text.
type Console struct {
	w io.Writer

	succ  *color.Color
	fail  *color.Color
	gray  *color.Color
	value *color.Color
	title *color.Color
}

// NewConsole writes to w, with ANSI colors when colored is set.
func NewConsole(w io.Writer, colored bool) *Console {
	c := &Console{
		w:     w,
		succ:  color.New(color.FgGreen),
		fail:  color.New(color.FgRed),
		gray:  color.New(color.Faint),
		value: color.New(color.FgCyan),
		title: color.New(color.Bold),
	}
	for _, col := range []*color.Color{c.succ, c.fail, c.gray, c.value, c.title} {
		if colored {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Case prints one result line. It is usable as a runner observer.
func (c *Console) Case(tc *contract.TestCase) {
	mark, status, col := passMark, "PASS", c.succ
	if !tc.Passed() {
		mark, status, col = failMark, "FAIL", c.fail
	}
	_, _ = fmt.Fprintf(c.w, "%s %s: %s %s\n",
		col.Sprint(mark+" "+status),
		tc.Name,
		tc.Message,
		c.gray.Sprintf("(%.0fms)", tc.DurationMS),
	)
	if !tc.Passed() && tc.Curl != "" {
		_, _ = fmt.Fprintf(c.w, "    %s %s\n", c.gray.Sprint("↳"), c.gray.Sprint(tc.Curl))
	}
}

// Summary prints the totals block.
func (c *Console) Summary(r *contract.RunReport) {
	_, _ = fmt.Fprintf(c.w, "\n%s\n%s\n%s\n", rule, c.title.Sprint("TEST SUMMARY"), rule)
	_, _ = fmt.Fprintf(c.w, "Target:       %s (%s suite)\n", c.value.Sprint(r.BaseURL), r.Suite)
	_, _ = fmt.Fprintf(c.w, "Total Tests:  %s\n", c.value.Sprint(r.Total))
	_, _ = fmt.Fprintf(c.w, "Passed:       %s\n", c.succ.Sprint(r.Passed))

	failed := c.value.Sprint(r.Failed)
	if r.Failed > 0 {
		failed = c.fail.Sprint(r.Failed)
	}
	_, _ = fmt.Fprintf(c.w, "Failed:       %s\n", failed)
	_, _ = fmt.Fprintf(c.w, "Success Rate: %s\n", c.value.Sprintf("%.1f%%", r.SuccessRate))
	_, _ = fmt.Fprintf(c.w, "Duration:     %s\n", c.value.Sprintf("%.0fms", r.DurationMS))

	if len(r.Regressions) > 0 {
		_, _ = fmt.Fprintf(c.w, "Regressions:  %s\n", c.fail.Sprint(strings.Join(r.Regressions, ", ")))
	}

	if r.OK() {
		_, _ = fmt.Fprintln(c.w, c.succ.Sprint("\nAll tests passed!"))
		return
	}
	_, _ = fmt.Fprintln(c.w, c.fail.Sprintf("\n%d test(s) failed!", r.Failed))
}

// Report prints every case followed by the summary.
func (c *Console) Report(r *contract.RunReport) {
	for _, tc := range r.Cases {
		c.Case(tc)
	}
	c.Summary(r)
}
