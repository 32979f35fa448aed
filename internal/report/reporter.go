// Package report renders suite results: a console table, JSON, JUnit XML and
// Excel files, and an interactive one-case-at-a-time session.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/wondertwin-ai/qverify/internal/runner"
)

// Reporter consumes suite results and writes them out on Flush.
type Reporter interface {
	HandleSuiteResult(result *runner.SuiteResult)
	Flush() error
}

// ReporterGroup fans results out to several reporters.
type ReporterGroup struct {
	reporters      []Reporter
	consoleEnabled bool
	runID          string
}

func (g *ReporterGroup) HandleSuiteResult(result *runner.SuiteResult) {
	for _, reporter := range g.reporters {
		reporter.HandleSuiteResult(result)
	}
}

func (g *ReporterGroup) Flush() error {
	var firstErr error
	for _, reporter := range g.reporters {
		if err := reporter.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HasConsole reports whether a console reporter is part of the group.
func (g *ReporterGroup) HasConsole() bool {
	return g.consoleEnabled
}

// RunID is the identifier stamped on file reports.
func (g *ReporterGroup) RunID() string {
	return g.runID
}

type ReportSpec struct {
	Format string
	Path   string
}

const (
	ReportFormatConsole = "console"
	ReportFormatJSON    = "json"
	ReportFormatJUnit   = "junit"
	ReportFormatExcel   = "excel"
)

// ParseReportSpecs parses --report values of the form format[:path].
// No values means a console report.
func ParseReportSpecs(values []string) ([]ReportSpec, error) {
	if len(values) == 0 {
		return []ReportSpec{{Format: ReportFormatConsole}}, nil
	}

	specs := make([]ReportSpec, 0, len(values))
	for _, raw := range values {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}

		format := trimmed
		var path string
		if idx := strings.Index(trimmed, ":"); idx >= 0 {
			format = strings.TrimSpace(trimmed[:idx])
			path = strings.TrimSpace(trimmed[idx+1:])
		}

		format = strings.ToLower(format)

		switch format {
		case ReportFormatConsole:
			if path != "" {
				return nil, fmt.Errorf("console reporter does not accept a path")
			}
		case ReportFormatJSON, ReportFormatJUnit, ReportFormatExcel:
			if path == "" {
				return nil, fmt.Errorf("%s reporter requires a file path", format)
			}
		default:
			return nil, fmt.Errorf("unsupported report format %q", format)
		}

		specs = append(specs, ReportSpec{Format: format, Path: path})
	}

	if len(specs) == 0 {
		specs = append(specs, ReportSpec{Format: ReportFormatConsole})
	}

	return specs, nil
}

// Options configure reporters.
type Options struct {
	// ShowAll lists passing cases in the console table too.
	ShowAll bool
	// Out receives console output; defaults to stdout.
	Out io.Writer
	// RunID identifies the run in file reports; generated when empty.
	RunID string
}

// NewRunID returns a new sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

func NewReporterGroup(specs []ReportSpec, opts Options) (*ReporterGroup, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}

	reporters := make([]Reporter, 0, len(specs))
	hasConsole := false

	for _, spec := range specs {
		var reporter Reporter
		switch spec.Format {
		case ReportFormatConsole:
			reporter = newConsoleReporter(opts.Out, opts.ShowAll)
			hasConsole = true
		case ReportFormatJSON:
			reporter = newJSONReporter(spec.Path, opts.RunID)
		case ReportFormatJUnit:
			reporter = newJUnitReporter(spec.Path, opts.RunID)
		case ReportFormatExcel:
			reporter = newExcelReporter(spec.Path, opts.RunID)
		default:
			return nil, fmt.Errorf("unsupported reporter format %q", spec.Format)
		}

		reporters = append(reporters, reporter)
	}

	return &ReporterGroup{
		reporters:      reporters,
		consoleEnabled: hasConsole,
		runID:          opts.RunID,
	}, nil
}

// warningCounts renders warnings/request warnings/errors as "w/r/e".
func warningCounts(o runner.Outcome) string {
	if o.Result == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d/%d", o.Result.Warnings, o.Result.RequestWarnings, o.Result.Errors)
}

func statusText(code int) string {
	if code == 0 {
		return "-"
	}
	return fmt.Sprint(code)
}
