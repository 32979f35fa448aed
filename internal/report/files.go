package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/wondertwin-ai/qverify/internal/runner"
)

// JSONReport is the document written by the json reporter.
type JSONReport struct {
	RunID       string      `json:"run_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Passed      bool        `json:"passed"`
	Suites      []JSONSuite `json:"suites"`
}

type JSONSuite struct {
	Suite      string     `json:"suite"`
	Backend    string     `json:"backend"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	DurationMS int64      `json:"duration_ms"`
	Cases      []JSONCase `json:"cases"`
}

type JSONCase struct {
	ID             int            `json:"id"`
	Category       string         `json:"category,omitempty"`
	Description    string         `json:"description,omitempty"`
	Method         string         `json:"method"`
	URL            string         `json:"url"`
	ExpectedStatus int            `json:"expected_status,omitempty"`
	ActualStatus   int            `json:"actual_status,omitempty"`
	Result         string         `json:"result"`
	Issues         []string       `json:"issues,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	Fields         map[string]any `json:"fields,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
}

// BuildJSONReport converts suite results into the json report document.
func BuildJSONReport(runID string, results []*runner.SuiteResult) JSONReport {
	doc := JSONReport{RunID: runID, GeneratedAt: time.Now().UTC(), Passed: runner.AllPassed(results)}
	for _, r := range results {
		passed, failed, skipped := r.Counts()
		s := JSONSuite{
			Suite:      r.Suite,
			Backend:    r.Backend,
			Passed:     passed,
			Failed:     failed,
			Skipped:    skipped,
			DurationMS: r.Duration.Milliseconds(),
			Cases:      make([]JSONCase, 0, len(r.Outcomes)),
		}
		for _, o := range r.Outcomes {
			s.Cases = append(s.Cases, JSONCase{
				ID:             o.Case.ID,
				Category:       o.Case.Category,
				Description:    o.Case.Description,
				Method:         o.Case.HTTPMethod(),
				URL:            o.Case.URL,
				ExpectedStatus: o.Case.ExpectedStatus,
				ActualStatus:   o.ActualStatus(),
				Result:         o.Status().String(),
				Issues:         o.Issues(),
				Notes:          o.Notes(),
				Fields:         o.Verification.Fields,
				DurationMS:     o.Duration().Milliseconds(),
			})
		}
		doc.Suites = append(doc.Suites, s)
	}
	return doc
}

type jsonReporter struct {
	path    string
	runID   string
	mu      sync.Mutex
	results []*runner.SuiteResult
}

func newJSONReporter(path, runID string) Reporter {
	return &jsonReporter{path: path, runID: runID}
}

func (j *jsonReporter) HandleSuiteResult(result *runner.SuiteResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, result)
}

func (j *jsonReporter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.path == "" {
		return fmt.Errorf("json reporter missing output path")
	}

	data, err := json.MarshalIndent(BuildJSONReport(j.runID, j.results), "", "  ")
	if err != nil {
		return fmt.Errorf("serializing json report: %w", err)
	}
	return writeReportFile(j.path, "json", data)
}

type junitReporter struct {
	path    string
	runID   string
	mu      sync.Mutex
	results []*runner.SuiteResult
}

func newJUnitReporter(path, runID string) Reporter {
	return &junitReporter{path: path, runID: runID}
}

func (j *junitReporter) HandleSuiteResult(result *runner.SuiteResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, result)
}

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	ID      string           `xml:"id,attr,omitempty"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr,omitempty"`
	Data    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

func (j *junitReporter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.path == "" {
		return fmt.Errorf("junit reporter missing output path")
	}

	suites := make([]junitTestSuite, 0, len(j.results))
	for _, result := range j.results {
		suite := junitTestSuite{
			Name:  result.Suite + "@" + result.Backend,
			Tests: len(result.Outcomes),
			Time:  fmt.Sprintf("%.6f", result.Duration.Seconds()),
			Cases: make([]junitTestCase, 0, len(result.Outcomes)),
		}

		for _, o := range result.Outcomes {
			tc := junitTestCase{
				Name:      fmt.Sprintf("%d %s %s", o.Case.ID, o.Case.HTTPMethod(), o.Case.URL),
				Classname: result.Backend,
				Time:      fmt.Sprintf("%.6f", o.Duration().Seconds()),
			}

			switch o.Status() {
			case runner.StatusFail:
				failureType := "VerificationFailure"
				if o.Result == nil {
					failureType = "FrameworkError"
				}
				tc.Failure = &junitFailure{
					Message: o.Notes(),
					Type:    failureType,
					Data:    strings.Join(o.Issues(), "\n"),
				}
				suite.Failures++
			case runner.StatusSkip:
				tc.Skipped = &junitSkipped{Message: o.Skipped}
				suite.Skipped++
			}

			suite.Cases = append(suite.Cases, tc)
		}

		suites = append(suites, suite)
	}

	output := junitTestSuites{ID: j.runID, Suites: suites}
	data, err := xml.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing junit report: %w", err)
	}

	header := []byte(xml.Header)
	data = append(header, data...)
	return writeReportFile(j.path, "junit", data)
}

func writeReportFile(path, kind string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s report directory: %w", kind, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s report: %w", kind, err)
	}
	return nil
}
