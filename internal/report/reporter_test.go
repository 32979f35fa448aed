package report

import (
	"bytes"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/wondertwin-ai/qverify/internal/runner"
	"github.com/wondertwin-ai/qverify/internal/testcase"
	"github.com/wondertwin-ai/qverify/internal/verify"
)

func sampleResult() *runner.SuiteResult {
	pass := runner.Outcome{
		Backend: "fixture",
		Case:    &testcase.TestCase{ID: 1, URL: "/api/User?sort=username", Category: "sort", ExpectedStatus: 200},
		Result:  &testcase.Result{StatusCode: 200, Duration: 5 * time.Millisecond},
		Verification: verify.VerificationResult{
			TestID: 1, Passed: true, Fields: map[string]any{"sort_username": []any{"alice", "bob"}},
		},
	}
	fail := runner.Outcome{
		Backend: "fixture",
		Case:    &testcase.TestCase{ID: 2, URL: "/api/User?filter=age:gt:30", Category: "filter", Description: "older users"},
		Result:  &testcase.Result{StatusCode: 200, Warnings: 1},
		Verification: verify.VerificationResult{
			TestID: 2,
			Issues: []string{"Filter field 'age' value '29' does not satisfy gt '30' (record 1)"},
		},
	}
	broken := runner.Outcome{
		Backend: "fixture",
		Case:    &testcase.TestCase{ID: 3, URL: "/api/User/1", Category: "crud"},
		Err:     errors.New("connection refused"),
	}
	skipped := runner.Outcome{
		Backend: "fixture",
		Case:    &testcase.TestCase{ID: 4, URL: "/api/User", Category: "filter"},
		Skipped: "match strategy fuzzy not supported",
	}
	return &runner.SuiteResult{
		Suite:    "users",
		Backend:  "fixture",
		Outcomes: []runner.Outcome{pass, fail, broken, skipped},
		Duration: 1500 * time.Millisecond,
	}
}

func TestParseReportSpecs(t *testing.T) {
	specs, err := ParseReportSpecs(nil)
	require.NoError(t, err)
	assert.Equal(t, []ReportSpec{{Format: ReportFormatConsole}}, specs)

	specs, err = ParseReportSpecs([]string{"console", " JSON:out/r.json ", "junit:r.xml", "excel:r.xlsx", ""})
	require.NoError(t, err)
	assert.Equal(t, []ReportSpec{
		{Format: "console"},
		{Format: "json", Path: "out/r.json"},
		{Format: "junit", Path: "r.xml"},
		{Format: "excel", Path: "r.xlsx"},
	}, specs)

	for _, bad := range []string{"json", "console:x.txt", "html:r.html", "excel:"} {
		_, err := ParseReportSpecs([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestWriteTableShowsFailuresOnly(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, sampleResult(), false)
	out := buf.String()

	assert.Contains(t, out, "Suite users on fixture")
	assert.Contains(t, out, "older users")
	assert.Contains(t, out, runner.FrameworkErrorNote)
	assert.NotContains(t, out, "/api/User?sort=username")
	assert.NotContains(t, out, "SKIP")
	assert.Contains(t, out, "1 passed, 2 failed, 1 skipped in 1.5s")
}

func TestWriteTableShowAll(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, sampleResult(), true)
	out := buf.String()

	assert.Contains(t, out, "/api/User?sort=username")
	assert.Contains(t, out, "SKIP")
	assert.Contains(t, out, "skipped: match strategy fuzzy not supported")
	for _, col := range ConsoleColumns {
		assert.Contains(t, out, col)
	}
}

func TestWriteTableNoFailures(t *testing.T) {
	res := sampleResult()
	res.Outcomes = res.Outcomes[:1]

	var buf bytes.Buffer
	WriteTable(&buf, res, false)
	assert.Contains(t, buf.String(), "No failures.")
	assert.Contains(t, buf.String(), "1 passed, 0 failed, 0 skipped")
}

func TestRow(t *testing.T) {
	row := Row(sampleResult().Outcomes[1])
	require.Len(t, row, len(ConsoleColumns))
	assert.Equal(t, []string{
		"2", "filter", "/api/User?filter=age:gt:30", "GET", "-", "older users", "200", "1/0/0", "FAIL",
		"Filter field 'age' value '29' does not satisfy gt '30' (record 1)",
	}, row)

	broken := Row(sampleResult().Outcomes[2])
	assert.Equal(t, "-", broken[6])
	assert.Equal(t, "-", broken[7])
}

func TestJSONReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.json")
	group, err := NewReporterGroup([]ReportSpec{{Format: ReportFormatJSON, Path: path}}, Options{RunID: "run-1"})
	require.NoError(t, err)
	assert.False(t, group.HasConsole())
	assert.Equal(t, "run-1", group.RunID())

	group.HandleSuiteResult(sampleResult())
	require.NoError(t, group.Flush())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc JSONReport
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "run-1", doc.RunID)
	assert.False(t, doc.Passed)
	require.Len(t, doc.Suites, 1)
	s := doc.Suites[0]
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	require.Len(t, s.Cases, 4)
	assert.Equal(t, "PASS", s.Cases[0].Result)
	assert.Equal(t, "FAIL", s.Cases[1].Result)
	assert.Len(t, s.Cases[1].Issues, 1)
	assert.Equal(t, "SKIP", s.Cases[3].Result)
}

func TestJUnitReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junit.xml")
	group, err := NewReporterGroup([]ReportSpec{{Format: ReportFormatJUnit, Path: path}}, Options{RunID: "run-2"})
	require.NoError(t, err)

	group.HandleSuiteResult(sampleResult())
	require.NoError(t, group.Flush())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "<?xml"))

	var doc junitTestSuites
	require.NoError(t, xml.Unmarshal(raw, &doc))
	assert.Equal(t, "run-2", doc.ID)
	require.Len(t, doc.Suites, 1)
	suite := doc.Suites[0]
	assert.Equal(t, "users@fixture", suite.Name)
	assert.Equal(t, 4, suite.Tests)
	assert.Equal(t, 2, suite.Failures)
	assert.Equal(t, 1, suite.Skipped)

	require.NotNil(t, suite.Cases[1].Failure)
	assert.Equal(t, "VerificationFailure", suite.Cases[1].Failure.Type)
	require.NotNil(t, suite.Cases[2].Failure)
	assert.Equal(t, "FrameworkError", suite.Cases[2].Failure.Type)
	require.NotNil(t, suite.Cases[3].Skipped)
	assert.Nil(t, suite.Cases[0].Failure)
}

func TestExcelReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	group, err := NewReporterGroup([]ReportSpec{{Format: ReportFormatExcel, Path: path}}, Options{RunID: "run-3"})
	require.NoError(t, err)

	second := sampleResult()
	second.Backend = "live/api"
	group.HandleSuiteResult(sampleResult())
	group.HandleSuiteResult(second)
	require.NoError(t, group.Flush())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"1 fixture", "2 live_api"}, f.GetSheetList())

	header, err := f.GetCellValue("1 fixture", "A1")
	require.NoError(t, err)
	assert.Equal(t, "ID", header)

	url, err := f.GetCellValue("1 fixture", "C3")
	require.NoError(t, err)
	assert.Equal(t, "/api/User?filter=age:gt:30", url)

	verdict, err := f.GetCellValue("1 fixture", "I3")
	require.NoError(t, err)
	assert.Equal(t, "FAIL", verdict)

	run, err := f.GetCellValue("1 fixture", "A8")
	require.NoError(t, err)
	assert.Equal(t, "Run: run-3", run)

	failStyle, err := f.GetCellStyle("1 fixture", "A3")
	require.NoError(t, err)
	passStyle, err := f.GetCellStyle("1 fixture", "A2")
	require.NoError(t, err)
	assert.NotEqual(t, failStyle, passStyle)
}

func TestSheetNameLimit(t *testing.T) {
	name := sheetName(0, &runner.SuiteResult{Backend: strings.Repeat("b", 40)})
	assert.Len(t, name, maxSheetName)
}

func TestConsoleReporterInGroup(t *testing.T) {
	var buf bytes.Buffer
	group, err := NewReporterGroup([]ReportSpec{{Format: ReportFormatConsole}}, Options{Out: &buf})
	require.NoError(t, err)
	assert.True(t, group.HasConsole())
	assert.NotEmpty(t, group.RunID())

	group.HandleSuiteResult(sampleResult())
	require.NoError(t, group.Flush())
	assert.Contains(t, buf.String(), "older users")
}
