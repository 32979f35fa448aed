package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/wondertwin-ai/qverify/internal/runner"
)

const (
	patternType  = "pattern"
	patternValue = 1
	errorBgColor = "FF5900"
	skipBgColor  = "FFEB9C"
	headerColor  = "D9D9D9"

	defaultColumnWidth = 14
	maxSheetName       = 31
)

type excelReporter struct {
	path    string
	runID   string
	mu      sync.Mutex
	results []*runner.SuiteResult
}

func newExcelReporter(path, runID string) Reporter {
	return &excelReporter{path: path, runID: runID}
}

func (e *excelReporter) HandleSuiteResult(result *runner.SuiteResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, result)
}

// Flush writes one sheet per suite run, failed rows filled red and skipped
// rows yellow, with a summary block under the table.
func (e *excelReporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()

	styles, err := newExcelStyles(f)
	if err != nil {
		return err
	}

	for i, result := range e.results {
		sheet := sheetName(i, result)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("naming sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("creating sheet: %w", err)
		}
		if err := e.writeSheet(f, sheet, result, styles); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("creating excel report directory: %w", err)
	}
	if err := f.SaveAs(e.path); err != nil {
		return fmt.Errorf("writing excel report: %w", err)
	}
	return nil
}

type excelStyles struct {
	header, fail, skip int
}

func newExcelStyles(f *excelize.File) (excelStyles, error) {
	var s excelStyles
	var err error
	fill := func(color string, bold bool) (int, error) {
		return f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: bold},
			Fill: excelize.Fill{Type: patternType, Pattern: patternValue, Color: []string{color}},
		})
	}
	if s.header, err = fill(headerColor, true); err != nil {
		return s, fmt.Errorf("creating header style: %w", err)
	}
	if s.fail, err = fill(errorBgColor, false); err != nil {
		return s, fmt.Errorf("creating failure style: %w", err)
	}
	if s.skip, err = fill(skipBgColor, false); err != nil {
		return s, fmt.Errorf("creating skip style: %w", err)
	}
	return s, nil
}

func (e *excelReporter) writeSheet(f *excelize.File, sheet string, result *runner.SuiteResult, styles excelStyles) error {
	last, err := excelize.ColumnNumberToName(len(ConsoleColumns))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, defaultColumnWidth); err != nil {
		return fmt.Errorf("setting column width: %w", err)
	}

	header := make([]any, len(ConsoleColumns))
	for i, h := range ConsoleColumns {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", styles.header); err != nil {
		return err
	}

	for i, o := range result.Outcomes {
		row := i + 2
		cells := Row(o)
		values := make([]any, len(cells))
		for j, c := range cells {
			values[j] = c
		}
		values[0] = o.Case.ID

		start := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(sheet, start, &values); err != nil {
			return fmt.Errorf("writing row %d: %w", row, err)
		}

		end := fmt.Sprintf("%s%d", last, row)
		switch o.Status() {
		case runner.StatusFail:
			err = f.SetCellStyle(sheet, start, end, styles.fail)
		case runner.StatusSkip:
			err = f.SetCellStyle(sheet, start, end, styles.skip)
		}
		if err != nil {
			return err
		}
	}

	passed, failed, skipped := result.Counts()
	summaryRow := len(result.Outcomes) + 3
	summary := []string{
		"Summary",
		"Run: " + e.runID,
		fmt.Sprintf("Suite: %s on %s", result.Suite, result.Backend),
		fmt.Sprintf("Duration: %.3fs", result.Duration.Seconds()),
		fmt.Sprintf("Total: %d", len(result.Outcomes)),
		fmt.Sprintf("Passed: %d", passed),
		fmt.Sprintf("Failed: %d", failed),
		fmt.Sprintf("Skipped: %d", skipped),
	}
	for i, line := range summary {
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow+i), line); err != nil {
			return err
		}
	}
	return nil
}

var sheetNameReplacer = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")")

// sheetName builds a unique sheet name within Excel's length limit.
func sheetName(i int, result *runner.SuiteResult) string {
	name := sheetNameReplacer.Replace(fmt.Sprintf("%d %s", i+1, result.Backend))
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}
