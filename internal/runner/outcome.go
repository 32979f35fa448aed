package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/wondertwin-ai/qverify/internal/testcase"
	"github.com/wondertwin-ai/qverify/internal/verify"
)

// FrameworkErrorNote marks a case for which no result could be obtained.
const FrameworkErrorNote = "framework error: no result"

// Status is the verdict on one outcome.
type Status int

const (
	StatusPass Status = iota
	StatusFail
	StatusSkip
)

func (s Status) String() string {
	switch s {
	case StatusFail:
		return "FAIL"
	case StatusSkip:
		return "SKIP"
	}
	return "PASS"
}

// Outcome is the record of one case run against one backend.
type Outcome struct {
	Backend      string
	Case         *testcase.TestCase
	Result       *testcase.Result
	Verification verify.VerificationResult
	// Err is set when the request could not produce a result.
	Err error
	// Skipped explains why the case was not run.
	Skipped string
}

// StatusIssue describes a status code mismatch, or returns "".
func (o Outcome) StatusIssue() string {
	if o.Result == nil || o.Case.ExpectedStatus == 0 || o.Result.StatusCode == o.Case.ExpectedStatus {
		return ""
	}
	return fmt.Sprintf("Expected status %d but got %d", o.Case.ExpectedStatus, o.Result.StatusCode)
}

// Issues returns the status issue, if any, followed by verification issues.
func (o Outcome) Issues() []string {
	var issues []string
	if s := o.StatusIssue(); s != "" {
		issues = append(issues, s)
	}
	return append(issues, o.Verification.Issues...)
}

// Status returns the verdict.
func (o Outcome) Status() Status {
	switch {
	case o.Skipped != "":
		return StatusSkip
	case o.Err != nil, o.Result == nil:
		return StatusFail
	case len(o.Issues()) > 0:
		return StatusFail
	}
	return StatusPass
}

// Passed reports whether the case ran and passed.
func (o Outcome) Passed() bool { return o.Status() == StatusPass }

// Notes is the one-line explanation shown next to the verdict.
func (o Outcome) Notes() string {
	switch {
	case o.Skipped != "":
		return "skipped: " + o.Skipped
	case o.Err != nil:
		return fmt.Sprintf("%s (%v)", FrameworkErrorNote, o.Err)
	case o.Result == nil:
		return FrameworkErrorNote
	}
	return strings.Join(o.Issues(), "; ")
}

// ActualStatus returns the observed status code, or 0 without a result.
func (o Outcome) ActualStatus() int {
	if o.Result == nil {
		return 0
	}
	return o.Result.StatusCode
}

// Duration returns the request time, or 0 without a result.
func (o Outcome) Duration() time.Duration {
	if o.Result == nil {
		return 0
	}
	return o.Result.Duration
}

// SuiteResult records the outcome of a suite against one backend.
type SuiteResult struct {
	Suite    string
	Backend  string
	Outcomes []Outcome
	Duration time.Duration
}

// Counts tallies outcomes by status.
func (s *SuiteResult) Counts() (passed, failed, skipped int) {
	for _, o := range s.Outcomes {
		switch o.Status() {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusSkip:
			skipped++
		}
	}
	return passed, failed, skipped
}

// Passed reports whether no outcome failed.
func (s *SuiteResult) Passed() bool {
	_, failed, _ := s.Counts()
	return failed == 0
}

// AllPassed reports whether every suite result passed.
func AllPassed(results []*SuiteResult) bool {
	for _, r := range results {
		if !r.Passed() {
			return false
		}
	}
	return true
}
