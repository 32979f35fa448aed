// Package verify judges an executed query test case. Given the case and the
// result the HTTP layer observed, it checks sort order, filter conditions,
// pagination counts and CRUD expectations, and reports every violation.
//
// Verification is a pure function of its inputs: it performs no I/O and keeps
// no state between calls, so callers may verify cases concurrently.
package verify

import (
	"github.com/wondertwin-ai/qverify/internal/testcase"
)

// DefaultAPIRoot is the path segment that precedes the entity name.
const DefaultAPIRoot = "api"

// Options tune how responses are judged.
type Options struct {
	// APIRoot is the path prefix before /{Entity}; empty means DefaultAPIRoot.
	APIRoot string
	// PageAwarePagination expects a short final page instead of min(pageSize, total).
	PageAwarePagination bool
}

// VerificationResult is the outcome of verifying one test case.
type VerificationResult struct {
	TestID      int            `json:"test_id"`
	URL         string         `json:"url"`
	Description string         `json:"description,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Passed      bool           `json:"passed"`
	Issues      []string       `json:"issues,omitempty"`
}

// Verifier runs the sort, filter, pagination and CRUD checks.
type Verifier struct {
	opts Options
}

// New creates a Verifier.
func New(opts Options) *Verifier {
	if opts.APIRoot == "" {
		opts.APIRoot = DefaultAPIRoot
	}
	return &Verifier{opts: opts}
}

// Verify judges res against tc. Issues are ordered sort, filter,
// pagination, then CRUD.
func (v *Verifier) Verify(tc *testcase.TestCase, res *testcase.Result) VerificationResult {
	fe := Extract(tc, res)
	n := len(res.Data)

	var issues []string
	issues = append(issues, VerifySort(tc.Params.Sort, fe, n)...)
	issues = append(issues, VerifyFilter(tc.Params.Filter, tc.Params.Match, fe, n)...)
	issues = append(issues, VerifyPagination(tc, res, v.opts.APIRoot, v.opts.PageAwarePagination)...)
	issues = append(issues, VerifyCRUD(tc.ExpectedData, res)...)

	return VerificationResult{
		TestID:      tc.ID,
		URL:         tc.URL,
		Description: tc.Description,
		Fields:      fe.display(),
		Passed:      len(issues) == 0,
		Issues:      issues,
	}
}

// Verify judges res against tc with default options.
func Verify(tc *testcase.TestCase, res *testcase.Result) VerificationResult {
	return New(Options{}).Verify(tc, res)
}

// display flattens the extraction into prefixed keys for reports.
func (fe FieldExtraction) display() map[string]any {
	out := make(map[string]any, len(fe.SortFields)+len(fe.FilterFields)+len(fe.ViewFields))
	for k, v := range fe.SortFields {
		out["sort_"+k] = v
	}
	for k, v := range fe.FilterFields {
		out["filter_"+k] = v
	}
	for k, v := range fe.ViewFields {
		out["view_"+k] = v
	}
	return out
}
