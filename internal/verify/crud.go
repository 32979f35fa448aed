package verify

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/wondertwin-ai/qverify/internal/testcase"
)

// errorStatuses lists the status codes accepted for each expected error type.
var errorStatuses = map[testcase.ErrorType][]int{
	testcase.ErrorValidation: {http.StatusBadRequest, http.StatusUnprocessableEntity},
	testcase.ErrorNotFound:   {http.StatusNotFound},
	testcase.ErrorConstraint: {http.StatusConflict, http.StatusUnprocessableEntity},
}

// VerifyCRUD checks a mutation or single-resource response against the
// case's ExpectedData. Cases without ExpectedData are skipped.
func VerifyCRUD(expected *testcase.ExpectedData, res *testcase.Result) []string {
	if expected == nil {
		return nil
	}
	if expected.ExpectedErrorType != testcase.ErrorNone {
		return verifyErrorPath(expected.ExpectedErrorType, res.StatusCode)
	}

	if len(res.Data) == 0 {
		return []string{"Operation should return data but got empty response"}
	}
	record := res.Data[0]

	var issues []string
	for _, f := range expected.ShouldContainFields {
		if _, ok := record[f]; !ok {
			issues = append(issues, fmt.Sprintf("Response is missing expected field '%s'", f))
		}
	}
	for _, f := range expected.ShouldNotContainFields {
		if _, ok := record[f]; ok {
			issues = append(issues, fmt.Sprintf("Response contains field '%s' that should be absent", f))
		}
	}

	keys := make([]string, 0, len(expected.ExpectedFields))
	for k := range expected.ExpectedFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		want := expected.ExpectedFields[k]
		got, ok := record[k]
		if !ok {
			issues = append(issues, fmt.Sprintf("Response is missing expected field '%s'", k))
			continue
		}
		if !fieldEqual(got, want) {
			issues = append(issues, fmt.Sprintf("Field '%s': expected '%s', got '%s'", k, stringify(want), stringify(got)))
		}
	}
	return issues
}

func verifyErrorPath(et testcase.ErrorType, status int) []string {
	if status == http.StatusOK || status == http.StatusCreated {
		return []string{fmt.Sprintf("Expected %s error but got success response", et.Label())}
	}
	allowed := errorStatuses[et]
	for _, s := range allowed {
		if s == status {
			return nil
		}
	}
	return []string{fmt.Sprintf("Expected %s error (status %v) but got status %d", et.Label(), allowed, status)}
}
