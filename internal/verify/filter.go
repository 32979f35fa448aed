package verify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/wondertwin-ai/qverify/internal/testcase"
)

const midnightSuffix = "T00:00:00"

// VerifyFilter checks every extracted filter value against its condition.
// An empty result set satisfies any filter.
func VerifyFilter(filter map[string]testcase.FilterCondition, match testcase.MatchStrategy, fe FieldExtraction, recordCount int) []string {
	if recordCount == 0 {
		return nil
	}

	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var issues []string
	for _, field := range fields {
		cond := filter[field]
		if !fe.Found(field) {
			issues = append(issues, fmt.Sprintf("Filter field '%s' not found in results", field))
			continue
		}
		for i, v := range fe.FilterFields[field] {
			if !Matches(v, cond, match) {
				issues = append(issues, fmt.Sprintf("Filter field '%s' value '%s' does not satisfy %s '%s' (record %d)",
					field, stringify(v), cond.Operator, stringify(cond.Value), i+1))
			}
		}
	}
	return issues
}

// Matches reports whether a single record value satisfies cond under the
// given matching strategy.
func Matches(value any, cond testcase.FilterCondition, match testcase.MatchStrategy) bool {
	if cond.Operator == testcase.OpEq {
		if ok, handled := dateOnlyEqual(value, cond.Value); handled {
			return ok
		}
		if s, isStr := value.(string); isStr && match != testcase.MatchExact {
			literal := stringify(cond.Value)
			switch match {
			case testcase.MatchContains:
				return strings.Contains(strings.ToLower(s), strings.ToLower(literal))
			case testcase.MatchFuzzy:
				return fuzzy.MatchFold(literal, s)
			}
		}
	}
	return cond.Operator.Holds(Compare(value, cond.Value))
}

// dateOnlyEqual applies granularity reduction: a midnight timestamp equals
// the date-only literal for the same day. handled is false when the rule
// does not apply.
func dateOnlyEqual(value, literal any) (ok, handled bool) {
	lit := stringify(literal)
	if !isDateOnly(lit) {
		return false, false
	}
	s, isStr := value.(string)
	if !isStr || !strings.HasSuffix(s, midnightSuffix) {
		return false, false
	}
	return s[:len(s)-len(midnightSuffix)] == lit, true
}

func isDateOnly(s string) bool {
	if len(s) != len(time.DateOnly) {
		return false
	}
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}
