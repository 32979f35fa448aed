package verify

import (
	"fmt"

	"github.com/wondertwin-ai/qverify/internal/testcase"
)

// VerifySort checks that the extracted sequences honour the requested sort.
//
// The first key must be monotonic over the whole sequence. Each later key is
// only checked between neighbours whose earlier keys compare equal, so
// sort=lastName,firstName is verified as a true tie-break ordering.
func VerifySort(fields []testcase.SortField, fe FieldExtraction, recordCount int) []string {
	if recordCount == 0 {
		return nil
	}

	var issues []string
	var checked []string
	for _, sf := range fields {
		if !fe.Found(sf.Field) {
			issues = append(issues, fmt.Sprintf("Sort field '%s' not found in results", sf.Field))
			continue
		}

		values := fe.SortFields[sf.Field]
		violations := 0
		var first string
		for i := 0; i+1 < len(values); i++ {
			if !tied(fe, checked, i) {
				continue
			}
			c := Compare(values[i], values[i+1])
			if (sf.Direction == testcase.Asc && c > 0) || (sf.Direction == testcase.Desc && c < 0) {
				if violations == 0 {
					first = fmt.Sprintf("Sort field '%s' is not in %s order: record %d has '%s' before record %d with '%s'",
						sf.Field, sf.Direction, i+1, stringify(values[i]), i+2, stringify(values[i+1]))
				}
				violations++
			}
		}
		if violations > 1 {
			first = fmt.Sprintf("%s (%d violations)", first, violations)
		}
		if violations > 0 {
			issues = append(issues, first)
		}
		checked = append(checked, sf.Field)
	}
	return issues
}

// tied reports whether records i and i+1 are equal on every earlier key.
func tied(fe FieldExtraction, earlier []string, i int) bool {
	for _, f := range earlier {
		v := fe.SortFields[f]
		if Compare(v[i], v[i+1]) != 0 {
			return false
		}
	}
	return true
}
