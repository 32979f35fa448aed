package verify

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wondertwin-ai/qverify/internal/testcase"
)

// Pagination is the pagination block of a collection response envelope.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ParsePagination reads the "pagination" object from a raw response body.
func ParsePagination(body []byte) (Pagination, bool) {
	r := gjson.GetBytes(body, "pagination")
	if !r.IsObject() {
		return Pagination{}, false
	}
	return Pagination{
		Page:       int(r.Get("page").Int()),
		PageSize:   int(r.Get("pageSize").Int()),
		Total:      int(r.Get("total").Int()),
		TotalPages: int(r.Get("totalPages").Int()),
	}, true
}

// IsCollectionRequest reports whether a request addresses a collection
// endpoint: a GET with exactly one path segment after the API root.
func IsCollectionRequest(method, rawURL, apiRoot string) bool {
	if !strings.EqualFold(method, http.MethodGet) {
		return false
	}
	segs := testcase.PathSegments(rawURL)
	root := strings.Trim(apiRoot, "/")
	if root == "" {
		return len(segs) == 1
	}
	rootSegs := strings.Split(root, "/")
	for i := 0; i+len(rootSegs) <= len(segs); i++ {
		if equalSegments(segs[i:i+len(rootSegs)], rootSegs) {
			return len(segs)-(i+len(rootSegs)) == 1
		}
	}
	return false
}

func equalSegments(a, b []string) bool {
	for i := range b {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ExpectedPageCount returns how many records a page should hold. The plain
// rule is min(pageSize, total); the page-aware rule also accounts for a
// short final page.
func ExpectedPageCount(p Pagination, pageAware bool) int {
	if !pageAware {
		return min(p.PageSize, p.Total)
	}
	page := max(p.Page, 1)
	remaining := p.Total - (page-1)*p.PageSize
	return max(0, min(remaining, p.PageSize))
}

// VerifyPagination checks the record count of a collection response against
// its pagination block. Other requests are skipped.
func VerifyPagination(tc *testcase.TestCase, res *testcase.Result, apiRoot string, pageAware bool) []string {
	if !IsCollectionRequest(tc.HTTPMethod(), tc.URL, apiRoot) {
		return nil
	}
	p, ok := ParsePagination(res.RawResponseBody)
	if !ok {
		return []string{"Collection request missing pagination data"}
	}
	expected := ExpectedPageCount(p, pageAware)
	if actual := len(res.Data); actual != expected {
		return []string{fmt.Sprintf("Pagination mismatch: expected %d records (page=%d, pageSize=%d, total=%d) but got %d",
			expected, p.Page, p.PageSize, p.Total, actual)}
	}
	return nil
}
