package verify

import (
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/wondertwin-ai/qverify/internal/testcase"
)

// FieldExtraction holds, per requested field, the value taken from each
// returned record in response order. A record without the field contributes
// nil, so every sequence has one entry per record.
type FieldExtraction struct {
	SortFields   map[string][]any
	FilterFields map[string][]any
	ViewFields   map[string][]any

	// found records which field paths appeared in at least one record.
	found map[string]bool
}

// Found reports whether field was present in at least one record.
func (fe FieldExtraction) Found(field string) bool {
	return fe.found[field]
}

// Extract projects the records of res onto the sort, filter and view
// fields requested by tc.
func Extract(tc *testcase.TestCase, res *testcase.Result) FieldExtraction {
	fe := FieldExtraction{
		SortFields:   make(map[string][]any),
		FilterFields: make(map[string][]any),
		ViewFields:   make(map[string][]any),
		found:        make(map[string]bool),
	}

	records := newRecordSet(res.Data)

	for _, sf := range tc.Params.Sort {
		fe.SortFields[sf.Field] = records.column(sf.Field, fe.found)
	}

	for field := range tc.Params.Filter {
		if len(res.Data) == 0 {
			fe.FilterFields[field] = []any{}
			continue
		}
		fe.FilterFields[field] = records.column(field, fe.found)
	}

	for relation, fields := range tc.Params.View {
		for _, f := range fields {
			fe.ViewFields[relation+"."+f] = records.viewColumn(relation, f, fe.found)
		}
	}

	return fe
}

// recordSet caches the JSON form of each record for nested path lookups.
type recordSet struct {
	records []map[string]any
	encoded [][]byte
}

func newRecordSet(records []map[string]any) *recordSet {
	return &recordSet{records: records, encoded: make([][]byte, len(records))}
}

func (rs *recordSet) column(field string, found map[string]bool) []any {
	values := make([]any, len(rs.records))
	for i := range rs.records {
		if v, ok := rs.lookup(i, field); ok {
			values[i] = v
			found[field] = true
		}
	}
	return values
}

// viewColumn reads an expanded relation field. Backends either nest the
// relation as an object (or array of objects) or flatten it to
// "relation_field".
func (rs *recordSet) viewColumn(relation, field string, found map[string]bool) []any {
	key := relation + "." + field
	values := make([]any, len(rs.records))
	for i := range rs.records {
		if v, ok := rs.lookup(i, key); ok {
			values[i] = v
			found[key] = true
			continue
		}
		if v, ok := rs.path(i, escapePath(relation)+".#."+escapePath(field)); ok {
			values[i] = v
			found[key] = true
			continue
		}
		if v, ok := rs.records[i][relation+"_"+field]; ok {
			values[i] = v
			found[key] = true
		}
	}
	return values
}

// lookup resolves field in record i: a literal key first, then a dotted
// path into nested objects.
func (rs *recordSet) lookup(i int, field string) (any, bool) {
	if v, ok := rs.records[i][field]; ok {
		return v, true
	}
	if !strings.Contains(field, ".") {
		return nil, false
	}
	parts := strings.Split(field, ".")
	for j, p := range parts {
		parts[j] = escapePath(p)
	}
	return rs.path(i, strings.Join(parts, "."))
}

func (rs *recordSet) path(i int, path string) (any, bool) {
	if rs.encoded[i] == nil {
		b, err := json.Marshal(rs.records[i])
		if err != nil {
			return nil, false
		}
		rs.encoded[i] = b
	}
	r := gjson.GetBytes(rs.encoded[i], path)
	if !r.Exists() {
		return nil, false
	}
	return r.Value(), true
}

// escapePath escapes gjson metacharacters in a single path component.
func escapePath(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
