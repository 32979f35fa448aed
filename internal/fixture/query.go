package fixture

import (
	"fmt"
	"sort"

	"github.com/wondertwin-ai/qverify/internal/testcase"
	"github.com/wondertwin-ai/qverify/internal/verify"
)

// DefaultPageSize applies when a list request does not set pageSize.
const DefaultPageSize = 20

// Pagination mirrors the envelope block clients read.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ListResult is one page of a list query.
type ListResult struct {
	Data       []Record
	Pagination Pagination
	Warnings   []string
}

// List applies filter, sort, pagination and view expansion to the
// records of entity.
func (db *DB) List(entity string, p testcase.Params) (ListResult, error) {
	t, ok := db.Table(entity)
	if !ok {
		return ListResult{}, ErrNotFound
	}
	records := t.List()

	var res ListResult
	res.Warnings = append(res.Warnings, unknownFields(records, p)...)

	matched := records[:0]
	for _, rec := range records {
		if matchesAll(rec, p.Filter, p.Match) {
			matched = append(matched, rec)
		}
	}

	if len(p.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, sf := range p.Sort {
				c := verify.Compare(matched[i][sf.Field], matched[j][sf.Field])
				if c == 0 {
					continue
				}
				if sf.Direction == testcase.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	page := max(p.Page, 1)
	size := p.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(matched)
	from := min((page-1)*size, total)
	to := min(from+size, total)

	res.Data = matched[from:to]
	res.Pagination = Pagination{
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: (total + size - 1) / size,
	}

	for relation, fields := range p.View {
		warn := db.expand(res.Data, relation, fields)
		if warn != "" {
			res.Warnings = append(res.Warnings, warn)
		}
	}
	return res, nil
}

func matchesAll(rec Record, filter map[string]testcase.FilterCondition, m testcase.MatchStrategy) bool {
	for field, cond := range filter {
		if !verify.Matches(rec[field], cond, m) {
			return false
		}
	}
	return true
}

// unknownFields warns about filter and sort fields no record carries.
func unknownFields(records []Record, p testcase.Params) []string {
	if len(records) == 0 {
		return nil
	}
	known := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			known[k] = true
		}
	}
	var fields []string
	for f := range p.Filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, sf := range p.Sort {
		fields = append(fields, sf.Field)
	}

	var warnings []string
	for _, f := range fields {
		if !known[f] {
			warnings = append(warnings, fmt.Sprintf("unknown field %q", f))
		}
	}
	return warnings
}

// expand embeds the requested fields of a related entity under the relation
// name. Records reference the relation through "<relation>Id".
func (db *DB) expand(records []Record, relation string, fields []string) string {
	related, ok := db.Table(relation)
	if !ok {
		return fmt.Sprintf("unknown relation %q", relation)
	}
	fk := relation + "Id"
	for i, rec := range records {
		id, err := recordID(Record{"id": rec[fk]})
		if err != nil || id == 0 {
			continue
		}
		target, ok := related.Get(id)
		if !ok {
			continue
		}
		view := make(Record, len(fields))
		for _, f := range fields {
			if v, ok := target[f]; ok {
				view[f] = v
			}
		}
		out := clone(rec)
		out[relation] = view
		records[i] = out
	}
	return ""
}
