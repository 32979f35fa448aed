package testcase

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Query parameter names of the list endpoint wire format.
const (
	QueryFilter   = "filter"
	QuerySort     = "sort"
	QueryPage     = "page"
	QueryPageSize = "pageSize"
	QueryView     = "view"
	QueryMatch    = "match"
)

// ParseQuery derives Params from the query string of rawURL.
//
//	?filter=field:value,field2:op:value2
//	?sort=field,-field2,field3:desc
//	?page=N&pageSize=N
//	?view={"relatedEntity":["field1","field2"]}
//	?match=exact|contains|fuzzy
func ParseQuery(rawURL string) (Params, error) {
	var p Params

	u, err := url.Parse(rawURL)
	if err != nil {
		return p, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	q := u.Query()

	if raw := q.Get(QueryFilter); raw != "" {
		if p.Filter, err = ParseFilter(raw); err != nil {
			return p, err
		}
	}
	if raw := q.Get(QuerySort); raw != "" {
		if p.Sort, err = ParseSort(raw); err != nil {
			return p, err
		}
	}
	if raw := q.Get(QueryPage); raw != "" {
		if p.Page, err = strconv.Atoi(raw); err != nil {
			return p, fmt.Errorf("invalid page %q: %w", raw, err)
		}
	}
	if raw := q.Get(QueryPageSize); raw != "" {
		if p.Size, err = strconv.Atoi(raw); err != nil {
			return p, fmt.Errorf("invalid pageSize %q: %w", raw, err)
		}
	}
	if raw := q.Get(QueryView); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.View); err != nil {
			return p, fmt.Errorf("invalid view %q: %w", raw, err)
		}
	}
	if p.Match, err = ParseMatchStrategy(q.Get(QueryMatch)); err != nil {
		return p, err
	}

	return p, nil
}

// ParseFilter parses the filter clause list. A bare field:value clause is an
// equality; in field:op:value the middle token only counts as an operator
// when it is one, so literals containing colons (timestamps) are kept whole.
func ParseFilter(raw string) (map[string]FilterCondition, error) {
	filter := make(map[string]FilterCondition)
	for _, clause := range strings.Split(raw, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		field, rest, ok := strings.Cut(clause, ":")
		if !ok || field == "" {
			return nil, fmt.Errorf("malformed filter clause %q", clause)
		}
		op := OpEq
		if tok, literal, ok := strings.Cut(rest, ":"); ok {
			if parsed, err := ParseOperator(tok); err == nil {
				op = parsed
				rest = literal
			}
		}
		filter[field] = FilterCondition{Operator: op, Value: rest}
	}
	return filter, nil
}

// ParseSort parses a comma separated sort list; "-field" and "field:desc"
// sort descending, everything else ascending.
func ParseSort(raw string) ([]SortField, error) {
	var fields []SortField
	for _, clause := range strings.Split(raw, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		sf := SortField{Field: clause, Direction: Asc}
		if strings.HasPrefix(clause, "-") {
			sf.Field = clause[1:]
			sf.Direction = Desc
		} else if field, dir, ok := strings.Cut(clause, ":"); ok {
			d, err := ParseDirection(dir)
			if err != nil {
				return nil, err
			}
			sf.Field = field
			sf.Direction = d
		}
		if sf.Field == "" {
			return nil, fmt.Errorf("malformed sort clause %q", clause)
		}
		fields = append(fields, sf)
	}
	return fields, nil
}

// ResolveParams fills any parameter the case did not state explicitly from
// its URL. Explicit values always win.
func (tc *TestCase) ResolveParams() error {
	parsed, err := ParseQuery(tc.URL)
	if err != nil {
		return fmt.Errorf("case %d: %w", tc.ID, err)
	}
	if len(tc.Params.Sort) == 0 {
		tc.Params.Sort = parsed.Sort
	}
	if len(tc.Params.Filter) == 0 {
		tc.Params.Filter = parsed.Filter
	}
	if tc.Params.Page == 0 {
		tc.Params.Page = parsed.Page
	}
	if tc.Params.Size == 0 {
		tc.Params.Size = parsed.Size
	}
	if len(tc.Params.View) == 0 {
		tc.Params.View = parsed.View
	}
	if tc.Params.Match == MatchExact {
		tc.Params.Match = parsed.Match
	}
	return nil
}

// PathSegments returns the non-empty path segments of the case URL.
func PathSegments(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
