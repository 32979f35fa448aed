// Package testcase defines declarative query test cases, the wire-format
// parser that derives their parameters from a request URL, and the corpus
// loader that reads them from JSON or YAML files.
package testcase

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Construction-time errors for the closed parameter variants.
var (
	ErrUnknownOperator      = errors.New("unknown filter operator")
	ErrUnknownDirection     = errors.New("unknown sort direction")
	ErrUnknownErrorType     = errors.New("unknown expected error type")
	ErrUnknownMatchStrategy = errors.New("unknown match strategy")
)

// TestCase is a single declarative request plus the outcome expected from it.
type TestCase struct {
	ID             int           `json:"id" yaml:"id"`
	URL            string        `json:"url" yaml:"url"`
	Method         string        `json:"method" yaml:"method"`
	Description    string        `json:"description,omitempty" yaml:"description,omitempty"`
	Category       string        `json:"category,omitempty" yaml:"category,omitempty"`
	ExpectedStatus int           `json:"expected_status,omitempty" yaml:"expected_status,omitempty"`
	Body           any           `json:"body,omitempty" yaml:"body,omitempty"`
	Backends       []string      `json:"backends,omitempty" yaml:"backends,omitempty"`
	Params         Params        `json:"params" yaml:"params"`
	ExpectedData   *ExpectedData `json:"expected_data,omitempty" yaml:"expected_data,omitempty"`
}

// Params are the query parameters a response is judged against.
type Params struct {
	Sort   []SortField                `json:"sort,omitempty" yaml:"sort,omitempty"`
	Filter map[string]FilterCondition `json:"filter,omitempty" yaml:"filter,omitempty"`
	Page   int                        `json:"page,omitempty" yaml:"page,omitempty"`
	Size   int                        `json:"size,omitempty" yaml:"size,omitempty"`
	View   map[string][]string        `json:"view,omitempty" yaml:"view,omitempty"`
	Match  MatchStrategy              `json:"match,omitempty" yaml:"match,omitempty"`
}

// SortField is one clause of a sort request.
type SortField struct {
	Field     string    `json:"field" yaml:"field"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// FilterCondition pairs an operator with the literal it compares against.
type FilterCondition struct {
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// ExpectedData describes the outcome of a mutation or single-resource request.
type ExpectedData struct {
	ShouldContainFields    []string       `json:"should_contain_fields,omitempty" yaml:"should_contain_fields,omitempty"`
	ShouldNotContainFields []string       `json:"should_not_contain_fields,omitempty" yaml:"should_not_contain_fields,omitempty"`
	ExpectedFields         map[string]any `json:"expected_fields,omitempty" yaml:"expected_fields,omitempty"`
	ExpectedErrorType      ErrorType      `json:"expected_error_type,omitempty" yaml:"expected_error_type,omitempty"`
}

// Result is what the HTTP layer observed for one executed test case.
type Result struct {
	StatusCode      int
	Data            []map[string]any
	RawResponseBody []byte
	Warnings        int
	RequestWarnings int
	Errors          int
	Duration        time.Duration
}

// HTTPMethod returns the upper-cased method, defaulting to GET.
func (tc *TestCase) HTTPMethod() string {
	if tc.Method == "" {
		return "GET"
	}
	return strings.ToUpper(tc.Method)
}

// RunsOn reports whether the case applies to the named backend.
func (tc *TestCase) RunsOn(backend string) bool {
	if len(tc.Backends) == 0 {
		return true
	}
	for _, b := range tc.Backends {
		if b == backend {
			return true
		}
	}
	return false
}

// Operator is a filter comparison operator.
type Operator int

const (
	OpEq Operator = iota
	OpGt
	OpGte
	OpLt
	OpLte
)

var operatorNames = [...]string{"eq", "gt", "gte", "lt", "lte"}

// ParseOperator maps a wire token to an Operator.
func ParseOperator(s string) (Operator, error) {
	for i, name := range operatorNames {
		if strings.EqualFold(s, name) {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownOperator, s)
}

func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return fmt.Sprintf("Operator(%d)", int(o))
	}
	return operatorNames[o]
}

// Holds reports whether a Comparator result c (-1, 0, 1) satisfies the operator.
func (o Operator) Holds(c int) bool {
	switch o {
	case OpEq:
		return c == 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	panic(fmt.Sprintf("testcase: unhandled operator %d", int(o)))
}

func (o Operator) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Operator) UnmarshalText(b []byte) error {
	parsed, err := ParseOperator(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// ParseDirection maps "asc"/"desc" (or empty, meaning asc) to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownDirection, s)
}

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	parsed, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MatchStrategy selects how string equality filters are matched by a backend.
type MatchStrategy int

const (
	MatchExact MatchStrategy = iota
	MatchContains
	MatchFuzzy
)

var matchNames = [...]string{"exact", "contains", "fuzzy"}

// ParseMatchStrategy maps a wire token to a MatchStrategy; empty means exact.
func ParseMatchStrategy(s string) (MatchStrategy, error) {
	if s == "" {
		return MatchExact, nil
	}
	for i, name := range matchNames {
		if strings.EqualFold(s, name) {
			return MatchStrategy(i), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownMatchStrategy, s)
}

func (m MatchStrategy) String() string {
	if m < 0 || int(m) >= len(matchNames) {
		return fmt.Sprintf("MatchStrategy(%d)", int(m))
	}
	return matchNames[m]
}

func (m MatchStrategy) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *MatchStrategy) UnmarshalText(b []byte) error {
	parsed, err := ParseMatchStrategy(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ErrorType is the category of failure a test case expects.
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorValidation
	ErrorNotFound
	ErrorConstraint
)

// ParseErrorType maps "validation", "not_found" or "constraint" to an ErrorType.
func ParseErrorType(s string) (ErrorType, error) {
	switch strings.ToLower(s) {
	case "":
		return ErrorNone, nil
	case "validation":
		return ErrorValidation, nil
	case "not_found":
		return ErrorNotFound, nil
	case "constraint":
		return ErrorConstraint, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownErrorType, s)
}

func (e ErrorType) String() string {
	switch e {
	case ErrorValidation:
		return "validation"
	case ErrorNotFound:
		return "not_found"
	case ErrorConstraint:
		return "constraint"
	}
	return ""
}

// Label is the human form used in issue text, e.g. "not found".
func (e ErrorType) Label() string {
	return strings.ReplaceAll(e.String(), "_", " ")
}

func (e ErrorType) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *ErrorType) UnmarshalText(b []byte) error {
	parsed, err := ParseErrorType(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
