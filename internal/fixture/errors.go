package fixture

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ValidationError reports required fields that are missing or blank.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// ConstraintError reports a unique-field collision.
type ConstraintError struct {
	Field string
	Value any
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s %v already exists", e.Field, e.Value)
}
