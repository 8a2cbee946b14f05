package config

import (
	"fmt"
	"strings"
)

// ValidationError describes one rejected configuration key.
type ValidationError interface {
	error
	Field() string
	Value() any
	Reason() string
}

type fieldError struct {
	field  string
	value  any
	reason string
}

func (e *fieldError) Error() string  { return fmt.Sprintf("%s=%v: %s", e.field, e.value, e.reason) }
func (e *fieldError) Field() string  { return e.field }
func (e *fieldError) Value() any     { return e.value }
func (e *fieldError) Reason() string { return e.reason }

// ValidationErrors is every problem Validate found, in key order.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	var b strings.Builder
	for i, e := range v {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.Error())
	}
	return b.String()
}
