package features

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedField = errors.New("malformed field")
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// MalformedFieldError reports a field that could not be parsed. The
// engineer substitutes the policy default and carries on.
type MalformedFieldError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedFieldError) Error() string {
	msg := fmt.Sprintf("%v: %s=%q", ErrMalformedField, e.Field, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedFieldError) Unwrap() error {
	return ErrMalformedField
}

// SchemaMismatchError lists the columns an aligned record lacked (filled
// with zero) and the ones it carried that the schema does not know
// (dropped).
type SchemaMismatchError struct {
	Missing []string
	Extra   []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%v: %d missing [%s], %d extra [%s]", ErrSchemaMismatch,
		len(e.Missing), strings.Join(e.Missing, ", "),
		len(e.Extra), strings.Join(e.Extra, ", "))
}

func (e *SchemaMismatchError) Unwrap() error {
	return ErrSchemaMismatch
}
