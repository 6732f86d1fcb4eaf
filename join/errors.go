package join

import (
	"errors"
	"fmt"
)

var ErrMissingCoordinate = errors.New("missing coordinate")

// MissingCoordinateError reports a record that cannot be placed on the map.
type MissingCoordinateError struct {
	Entity string
	Row    int
	Field  string
}

func (e *MissingCoordinateError) Error() string {
	return fmt.Sprintf("join %s: row %d: %s: %v", e.Entity, e.Row, e.Field, ErrMissingCoordinate)
}

func (e *MissingCoordinateError) Unwrap() error {
	return ErrMissingCoordinate
}
