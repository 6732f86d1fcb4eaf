// Package table holds the tabular row model shared by the pipeline stages.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Record is one row. Values are float64, string or nil.
type Record map[string]interface{}

// Frame is an ordered set of columns over records.
type Frame struct {
	Columns []string
	Rows    []Record
}

// Clone returns a shallow copy that can be extended without touching r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Float reads a numeric field. Numeric strings are accepted; NaN and ±Inf
// are treated as absent.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		if !finite(v) {
			return 0, false
		}
		return v, true
	case float32:
		if !finite(float64(v)) {
			return 0, false
		}
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || !finite(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Latitude reads a coordinate that must lie in [-90, 90].
func (r Record) Latitude(key string) (float64, bool) {
	v, ok := r.Float(key)
	return v, ok && v >= -90 && v <= 90
}

// Longitude reads a coordinate that must lie in [-180, 180].
func (r Record) Longitude(key string) (float64, bool) {
	v, ok := r.Float(key)
	return v, ok && v >= -180 && v <= 180
}

// HasCoordinates reports whether both coordinates are usable.
func (r Record) HasCoordinates(latKey, lonKey string) bool {
	_, okLat := r.Latitude(latKey)
	_, okLon := r.Longitude(lonKey)
	return okLat && okLon
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// String reads a field as text. Numbers are formatted without a trailing
// ".0" so numeric-looking identifiers survive a CSV round trip.
func (r Record) String(key string) (string, bool) {
	switch v := r[key].(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

// Keys returns the record's field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AddColumn appends name to the frame's column list if it is not there yet.
func (f *Frame) AddColumn(name string) {
	for _, c := range f.Columns {
		if c == name {
			return
		}
	}
	f.Columns = append(f.Columns, name)
}

// ReadCSV parses a delimited file with a header row. Cells that parse as
// numbers become float64, empty cells become nil.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	frame := &Frame{Columns: header}
	for line := 2; ; line++ {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		rec := make(Record, len(header))
		for i, col := range header {
			if i >= len(cells) {
				rec[col] = nil
				continue
			}
			rec[col] = parseCell(cells[i])
		}
		frame.Rows = append(frame.Rows, rec)
	}

	return frame, nil
}

// ReadCSVFile opens path and parses it with ReadCSV.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	return ReadCSV(file)
}

func parseCell(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) {
		return f
	}
	return s
}

// WriteCSV writes the frame's columns in order. Missing values are written
// as empty cells.
func WriteCSV(w io.Writer, f *Frame) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	cells := make([]string, len(f.Columns))
	for _, rec := range f.Rows {
		for i, col := range f.Columns {
			cells[i] = formatCell(rec[col])
		}
		if err := writer.Write(cells); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
