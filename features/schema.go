package features

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"web/resalegeo/table"
)

// Schema is the training-time feature layout. It is persisted next to the
// cluster tables so inference builds vectors in the same order.
type Schema struct {
	Columns       []string           `json:"columns"`
	TownFrequency map[string]float64 `json:"town_frequency"`
	Target        string             `json:"target,omitempty"`
}

// Index returns the position of column, or -1.
func (s *Schema) Index(column string) int {
	for i, c := range s.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Align reindexes rec to the schema columns. Columns the record lacks are
// zero-filled and columns the schema does not know are dropped; both are
// reported in the mismatch, which is nil when the record fits exactly.
// Align never fails.
func (s *Schema) Align(rec table.Record) ([]float64, *SchemaMismatchError) {
	vector := make([]float64, len(s.Columns))
	known := make(map[string]struct{}, len(s.Columns))

	var mismatch SchemaMismatchError
	for i, col := range s.Columns {
		known[col] = struct{}{}
		v, ok := rec.Float(col)
		if !ok {
			if _, present := rec[col]; !present && !isDummy(col) {
				mismatch.Missing = append(mismatch.Missing, col)
			}
			continue
		}
		vector[i] = v
	}

	for _, key := range rec.Keys() {
		if _, ok := known[key]; ok || key == s.Target {
			continue
		}
		if _, numeric := rec.Float(key); numeric {
			mismatch.Extra = append(mismatch.Extra, key)
		}
	}

	if len(mismatch.Missing) == 0 && len(mismatch.Extra) == 0 {
		return vector, nil
	}
	return vector, &mismatch
}

// isDummy reports whether col is a one-hot indicator. Absent indicators
// are the normal case and are not reported as missing.
func isDummy(col string) bool {
	for _, field := range OneHotFields {
		if strings.HasPrefix(col, ColumnName(field+"_")) {
			return true
		}
	}
	return false
}

// TownEncoding returns the training frequency of town, 0 when unseen.
func (s *Schema) TownEncoding(town string) float64 {
	return s.TownFrequency[NormalizeTown(town)]
}

func (s *Schema) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}
	return nil
}

func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", path, err)
	}
	if len(s.Columns) == 0 {
		return nil, fmt.Errorf("schema %s has no columns", path)
	}
	return &s, nil
}

// Towns lists the towns seen in training, sorted.
func (s *Schema) Towns() []string {
	towns := make([]string, 0, len(s.TownFrequency))
	for t := range s.TownFrequency {
		towns = append(towns, t)
	}
	sort.Strings(towns)
	return towns
}
