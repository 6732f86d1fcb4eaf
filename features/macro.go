package features

import (
	"fmt"

	"web/resalegeo/table"
)

// MacroTable holds one monthly macroeconomic indicator.
type MacroTable struct {
	Name   string
	values map[[2]int]float64
}

// NewMacroTable indexes frame rows by their Year and Month columns.
// Rows without a usable value are skipped.
func NewMacroTable(name string, f *table.Frame, valueColumn string) (*MacroTable, error) {
	for _, col := range []string{"Year", "Month", valueColumn} {
		found := false
		for _, c := range f.Columns {
			if c == col {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("macro table %s: missing column %q", name, col)
		}
	}

	t := &MacroTable{Name: name, values: make(map[[2]int]float64, len(f.Rows))}
	for _, rec := range f.Rows {
		year, okY := rec.Float("Year")
		month, okM := rec.Float("Month")
		v, okV := rec.Float(valueColumn)
		if !okY || !okM || !okV {
			continue
		}
		t.values[[2]int{int(year), int(month)}] = v
	}
	return t, nil
}

// StockTable reads the monthly average close of the market index.
func StockTable(f *table.Frame) (*MacroTable, error) {
	return NewMacroTable(FieldAverageClose, f, "Average_Close")
}

// UnemploymentTable reads the monthly unemployment rate.
func UnemploymentTable(f *table.Frame) (*MacroTable, error) {
	return NewMacroTable(FieldUnemploymentRate, f, "Unemployment Rate")
}

func (t *MacroTable) Lookup(year, month int) (float64, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t.values[[2]int{year, month}]
	return v, ok
}

func (t *MacroTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.values)
}
