package features

import (
	"sort"
	"strings"

	"web/resalegeo/table"
)

// OneHotFields are replaced by indicator columns before alignment.
var OneHotFields = []string{FieldRegion, FieldTown, FieldFlatType, FieldFlatModel}

// ColumnName normalises a feature column name: "/" becomes "_".
func ColumnName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

// DummyColumn names the indicator column for field == value.
func DummyColumn(field, value string) string {
	return ColumnName(field + "_" + value)
}

// OneHot returns a copy of rec with each of fields replaced by a single
// indicator column set to 1. Empty or missing values produce no column.
func OneHot(rec table.Record, fields []string) table.Record {
	out := rec.Clone()
	for _, field := range fields {
		v, ok := rec.String(field)
		delete(out, field)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		out[DummyColumn(field, categoryValue(field, v))] = 1.0
	}
	return out
}

// categoryValue normalises town names so training and inference spell
// them alike; other categories are used as given.
func categoryValue(field, v string) string {
	v = strings.TrimSpace(v)
	if field == FieldTown {
		return NormalizeTown(v)
	}
	return v
}

// DummyColumns lists every indicator column the records produce, sorted
// per field. Region always covers the full region list.
func DummyColumns(records []table.Record, fields []string) []string {
	var columns []string
	for _, field := range fields {
		seen := make(map[string]struct{})
		if field == FieldRegion {
			for _, r := range Regions {
				seen[r] = struct{}{}
			}
		}
		for _, rec := range records {
			if v, ok := rec.String(field); ok && strings.TrimSpace(v) != "" {
				seen[categoryValue(field, v)] = struct{}{}
			}
		}

		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)
		for _, v := range values {
			columns = append(columns, DummyColumn(field, v))
		}
	}
	return columns
}

// FrequencyEncode counts the occurrences of each town.
func FrequencyEncode(records []table.Record, field string) map[string]float64 {
	freq := make(map[string]float64)
	for _, rec := range records {
		if v, ok := rec.String(field); ok && strings.TrimSpace(v) != "" {
			freq[categoryValue(field, v)]++
		}
	}
	return freq
}
