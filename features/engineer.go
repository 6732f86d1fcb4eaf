// Package features derives record-level model features from joined housing
// records and aligns them to the training schema.
package features

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"web/resalegeo/table"
)

// DropFields are raw inputs removed once their features are derived.
var DropFields = []string{
	FieldPostalCode, FieldAddress, FieldStoreyRange, FieldRemainingLease,
	FieldBlock, FieldStreetName,
}

// Recorder observes defaulting and alignment. The metrics package
// provides the Prometheus implementation.
type Recorder interface {
	FieldDefaulted(field string)
	SchemaMismatch(missing, extra int)
}

type nopRecorder struct{}

func (nopRecorder) FieldDefaulted(string)   {}
func (nopRecorder) SchemaMismatch(int, int) {}

type Options struct {
	Policy       Policy
	Stock        *MacroTable
	Unemployment *MacroTable
	Logger       *slog.Logger
	Recorder     Recorder
}

// Engineer is stateless apart from its read-only lookup tables and may be
// shared between goroutines.
type Engineer struct {
	policy       Policy
	stock        *MacroTable
	unemployment *MacroTable
	logger       *slog.Logger
	recorder     Recorder
}

func NewEngineer(opts Options) *Engineer {
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Engineer{
		policy:       opts.Policy,
		stock:        opts.Stock,
		unemployment: opts.Unemployment,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
	}
}

func (e *Engineer) Policy() Policy {
	return e.policy
}

// Derive returns a copy of rec with the record-level features added.
// Missing or malformed inputs get the policy default; the record itself is
// never rejected.
func (e *Engineer) Derive(rec table.Record) table.Record {
	return e.derive(rec, slog.LevelDebug)
}

func (e *Engineer) derive(rec table.Record, level slog.Level) table.Record {
	out := rec.Clone()
	def := func(field string, err error) {
		e.recorder.FieldDefaulted(field)
		e.logger.Log(context.Background(), level, "using default feature value",
			"field", field, "default", e.policy.Default(field), "error", err)
		out[field] = e.policy.Default(field)
	}

	year, month := e.calendar(out)

	if lease, ok := out.Float(FieldLeaseCommence); ok && year > 0 {
		age := float64(year) - lease
		out[FieldFlatAge] = age
		out[FieldYearsFromLease] = age
	} else {
		err := missing(FieldLeaseCommence, out)
		def(FieldFlatAge, err)
		def(FieldYearsFromLease, err)
	}

	if months, err := remainingLease(out); err == nil {
		out[FieldRemainingLeaseMonths] = months
	} else {
		def(FieldRemainingLeaseMonths, err)
	}

	raw, _ := out.String(FieldStoreyRange)
	storey, err := ParseStoreyRange(raw)
	if err != nil {
		def(FieldStoreyMean, err)
		storey = e.policy.Default(FieldStoreyMean)
	} else {
		out[FieldStoreyMean] = storey
	}
	out[FieldHighFloor] = indicator(storey > HighFloorThreshold)

	area, ok := out.Float(FieldFloorArea)
	if !ok {
		def(FieldFloorArea, missing(FieldFloorArea, out))
		area = e.policy.Default(FieldFloorArea)
	}
	out[FieldBigUnit] = indicator(area > BigUnitThreshold)

	var quality float64
	for _, f := range SchoolQualityFields {
		v, _ := out.Float(f)
		quality += v
	}
	out[FieldSchoolQuality] = quality

	town, _ := out.String(FieldTown)
	out[FieldRegion] = RegionFor(town)

	for _, m := range []struct {
		field string
		table *MacroTable
	}{
		{FieldAverageClose, e.stock},
		{FieldUnemploymentRate, e.unemployment},
	} {
		if _, ok := out.Float(m.field); ok {
			continue
		}
		if v, ok := m.table.Lookup(year, month); ok {
			out[m.field] = v
			continue
		}
		def(m.field, &MalformedFieldError{Field: m.field, Err: errNoMatch})
	}

	return out
}

// calendar resolves the transaction year and month. A "2017-01" month
// string is split into numeric year and month fields.
func (e *Engineer) calendar(rec table.Record) (int, int) {
	if s, ok := rec[FieldMonth].(string); ok {
		if y, m, err := ParseResaleMonth(s); err == nil {
			rec[FieldMonth] = float64(m)
			if _, ok := rec.Float(FieldYear); !ok {
				rec[FieldYear] = float64(y)
			}
		}
	}
	year, _ := rec.Float(FieldYear)
	month, _ := rec.Float(FieldMonth)
	return int(year), int(month)
}

// remainingLease accepts the "X years Y months" text or a plain number of
// years.
func remainingLease(rec table.Record) (float64, error) {
	switch v := rec[FieldRemainingLease].(type) {
	case float64:
		return v * 12, nil
	case string:
		return ParseRemainingLease(v)
	default:
		return 0, missing(FieldRemainingLease, rec)
	}
}

func missing(field string, rec table.Record) error {
	s, _ := rec.String(field)
	if s == "" {
		return &MalformedFieldError{Field: field, Err: errEmpty}
	}
	return &MalformedFieldError{Field: field, Value: s, Err: errNoMatch}
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// encode frequency-encodes the town, expands the one-hot fields and drops
// the raw inputs.
func encode(rec table.Record, townFreq map[string]float64) table.Record {
	town, _ := rec.String(FieldTown)
	withTown := rec.Clone()
	withTown[FieldTownEncoded] = townFreq[NormalizeTown(town)]

	out := OneHot(withTown, OneHotFields)
	for _, f := range DropFields {
		delete(out, f)
	}
	return out
}

// Batch engineers a training set. It returns the encoded frame and the
// schema inference must reproduce: the numeric feature columns in sorted
// order followed by the indicator columns, plus the town frequencies.
func (e *Engineer) Batch(records []table.Record, target string) (*table.Frame, *Schema) {
	derived := make([]table.Record, len(records))
	for i, rec := range records {
		derived[i] = e.derive(rec, slog.LevelDebug)
	}

	freq := FrequencyEncode(derived, FieldTown)
	dummies := DummyColumns(derived, OneHotFields)

	rows := make([]table.Record, len(derived))
	for i, rec := range derived {
		rows[i] = encode(rec, freq)
	}

	dummySet := make(map[string]struct{}, len(dummies))
	for _, c := range dummies {
		dummySet[c] = struct{}{}
	}
	numeric := numericColumns(rows, func(c string) bool {
		_, isDummy := dummySet[c]
		return isDummy || c == target
	})

	schema := &Schema{
		Columns:       append(numeric, dummies...),
		TownFrequency: freq,
		Target:        target,
	}

	columns := append([]string(nil), schema.Columns...)
	if target != "" {
		columns = append(columns, target)
	}
	for _, rec := range rows {
		for _, c := range dummies {
			if _, ok := rec[c]; !ok {
				rec[c] = 0.0
			}
		}
	}

	e.logger.Info("engineered training features",
		"records", len(rows), "columns", len(schema.Columns), "towns", len(freq))
	return &table.Frame{Columns: columns, Rows: rows}, schema
}

// numericColumns lists the sorted keys whose values are numeric or empty in
// every row and numeric in at least one.
func numericColumns(rows []table.Record, skip func(string) bool) []string {
	numeric := make(map[string]bool)
	rejected := make(map[string]bool)
	for _, rec := range rows {
		for k, v := range rec {
			if skip(k) || rejected[k] {
				continue
			}
			switch v.(type) {
			case nil:
			case float64, float32, int, int64:
				numeric[k] = true
			default:
				rejected[k] = true
			}
		}
	}

	var cols []string
	for k := range numeric {
		if !rejected[k] {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}

// Vector is one aligned inference feature vector.
type Vector struct {
	Columns []string     `json:"columns"`
	Values  []float64    `json:"values"`
	Record  table.Record `json:"-"`
}

// Vector engineers a single joined record against the training schema.
// A schema mismatch is logged and counted, never returned.
func (e *Engineer) Vector(rec table.Record, schema *Schema) Vector {
	derived := e.derive(rec, slog.LevelWarn)
	encoded := encode(derived, schema.TownFrequency)

	values, mismatch := schema.Align(encoded)
	if mismatch != nil {
		e.recorder.SchemaMismatch(len(mismatch.Missing), len(mismatch.Extra))
		e.logger.Warn("aligned features to training schema", "error", mismatch)
	}

	return Vector{Columns: schema.Columns, Values: values, Record: encoded}
}

// IsMalformed reports whether err came from a field that fell back to its
// default.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedField)
}
