package features

import (
	"math"

	"web/resalegeo/table"
)

var (
	FlatModels = []string{
		"Improved", "New Generation", "Model A", "Standard", "Simplified",
		"Premium Apartment", "Maisonette", "Apartment", "DBSS",
	}
	StoreyRanges = []string{
		"01 TO 03", "04 TO 06", "07 TO 09", "10 TO 12",
		"13 TO 15", "16 TO 18", "19 TO 21", "22 TO 24",
	}
	leaseOffsets = []float64{-15, -10, -5, 5, 10, 15}
	areaFactors  = []float64{0.7, 0.8, 0.9, 1.1, 1.2, 1.3}
)

const (
	MinLeaseYear = 1960
	MinFloorArea = 30
	MaxFloorArea = 200

	defaultLeaseYear   = 1990
	defaultFloorArea   = 90
	defaultStoreyRange = "07 TO 09"
)

// Variant is one what-if input: the base record with a single field
// changed.
type Variant struct {
	Value  interface{}  `json:"value"`
	Record table.Record `json:"-"`
}

// VariationSet groups the variants of one parameter.
type VariationSet struct {
	Parameter   string      `json:"parameter"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	BaseValue   interface{} `json:"base_value"`
	Variants    []Variant   `json:"variations"`
}

// Variations builds the what-if grid for a prediction request: other flat
// models, lease start years within [1960, maxYear], floor areas scaled to
// within [30, 200] square metres and the other common storey ranges.
func Variations(input table.Record, maxYear int) []VariationSet {
	sets := make([]VariationSet, 0, 4)

	model, _ := input.String(FieldFlatModel)
	flat := VariationSet{
		Parameter:   FieldFlatModel,
		Title:       "Flat Model Impact",
		Description: "How different flat models affect the price",
		BaseValue:   model,
	}
	for _, m := range FlatModels {
		if m != model {
			flat.Variants = append(flat.Variants, variant(input, FieldFlatModel, m))
		}
	}
	sets = append(sets, flat)

	lease, ok := input.Float(FieldLeaseCommence)
	if !ok {
		lease = defaultLeaseYear
	}
	leaseSet := VariationSet{
		Parameter:   FieldLeaseCommence,
		Title:       "Lease Commencement Year Impact",
		Description: "How different lease commencement years affect the price",
		BaseValue:   lease,
	}
	for _, off := range leaseOffsets {
		year := lease + off
		if year < MinLeaseYear || year > float64(maxYear) {
			continue
		}
		leaseSet.Variants = append(leaseSet.Variants, variant(input, FieldLeaseCommence, year))
	}
	sets = append(sets, leaseSet)

	area, ok := input.Float(FieldFloorArea)
	if !ok {
		area = defaultFloorArea
	}
	areaSet := VariationSet{
		Parameter:   FieldFloorArea,
		Title:       "Floor Area Impact",
		Description: "How different floor areas affect the price",
		BaseValue:   area,
	}
	for _, f := range areaFactors {
		a := math.RoundToEven(area * f)
		if a < MinFloorArea || a > MaxFloorArea {
			continue
		}
		areaSet.Variants = append(areaSet.Variants, variant(input, FieldFloorArea, a))
	}
	sets = append(sets, areaSet)

	storey, ok := input.String(FieldStoreyRange)
	if !ok || storey == "" {
		storey = defaultStoreyRange
	}
	storeySet := VariationSet{
		Parameter:   FieldStoreyRange,
		Title:       "Storey Range Impact",
		Description: "How different storey ranges affect the price",
		BaseValue:   storey,
	}
	for _, sr := range StoreyRanges {
		if sr != storey {
			storeySet.Variants = append(storeySet.Variants, variant(input, FieldStoreyRange, sr))
		}
	}
	sets = append(sets, storeySet)

	return sets
}

func variant(base table.Record, field string, value interface{}) Variant {
	rec := base.Clone()
	rec[field] = value
	return Variant{Value: value, Record: rec}
}
