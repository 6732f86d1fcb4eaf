package features

// Field names written or read by the engineer.
const (
	FieldYear                 = "year"
	FieldMonth                = "month"
	FieldLeaseCommence        = "lease_commence_date"
	FieldRemainingLease       = "remaining_lease"
	FieldStoreyRange          = "storey_range"
	FieldFloorArea            = "floor_area_sqm"
	FieldTown                 = "town"
	FieldFlatType             = "flat_type"
	FieldFlatModel            = "flat_model"
	FieldBlock                = "block"
	FieldStreetName           = "street_name"
	FieldAddress              = "address"
	FieldPostalCode           = "postal_code"
	FieldResalePrice          = "resale_price"
	FieldFlatAge              = "flat_age_at_resale"
	FieldYearsFromLease       = "years_from_lease"
	FieldRemainingLeaseMonths = "remaining_lease_months"
	FieldStoreyMean           = "storey_mean"
	FieldHighFloor            = "is_high_floor"
	FieldBigUnit              = "is_big_unit"
	FieldSchoolQuality        = "school_quality"
	FieldRegion               = "region"
	FieldTownEncoded          = "town_encoded"
	FieldAverageClose         = "average_close"
	FieldUnemploymentRate     = "unemployment_rate"
)

const (
	HighFloorThreshold = 12.0
	BigUnitThreshold   = 110.0
)

// SchoolQualityFields are summed into school_quality.
var SchoolQualityFields = []string{"sap_ind_pct", "autonomous_ind_pct", "gifted_ind_pct", "ip_ind_pct"}

// Policy is the single table of fallback values used when a field is
// missing or malformed. Fields not listed default to 0.
type Policy map[string]float64

func DefaultPolicy() Policy {
	return Policy{
		FieldStoreyMean:           6,
		FieldRemainingLeaseMonths: 0,
		FieldFlatAge:              0,
		FieldYearsFromLease:       0,
		FieldFloorArea:            0,
		FieldAverageClose:         0,
		FieldUnemploymentRate:     0,
		FieldTownEncoded:          0,
	}
}

// Default returns the fallback for field.
func (p Policy) Default(field string) float64 {
	return p[field]
}
