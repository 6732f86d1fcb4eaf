package features

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	storeyPattern = regexp.MustCompile(`(\d+)\s*TO\s*(\d+)`)
	leasePattern  = regexp.MustCompile(`(\d+)\s*years?\s*(\d*)\s*months?`)
	yearsPattern  = regexp.MustCompile(`(\d+)\s*years?`)

	errEmpty   = errors.New("empty value")
	errNoMatch = errors.New("unrecognised format")
)

// ParseStoreyRange turns "07 TO 09" into the midpoint 8.
func ParseStoreyRange(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &MalformedFieldError{Field: FieldStoreyRange, Err: errEmpty}
	}

	m := storeyPattern.FindStringSubmatch(strings.ToUpper(s))
	if m == nil {
		return 0, &MalformedFieldError{Field: FieldStoreyRange, Value: s, Err: errNoMatch}
	}
	lo, _ := strconv.Atoi(m[1])
	hi, _ := strconv.Atoi(m[2])
	return float64(lo+hi) / 2, nil
}

// ParseRemainingLease turns "61 years 04 months" into 736 months. A
// missing month part counts as zero months.
func ParseRemainingLease(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &MalformedFieldError{Field: FieldRemainingLease, Err: errEmpty}
	}

	lower := strings.ToLower(s)
	if m := leasePattern.FindStringSubmatch(lower); m != nil {
		years, _ := strconv.Atoi(m[1])
		months := 0
		if m[2] != "" {
			months, _ = strconv.Atoi(m[2])
		}
		return float64(years*12 + months), nil
	}
	if m := yearsPattern.FindStringSubmatch(lower); m != nil {
		years, _ := strconv.Atoi(m[1])
		return float64(years * 12), nil
	}
	return 0, &MalformedFieldError{Field: FieldRemainingLease, Value: s, Err: errNoMatch}
}

// ParseResaleMonth splits a "2017-01" transaction month into year and month.
func ParseResaleMonth(s string) (year, month int, err error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, &MalformedFieldError{Field: FieldMonth, Value: s, Err: err}
	}
	return t.Year(), int(t.Month()), nil
}
