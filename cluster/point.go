package cluster

import "github.com/paulmach/orb"

// ReferencePoint is one point of interest to be clustered. It is never
// modified after loading.
type ReferencePoint struct {
	ID         string
	Lat, Lon   float64
	Categories map[string]string
	Flags      map[string]float64
}

func (p ReferencePoint) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// Flag returns the binary attribute value; an absent flag scores 0.
func (p ReferencePoint) Flag(name string) float64 {
	return p.Flags[name]
}

// Category returns the categorical attribute value, or "" when absent.
func (p ReferencePoint) Category(name string) string {
	return p.Categories[name]
}
