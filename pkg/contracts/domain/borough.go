package domain

import (
	"strings"
)

// Borough is the administrative region label derived from a postal code
type Borough string

const (
	BoroughUnspecified  Borough = ""
	BoroughManhattan    Borough = "MANHATTAN"
	BoroughBronx        Borough = "BRONX"
	BoroughBrooklyn     Borough = "BROOKLYN"
	BoroughQueens       Borough = "QUEENS"
	BoroughStatenIsland Borough = "STATEN ISLAND"
)

// Boroughs lists every known borough
var Boroughs = []Borough{
	BoroughManhattan,
	BoroughBronx,
	BoroughBrooklyn,
	BoroughQueens,
	BoroughStatenIsland,
}

// ParseBorough matches a borough name case-insensitively. Underscores and
// repeated spaces are tolerated ("staten_island", "Staten  Island").
func ParseBorough(s string) (Borough, bool) {
	name := strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " "))
	for _, b := range Boroughs {
		if string(b) == name {
			return b, true
		}
	}
	return BoroughUnspecified, false
}

// String returns the borough name
func (b Borough) String() string {
	return string(b)
}

// Ptr returns a pointer to b
func (b Borough) Ptr() *Borough {
	return &b
}
