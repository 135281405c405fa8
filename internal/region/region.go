// Package region maps canonical postal codes to NYC boroughs.
//
// The mapping is a sorted table of inclusive, non-overlapping code ranges.
// Lookup is total over valid postal codes: a code outside every range is
// reported as unmapped rather than assigned a default borough.
package region

import (
	"sort"

	"zipenrich/pkg/contracts/domain"
)

// Range assigns every code in [Low, High] to a borough. Bounds are canonical
// five-digit codes, so lexical order equals numeric order.
type Range struct {
	Low     string
	High    string
	Borough domain.Borough
}

// Table is a sorted set of non-overlapping ranges
type Table struct {
	ranges []Range
}

// nycRanges follows the USPS sectional center assignments for the five
// boroughs. Adjacent ranges never share a bound.
var nycRanges = []Range{
	{"10001", "10299", domain.BoroughManhattan},
	{"10301", "10314", domain.BoroughStatenIsland},
	{"10451", "10475", domain.BoroughBronx},
	{"11004", "11005", domain.BoroughQueens},
	{"11101", "11120", domain.BoroughQueens},
	{"11201", "11256", domain.BoroughBrooklyn},
	{"11351", "11697", domain.BoroughQueens},
}

var defaultTable = MustNewTable(nycRanges)

// NewTable sorts ranges and rejects malformed or overlapping entries.
func NewTable(ranges []Range) (*Table, error) {
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Low < sorted[j].Low })

	for i, r := range sorted {
		low, okLow := domain.CanonicalZip(r.Low)
		high, okHigh := domain.CanonicalZip(r.High)
		if !okLow || !okHigh || low != r.Low || high != r.High {
			return nil, &RangeError{Range: r, Reason: "bounds are not canonical postal codes"}
		}
		if r.Low > r.High {
			return nil, &RangeError{Range: r, Reason: "low bound above high bound"}
		}
		if r.Borough == domain.BoroughUnspecified {
			return nil, &RangeError{Range: r, Reason: "missing borough"}
		}
		if i > 0 && sorted[i-1].High >= r.Low {
			return nil, &RangeError{Range: r, Reason: "overlaps " + sorted[i-1].Low + "-" + sorted[i-1].High}
		}
	}
	return &Table{ranges: sorted}, nil
}

// MustNewTable is like NewTable but panics on error
func MustNewTable(ranges []Range) *Table {
	t, err := NewTable(ranges)
	if err != nil {
		panic(err)
	}
	return t
}

// Default returns the built-in NYC borough table
func Default() *Table {
	return defaultTable
}

// Lookup canonicalizes zip and returns the borough whose range contains it.
// The second result is false for invalid or unmapped codes.
func (t *Table) Lookup(zip string) (domain.Borough, bool) {
	code, ok := domain.CanonicalZip(zip)
	if !ok {
		return domain.BoroughUnspecified, false
	}

	// first range whose high bound is >= code
	i := sort.Search(len(t.ranges), func(i int) bool { return t.ranges[i].High >= code })
	if i < len(t.ranges) && t.ranges[i].Low <= code {
		return t.ranges[i].Borough, true
	}
	return domain.BoroughUnspecified, false
}

// Ranges returns a copy of the table's ranges in ascending order
func (t *Table) Ranges() []Range {
	out := make([]Range, len(t.ranges))
	copy(out, t.ranges)
	return out
}

// Lookup resolves zip against the default table
func Lookup(zip string) (domain.Borough, bool) {
	return defaultTable.Lookup(zip)
}

// RangeError reports an invalid range table entry
type RangeError struct {
	Range  Range
	Reason string
}

func (e *RangeError) Error() string {
	return "invalid range " + e.Range.Low + "-" + e.Range.High + ": " + e.Reason
}
