package domain

import (
	"time"
)

// Fixed column names of a cleaned table. Passthrough columns keep their
// normalized source names.
const (
	ColumnLatitude  = "latitude"
	ColumnLongitude = "longitude"
	ColumnZipCode   = "zip_code"
	ColumnBorough   = "borough"
	ColumnTimestamp = "timestamp"
	ColumnGeohash   = "geohash"
)

// FixedColumns lists the typed columns in output order
var FixedColumns = []string{
	ColumnLatitude,
	ColumnLongitude,
	ColumnZipCode,
	ColumnBorough,
	ColumnTimestamp,
	ColumnGeohash,
}

// Record is one row of the source table. A nil pointer means the value is
// missing.
type Record struct {
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	ZipCode   *string    `json:"zip_code,omitempty"`
	Borough   *Borough   `json:"borough,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Geohash   *string    `json:"geohash,omitempty"`

	// Extra holds passthrough columns keyed by normalized column name.
	// Missing cells are absent from the map, never stored as "", and a
	// record without passthrough values has a nil map.
	Extra map[string]string `json:"extra,omitempty"`

	// RawDate and RawTime are the two textual source fields merged into
	// Timestamp by the cleaner. They are not part of the cleaned table.
	RawDate string `json:"-"`
	RawTime string `json:"-"`
}

// HasCoordinates reports whether both coordinates are present
func (r *Record) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// HasZipCode reports whether the record holds a postal code
func (r *Record) HasZipCode() bool {
	return r.ZipCode != nil && *r.ZipCode != ""
}

// HasBorough reports whether the record holds a region label
func (r *Record) HasBorough() bool {
	return r.Borough != nil && *r.Borough != BoroughUnspecified
}

// Table is an in-memory table of records with an ordered set of passthrough
// columns.
type Table struct {
	Columns []string `json:"columns"`
	Records []Record `json:"records"`
}

// Len returns the number of records
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// DropColumns removes passthrough columns by name and returns the names that
// were actually present.
func (t *Table) DropColumns(names ...string) []string {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	kept := make([]string, 0, len(t.Columns))
	var dropped []string
	for _, c := range t.Columns {
		if drop[c] {
			dropped = append(dropped, c)
			continue
		}
		kept = append(kept, c)
	}
	if len(dropped) == 0 {
		return nil
	}

	t.Columns = kept
	for i := range t.Records {
		rec := &t.Records[i]
		for _, c := range dropped {
			delete(rec.Extra, c)
		}
		if len(rec.Extra) == 0 {
			rec.Extra = nil
		}
	}
	return dropped
}

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }

// String returns a pointer to v
func String(v string) *string { return &v }

// Time returns a pointer to v
func Time(v time.Time) *time.Time { return &v }
