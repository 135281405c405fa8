package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Presence(t *testing.T) {
	empty := Borough("")
	tests := []struct {
		name        string
		rec         Record
		coordinates bool
		zip         bool
		borough     bool
	}{
		{"empty", Record{}, false, false, false},
		{"latitude only", Record{Latitude: Float(40.7)}, false, false, false},
		{"full", Record{Latitude: Float(40.7), Longitude: Float(-73.9), ZipCode: String("10003"), Borough: BoroughManhattan.Ptr()}, true, true, true},
		{"blank zip and borough", Record{ZipCode: String(""), Borough: &empty}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.coordinates, tt.rec.HasCoordinates())
			assert.Equal(t, tt.zip, tt.rec.HasZipCode())
			assert.Equal(t, tt.borough, tt.rec.HasBorough())
		})
	}
}

func TestRecord_Predicates(t *testing.T) {
	var r Record
	assert.False(t, r.HasCoordinates())
	assert.False(t, r.HasZipCode())
	assert.False(t, r.HasBorough())

	r.Latitude = Float(40.7)
	assert.False(t, r.HasCoordinates())
	r.Longitude = Float(-73.9)
	assert.True(t, r.HasCoordinates())

	r.ZipCode = String("")
	assert.False(t, r.HasZipCode())
	r.ZipCode = String("10003")
	assert.True(t, r.HasZipCode())

	r.Borough = BoroughUnspecified.Ptr()
	assert.False(t, r.HasBorough())
	r.Borough = BoroughManhattan.Ptr()
	assert.True(t, r.HasBorough())
}

func TestTable_DropColumns(t *testing.T) {
	table := &Table{
		Columns: []string{"location", "on_street_name", "vehicle_type"},
		Records: []Record{
			{Extra: map[string]string{"location": "(40.7, -73.9)", "on_street_name": "BROADWAY"}},
			{Extra: map[string]string{"vehicle_type": "SEDAN"}},
			{Extra: map[string]string{"location": "(40.8, -73.9)"}},
		},
	}

	dropped := table.DropColumns("location", "not_there")

	assert.Equal(t, []string{"location"}, dropped)
	assert.Equal(t, []string{"on_street_name", "vehicle_type"}, table.Columns)
	assert.NotContains(t, table.Records[0].Extra, "location")
	assert.Equal(t, "BROADWAY", table.Records[0].Extra["on_street_name"])
	assert.Nil(t, table.Records[2].Extra, "emptied maps are released")

	assert.Nil(t, table.DropColumns("absent"))
}

func TestTable_LenNil(t *testing.T) {
	var table *Table
	assert.Zero(t, table.Len())
}

func TestNoData(t *testing.T) {
	d := NoData("10003")
	assert.Equal(t, "10003", d.ZipCode)
	assert.False(t, d.Found)
	assert.Nil(t, d.MedianHomeValue)
	assert.Nil(t, d.Population)
}
