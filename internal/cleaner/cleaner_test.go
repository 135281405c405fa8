package cleaner

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipenrich/pkg/contracts/domain"
)

func coords(lat, lon *float64) domain.Record {
	return domain.Record{Latitude: lat, Longitude: lon}
}

func TestCleanCoordinates(t *testing.T) {
	f := domain.Float
	tests := []struct {
		name        string
		in          domain.Record
		wantLat     *float64
		wantLon     *float64
		wantChanged bool
	}{
		{"sentinel pair", coords(f(0), f(0)), nil, nil, true},
		{"zero latitude only", coords(f(0), f(-73.9)), nil, f(-73.9), true},
		{"zero longitude only", coords(f(40.7), f(0)), f(40.7), nil, true},
		{"valid pair", coords(f(40.7306), f(-73.9352)), f(40.7306), f(-73.9352), false},
		{"already missing", coords(nil, nil), nil, nil, false},
		{"latitude out of range", coords(f(91), f(-73.9)), nil, f(-73.9), true},
		{"longitude out of range", coords(f(40.7), f(-181)), f(40.7), nil, true},
		{"nan", coords(f(math.NaN()), f(-73.9)), nil, f(-73.9), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.in
			assert.Equal(t, tt.wantChanged, CleanCoordinates(&rec))
			assert.Equal(t, tt.wantLat, rec.Latitude)
			assert.Equal(t, tt.wantLon, rec.Longitude)

			// idempotent
			again := rec
			assert.False(t, CleanCoordinates(&again))
			assert.Equal(t, rec, again)
		})
	}
}

func TestMergeTimestamp(t *testing.T) {
	utc := func(y int, mo time.Month, d, h, mi, s int) *time.Time {
		v := time.Date(y, mo, d, h, mi, s, 0, time.UTC)
		return &v
	}

	tests := []struct {
		name  string
		date  string
		clock string
		want  *time.Time
	}{
		{"us date with time", "09/26/2017", "14:30", utc(2017, 9, 26, 14, 30, 0)},
		{"single digit hour", "09/26/2017", "9:05", utc(2017, 9, 26, 9, 5, 0)},
		{"short month and day", "9/6/2017", "23:59:59", utc(2017, 9, 6, 23, 59, 59)},
		{"iso date", "2017-09-26", "14:30", utc(2017, 9, 26, 14, 30, 0)},
		{"iso date with midnight time part", "2017-09-26T00:00:00.000", "14:30", utc(2017, 9, 26, 14, 30, 0)},
		{"date only", "2017-09-26", "", utc(2017, 9, 26, 0, 0, 0)},
		{"iso datetime only", "2017-09-26T08:15:00", "", utc(2017, 9, 26, 8, 15, 0)},
		{"twelve hour clock", "09/26/2017", "2:30 PM", utc(2017, 9, 26, 14, 30, 0)},
		{"whitespace", " 09/26/2017 ", " 14:30 ", utc(2017, 9, 26, 14, 30, 0)},
		{"garbage date", "yesterday", "14:30", nil},
		{"garbage time", "09/26/2017", "noon", nil},
		{"impossible date", "02/30/2017", "10:00", nil},
		{"empty date", "", "14:30", nil},
		{"empty both", "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeTimestamp(tt.date, tt.clock, nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeTimestamp_Location(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}

	got := MergeTimestamp("07/04/2020", "12:00", ny)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2020, 7, 4, 16, 0, 0, 0, time.UTC), *got)
}

func sampleTable() *domain.Table {
	f := domain.Float
	return &domain.Table{
		Columns: []string{"location", "vehicle"},
		Records: []domain.Record{
			{
				Latitude: f(0), Longitude: f(0),
				RawDate: "09/26/2017", RawTime: "9:05",
				Extra: map[string]string{"location": "(0.0, 0.0)", "vehicle": "SEDAN"},
			},
			{
				Latitude: f(40.7306), Longitude: f(-73.9352),
				RawDate: "not a date", RawTime: "14:30",
				Extra: map[string]string{"location": "(40.7306, -73.9352)"},
			},
		},
	}
}

func TestClean(t *testing.T) {
	table := sampleTable()
	c := New(Options{DropColumns: []string{"location", "absent"}}, nil)

	report, err := c.Clean(context.Background(), table)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Records)
	assert.Equal(t, 1, report.ClearedCoordinates)
	assert.Equal(t, 1, report.TimestampsParsed)
	assert.Equal(t, 1, report.TimestampsMissing)
	assert.Equal(t, 1, report.GeohashesDerived)
	assert.Equal(t, []string{"location"}, report.DroppedColumns)

	assert.Equal(t, []string{"vehicle"}, table.Columns)

	sentinel := table.Records[0]
	assert.Nil(t, sentinel.Latitude)
	assert.Nil(t, sentinel.Longitude)
	assert.Nil(t, sentinel.Geohash)
	require.NotNil(t, sentinel.Timestamp)
	assert.Equal(t, time.Date(2017, 9, 26, 9, 5, 0, 0, time.UTC), *sentinel.Timestamp)
	assert.Equal(t, map[string]string{"vehicle": "SEDAN"}, sentinel.Extra)
	assert.Empty(t, sentinel.RawDate)

	valid := table.Records[1]
	assert.Nil(t, valid.Timestamp, "unparseable timestamps degrade to missing")
	require.NotNil(t, valid.Geohash)
	assert.Len(t, *valid.Geohash, DefaultGeohashPrecision)
	assert.Equal(t, "dr5rtwf", *valid.Geohash)
	assert.Empty(t, valid.Extra)
}

func TestClean_Idempotent(t *testing.T) {
	table := sampleTable()
	c := New(Options{DropColumns: []string{"location"}, GeohashPrecision: 9}, nil)

	_, err := c.Clean(context.Background(), table)
	require.NoError(t, err)

	snapshot := &domain.Table{Columns: append([]string(nil), table.Columns...)}
	for _, r := range table.Records {
		snapshot.Records = append(snapshot.Records, r)
	}

	report, err := c.Clean(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ClearedCoordinates)
	assert.Empty(t, report.DroppedColumns)
	assert.Equal(t, snapshot, table)
}

func TestClean_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}, nil).Clean(ctx, sampleTable())
	assert.ErrorIs(t, err, context.Canceled)
}
