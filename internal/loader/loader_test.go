package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"zipenrich/internal/config"
	apperrors "zipenrich/internal/errors"
	"zipenrich/pkg/contracts/domain"
)

const collisionsCSV = `DATE,TIME,BOROUGH,ZIP CODE,LATITUDE,LONGITUDE,LOCATION,NUMBER OF PERSONS INJURED
09/26/2017,14:30,MANHATTAN,10003,40.7306,-73.9352,"(40.7306, -73.9352)",1
09/26/2017,9:05,,,0,0,"(0.0, 0.0)",0

09/27/2017,23:10,brooklyn,11201.0,abc,-73.99,,2
`

func defaultLoader() *Loader {
	return New(OptionsFromConfig(config.Default().Input), nil)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_CSV(t *testing.T) {
	path := writeFile(t, "collisions.csv", collisionsCSV)

	table, report, err := defaultLoader().Load(context.Background(), &FileSource{Path: path})
	require.NoError(t, err)
	require.Equal(t, 3, table.Len(), "blank line is skipped")

	assert.Equal(t, []string{"location", "number_of_persons_injured"}, table.Columns)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 1, report.InvalidCoordinates)
	assert.Empty(t, report.MissingColumns)

	first := table.Records[0]
	require.NotNil(t, first.Latitude)
	assert.Equal(t, 40.7306, *first.Latitude)
	assert.Equal(t, -73.9352, *first.Longitude)
	assert.Equal(t, "10003", *first.ZipCode)
	assert.Equal(t, domain.BoroughManhattan, *first.Borough)
	assert.Equal(t, "09/26/2017", first.RawDate)
	assert.Equal(t, "14:30", first.RawTime)
	assert.Equal(t, "(40.7306, -73.9352)", first.Extra["location"])
	assert.Nil(t, first.Timestamp, "timestamps are merged by the cleaner")

	second := table.Records[1]
	require.NotNil(t, second.Latitude, "zero sentinels are left to the cleaner")
	assert.Equal(t, 0.0, *second.Latitude)
	assert.Nil(t, second.ZipCode)
	assert.Nil(t, second.Borough)

	third := table.Records[2]
	assert.Nil(t, third.Latitude)
	assert.Equal(t, "11201", *third.ZipCode)
	assert.Equal(t, domain.BoroughBrooklyn, *third.Borough)
	_, hasLocation := third.Extra["location"]
	assert.False(t, hasLocation, "empty cells are absent from Extra")
}

func TestLoad_CustomDelimiterAndColumns(t *testing.T) {
	path := writeFile(t, "points.txt", "Lat;Lng;Postal;When\n40.7;-73.9;1003;2020-01-02\n")

	l := New(Options{
		Delimiter: ';',
		Columns: ColumnMap{
			Latitude:  "lat",
			Longitude: "lng",
			ZipCode:   "postal",
			Date:      "when",
		},
	}, nil)

	table, _, err := l.Load(context.Background(), &FileSource{Path: path})
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	rec := table.Records[0]
	assert.Equal(t, "01003", *rec.ZipCode)
	assert.Equal(t, "2020-01-02", rec.RawDate)
	assert.Empty(t, table.Columns)
}

func TestLoad_InvalidValuesDegrade(t *testing.T) {
	path := writeFile(t, "bad.csv", "latitude,longitude,zip_code,borough\n95,-200,ABCDE,ATLANTIS\n")

	table, report, err := defaultLoader().Load(context.Background(), &FileSource{Path: path})
	require.NoError(t, err)

	rec := table.Records[0]
	assert.Nil(t, rec.Latitude)
	assert.Nil(t, rec.Longitude)
	assert.Nil(t, rec.ZipCode)
	assert.Nil(t, rec.Borough)
	assert.Equal(t, 2, report.InvalidCoordinates)
	assert.Equal(t, 1, report.InvalidZipCodes)
	assert.Equal(t, 1, report.UnknownBoroughs)
	assert.Equal(t, []string{"date", "time"}, report.MissingColumns)
}

func TestLoad_RaggedRows(t *testing.T) {
	path := writeFile(t, "ragged.csv", "latitude,longitude,note\n40.7\n40.8,-73.9,x,extra\n")

	table, _, err := defaultLoader().Load(context.Background(), &FileSource{Path: path})
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	assert.Nil(t, table.Records[0].Longitude)
	assert.Equal(t, "x", table.Records[1].Extra["note"])
}

func TestLoad_DerivedColumnNameCollision(t *testing.T) {
	path := writeFile(t, "geo.csv", "latitude,longitude,GEOHASH\n40.7,-73.9,dr5r\n")

	table, _, err := defaultLoader().Load(context.Background(), &FileSource{Path: path})
	require.NoError(t, err)

	assert.Equal(t, []string{"source_geohash"}, table.Columns)
	assert.Equal(t, "dr5r", table.Records[0].Extra["source_geohash"])
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		source   func(t *testing.T) Source
		wantType apperrors.ErrorType
	}{
		{
			name: "missing file",
			source: func(t *testing.T) Source {
				return &FileSource{Path: filepath.Join(t.TempDir(), "nope.csv")}
			},
			wantType: apperrors.ErrTypeStorage,
		},
		{
			name: "empty file",
			source: func(t *testing.T) Source {
				return &FileSource{Path: writeFile(t, "empty.csv", "")}
			},
			wantType: apperrors.ErrTypeParsing,
		},
		{
			name: "duplicate normalized columns",
			source: func(t *testing.T) Source {
				return &FileSource{Path: writeFile(t, "dup.csv", "ZIP CODE,zip_code\n1,2\n")}
			},
			wantType: apperrors.ErrTypeParsing,
		},
		{
			name: "corrupt workbook",
			source: func(t *testing.T) Source {
				return &FileSource{Path: writeFile(t, "broken.xlsx", "not a zip archive")}
			},
			wantType: apperrors.ErrTypeParsing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := defaultLoader().Load(context.Background(), tt.source(t))
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.wantType), "got %v", err)
		})
	}
}

func TestLoad_Cancelled(t *testing.T) {
	var b strings.Builder
	b.WriteString("latitude,longitude\n")
	for i := 0; i < 2500; i++ {
		b.WriteString("40.7,-73.9\n")
	}
	path := writeFile(t, "big.csv", b.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := defaultLoader().Load(ctx, &FileSource{Path: path})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad_Workbook(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Date", "Time", "Zip Code", "Latitude", "Longitude", "Vehicle Type"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"01/15/2019", "08:00", "11201", "40.69", "-73.99", "SEDAN"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"01/16/2019", "", "", "", "", "BIKE"}))

	path := filepath.Join(t.TempDir(), "collisions.xlsx")
	require.NoError(t, f.SaveAs(path))

	table, report, err := defaultLoader().Load(context.Background(), &FileSource{Path: path})
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"borough"}, report.MissingColumns)

	assert.Equal(t, []string{"vehicle_type"}, table.Columns)
	assert.Equal(t, "11201", *table.Records[0].ZipCode)
	assert.Equal(t, 40.69, *table.Records[0].Latitude)
	assert.Equal(t, "SEDAN", table.Records[0].Extra["vehicle_type"])
	assert.Nil(t, table.Records[1].Latitude)
	assert.Equal(t, "01/16/2019", table.Records[1].RawDate)
}
