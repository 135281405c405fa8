// Package cleaner rewrites sentinel values in a loaded table.
//
// Zero coordinates become missing, the two textual date and time fields are
// merged into one timestamp, redundant columns are dropped and a geohash is
// derived from the surviving coordinates. Nothing here returns an error for
// bad data: unusable values degrade to missing.
package cleaner

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"

	"zipenrich/pkg/contracts/domain"
)

// DefaultGeohashPrecision is the geohash length used when none is configured
const DefaultGeohashPrecision = 7

// Options configures a Cleaner
type Options struct {
	// DropColumns are normalized passthrough column names to remove
	DropColumns []string
	// GeohashPrecision is the geohash length in characters (1-12)
	GeohashPrecision uint
	// Location interprets timestamps without a zone; UTC when nil
	Location *time.Location
}

// Report counts what the cleaner changed
type Report struct {
	Records            int      `json:"records"`
	ClearedCoordinates int      `json:"cleared_coordinates"`
	TimestampsParsed   int      `json:"timestamps_parsed"`
	TimestampsMissing  int      `json:"timestamps_missing"`
	GeohashesDerived   int      `json:"geohashes_derived"`
	DroppedColumns     []string `json:"dropped_columns,omitempty"`
}

// Cleaner applies the cleaning rules to a table in place
type Cleaner struct {
	opts   Options
	logger *slog.Logger
}

// New creates a cleaner
func New(opts Options, logger *slog.Logger) *Cleaner {
	if opts.GeohashPrecision == 0 || opts.GeohashPrecision > 12 {
		opts.GeohashPrecision = DefaultGeohashPrecision
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{opts: opts, logger: logger}
}

// Clean rewrites every record of table. It stops early, returning the
// context error, if ctx is cancelled.
func (c *Cleaner) Clean(ctx context.Context, table *domain.Table) (*Report, error) {
	report := &Report{Records: table.Len()}
	report.DroppedColumns = table.DropColumns(c.opts.DropColumns...)

	for i := range table.Records {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}
		c.cleanRecord(&table.Records[i], report)
	}

	c.logger.InfoContext(ctx, "table_cleaned",
		slog.Int("records", report.Records),
		slog.Int("cleared_coordinates", report.ClearedCoordinates),
		slog.Int("timestamps_parsed", report.TimestampsParsed),
		slog.Int("timestamps_missing", report.TimestampsMissing),
		slog.Int("geohashes_derived", report.GeohashesDerived),
		slog.Any("dropped_columns", report.DroppedColumns))
	return report, nil
}

func (c *Cleaner) cleanRecord(rec *domain.Record, report *Report) {
	if CleanCoordinates(rec) {
		report.ClearedCoordinates++
	}

	if rec.RawDate != "" || rec.RawTime != "" {
		rec.Timestamp = MergeTimestamp(rec.RawDate, rec.RawTime, c.opts.Location)
		rec.RawDate, rec.RawTime = "", ""
	}
	if rec.Timestamp != nil {
		report.TimestampsParsed++
	} else {
		report.TimestampsMissing++
	}

	rec.Geohash = nil
	if rec.HasCoordinates() {
		hash := geohash.EncodeWithPrecision(*rec.Latitude, *rec.Longitude, c.opts.GeohashPrecision)
		rec.Geohash = &hash
		report.GeohashesDerived++
	}
}

// CleanCoordinates replaces sentinel and invalid coordinates with missing.
// A (0,0) pair clears both, a single zero clears that coordinate, and
// non-finite or out-of-range values are cleared too. It reports whether
// anything changed; applying it twice is the same as applying it once.
func CleanCoordinates(rec *domain.Record) bool {
	changed := false
	if rec.Latitude != nil && !validCoordinate(*rec.Latitude, 90) {
		rec.Latitude = nil
		changed = true
	}
	if rec.Longitude != nil && !validCoordinate(*rec.Longitude, 180) {
		rec.Longitude = nil
		changed = true
	}
	return changed
}

func validCoordinate(v, limit float64) bool {
	return v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= limit
}

// dateTimeLayouts parse a date and a time of day joined by one space
var dateTimeLayouts = []string{
	"01/02/2006 15:04",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"01/02/2006 3:04 PM",
	"01/02/2006 03:04:05 PM",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
}

// singleLayouts parse a date field that stands alone
var singleLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
}

// MergeTimestamp combines a date field and a time-of-day field into one UTC
// timestamp. A date carrying its own time of day ("2017-09-26T00:00:00.000")
// is truncated to the date when clock is set. Unparseable input yields nil.
func MergeTimestamp(date, clock string, loc *time.Location) *time.Time {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	layouts := singleLayouts
	value := date
	if clock != "" {
		if i := strings.IndexByte(date, 'T'); i > 0 {
			date = date[:i]
		}
		value = date + " " + clock
		layouts = dateTimeLayouts
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
