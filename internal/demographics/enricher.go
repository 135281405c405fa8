// Package demographics joins demographic data onto records by postal code.
//
// BuildIndex looks every distinct canonical postal code up exactly once and
// records an explicit "no data" entry for misses and failures, so Join can
// be a total left join: every record comes out, matched or not.
package demographics

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"zipenrich/internal/infrastructure"
	"zipenrich/pkg/contracts/domain"
)

// ErrNotFound is returned by a Lookup that has no data for a postal code
var ErrNotFound = errors.New("demographics: zip code not found")

// Lookup fetches the demographic record for a canonical postal code
type Lookup interface {
	Lookup(ctx context.Context, zip string) (domain.Demographic, error)
}

// LookupFunc adapts a function to the Lookup interface
type LookupFunc func(ctx context.Context, zip string) (domain.Demographic, error)

// Lookup calls f
func (f LookupFunc) Lookup(ctx context.Context, zip string) (domain.Demographic, error) {
	return f(ctx, zip)
}

// Index maps canonical postal codes to their demographic data. It lives for
// one pipeline run and is owned by a single goroutine.
type Index map[string]domain.Demographic

// Get returns the entry for zip, or the no-data marker if there is none
func (ix Index) Get(zip string) domain.Demographic {
	if d, ok := ix[zip]; ok {
		return d
	}
	return domain.NoData(zip)
}

// Stats counts index-building outcomes
type Stats struct {
	Records          int `json:"records"`
	WithoutZipCode   int `json:"without_zip_code"`
	DistinctZipCodes int `json:"distinct_zip_codes"`
	Lookups          int `json:"lookups"`
	Found            int `json:"found"`
	NotFound         int `json:"not_found"`
	Errors           int `json:"errors"`
	Skipped          int `json:"skipped"`
}

// Enricher builds the postal-code index and joins it onto records
type Enricher struct {
	lookup  Lookup
	logger  *slog.Logger
	lookups metric.Int64Counter
}

// New creates an enricher. metrics may be nil.
func New(lookup Lookup, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Enricher{lookup: lookup, logger: logger}
	if metrics != nil {
		e.lookups = metrics.DemographicLookups
	}
	return e
}

// DistinctZipCodes returns the distinct canonical postal codes of records in
// order of first appearance, and the number of records without one.
func DistinctZipCodes(records []domain.Record) ([]string, int) {
	seen := make(map[string]bool)
	var zips []string
	without := 0
	for i := range records {
		zip, ok := canonicalZip(&records[i])
		if !ok {
			without++
			continue
		}
		if !seen[zip] {
			seen[zip] = true
			zips = append(zips, zip)
		}
	}
	return zips, without
}

// BuildIndex looks up each distinct postal code of records exactly once.
// Misses and lookup errors become no-data entries. If ctx is cancelled the
// remaining codes get no-data entries without a lookup and are counted as
// skipped.
func (e *Enricher) BuildIndex(ctx context.Context, records []domain.Record) (Index, Stats) {
	zips, without := DistinctZipCodes(records)
	stats := Stats{
		Records:          len(records),
		WithoutZipCode:   without,
		DistinctZipCodes: len(zips),
	}

	index := make(Index, len(zips))
	for _, zip := range zips {
		if ctx.Err() != nil {
			index[zip] = domain.NoData(zip)
			stats.Skipped++
			continue
		}

		stats.Lookups++
		d, err := e.lookup.Lookup(ctx, zip)
		switch {
		case err == nil && d.Found:
			d.ZipCode = zip
			index[zip] = d
			stats.Found++
			e.record(ctx, "found")
		case err == nil || errors.Is(err, ErrNotFound):
			index[zip] = domain.NoData(zip)
			stats.NotFound++
			e.record(ctx, "not_found")
			e.logger.DebugContext(ctx, "demographic_lookup_miss", slog.String("zip_code", zip))
		default:
			index[zip] = domain.NoData(zip)
			stats.Errors++
			e.record(ctx, "error")
			e.logger.WarnContext(ctx, "demographic_lookup_failed",
				slog.String("zip_code", zip),
				slog.String("error", err.Error()))
		}
	}

	e.logger.InfoContext(ctx, "demographic_index_built",
		slog.Int("records", stats.Records),
		slog.Int("distinct_zip_codes", stats.DistinctZipCodes),
		slog.Int("lookups", stats.Lookups),
		slog.Int("found", stats.Found),
		slog.Int("not_found", stats.NotFound),
		slog.Int("errors", stats.Errors),
		slog.Int("skipped", stats.Skipped))
	return index, stats
}

func (e *Enricher) record(ctx context.Context, result string) {
	if e.lookups != nil {
		e.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

// Enrich builds the index for records and joins it back onto them
func (e *Enricher) Enrich(ctx context.Context, records []domain.Record) ([]domain.EnrichedRecord, Stats) {
	index, stats := e.BuildIndex(ctx, records)
	return Join(records, index), stats
}

// Join left-joins records against index on the canonical postal code. The
// output has one entry per input record, in order; records without a postal
// code or without an index entry carry the no-data marker.
func Join(records []domain.Record, index Index) []domain.EnrichedRecord {
	out := make([]domain.EnrichedRecord, len(records))
	for i := range records {
		out[i].Record = records[i]
		if zip, ok := canonicalZip(&records[i]); ok {
			out[i].Demographic = index.Get(zip)
		} else {
			out[i].Demographic = domain.NoData("")
		}
	}
	return out
}

func canonicalZip(r *domain.Record) (string, bool) {
	if !r.HasZipCode() {
		return "", false
	}
	return domain.CanonicalZip(*r.ZipCode)
}
