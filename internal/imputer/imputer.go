// Package imputer fills in missing postal codes and boroughs.
//
// A record missing a postal code but holding both coordinates is sent to the
// location resolver. A borough is only ever derived from a postal code
// through the region table, so after Impute no record has a borough without
// a postal code.
package imputer

import (
	"context"
	"log/slog"

	"zipenrich/pkg/contracts/domain"
)

// LocationResolver resolves coordinates to a canonical postal code
type LocationResolver interface {
	ResolveLocation(ctx context.Context, lat, lon float64) (string, bool)
}

// RegionTable maps a postal code to a borough
type RegionTable interface {
	Lookup(zip string) (domain.Borough, bool)
}

// Report counts imputation outcomes
type Report struct {
	Records          int  `json:"records"`
	Complete         int  `json:"complete"`
	GeocodeAttempts  int  `json:"geocode_attempts"`
	ZipCodesImputed  int  `json:"zip_codes_imputed"`
	BoroughsImputed  int  `json:"boroughs_imputed"`
	UnmappedZipCodes int  `json:"unmapped_zip_codes"`
	OrphanBoroughs   int  `json:"orphan_boroughs_cleared"`
	NoCoordinates    int  `json:"no_coordinates"`
	Interrupted      bool `json:"interrupted"`
}

// Imputer applies the imputation rules to a table in place
type Imputer struct {
	resolver LocationResolver
	regions  RegionTable
	logger   *slog.Logger
}

// New creates an imputer. A nil resolver disables geocoding, leaving only
// the borough derivation for records that already have a postal code.
func New(resolver LocationResolver, regions RegionTable, logger *slog.Logger) *Imputer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Imputer{resolver: resolver, regions: regions, logger: logger}
}

// Impute walks every record of table. If ctx is cancelled it stops before
// the next record, leaves the rest untouched and reports Interrupted; the
// records already processed keep their imputed values.
func (im *Imputer) Impute(ctx context.Context, table *domain.Table) *Report {
	report := &Report{Records: table.Len()}

	for i := range table.Records {
		if ctx.Err() != nil {
			report.Interrupted = true
			im.logger.WarnContext(ctx, "imputation_interrupted",
				slog.Int("processed", i),
				slog.Int("remaining", table.Len()-i))
			break
		}
		im.imputeRecord(ctx, &table.Records[i], report)
	}

	im.logger.InfoContext(ctx, "imputation_complete",
		slog.Int("records", report.Records),
		slog.Int("complete", report.Complete),
		slog.Int("geocode_attempts", report.GeocodeAttempts),
		slog.Int("zip_codes_imputed", report.ZipCodesImputed),
		slog.Int("boroughs_imputed", report.BoroughsImputed),
		slog.Int("unmapped_zip_codes", report.UnmappedZipCodes),
		slog.Int("orphan_boroughs_cleared", report.OrphanBoroughs))
	return report
}

func (im *Imputer) imputeRecord(ctx context.Context, rec *domain.Record, report *Report) {
	switch {
	case rec.HasZipCode() && rec.HasBorough():
		report.Complete++
		return

	case rec.HasZipCode():
		im.deriveBorough(rec, report)

	case rec.HasCoordinates() && im.resolver != nil:
		report.GeocodeAttempts++
		if zip, ok := im.resolver.ResolveLocation(ctx, *rec.Latitude, *rec.Longitude); ok {
			rec.ZipCode = &zip
			report.ZipCodesImputed++
			if !rec.HasBorough() {
				im.deriveBorough(rec, report)
			}
		}

	case !rec.HasCoordinates():
		report.NoCoordinates++
	}

	if rec.HasBorough() && !rec.HasZipCode() {
		// a region label with no postal code cannot be traced to its source
		rec.Borough = nil
		report.OrphanBoroughs++
	}
}

func (im *Imputer) deriveBorough(rec *domain.Record, report *Report) {
	b, ok := im.regions.Lookup(*rec.ZipCode)
	if !ok {
		report.UnmappedZipCodes++
		return
	}
	rec.Borough = b.Ptr()
	report.BoroughsImputed++
}
