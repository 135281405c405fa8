package zipdb

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	apperrors "zipenrich/internal/errors"
	"zipenrich/pkg/contracts/domain"
)

// importBatchSize bounds the number of records written per transaction
const importBatchSize = 5000

// ImportStats summarizes an import
type ImportStats struct {
	Rows     int `json:"rows"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// column aliases accepted in the CSV header, after lowercasing
var importColumns = map[string][]string{
	"zip":        {"zipcode", "zip_code", "zip", "zcta"},
	"home":       {"median_home_value", "median_value"},
	"income":     {"median_household_income", "median_income"},
	"population": {"population", "total_population"},
}

// ImportCSV loads demographic rows from r. The header must name a postal
// code column; value columns are optional and blank or unparseable values
// are stored as missing. Rows with an invalid postal code are skipped.
func (s *Store) ImportCSV(r io.Reader) (*ImportStats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, apperrors.NewParsingError("reading header", err)
	}
	pos := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for field, aliases := range importColumns {
			for _, alias := range aliases {
				if name == alias {
					if _, dup := pos[field]; !dup {
						pos[field] = i
					}
				}
			}
		}
	}
	if _, ok := pos["zip"]; !ok {
		return nil, apperrors.NewParsingError(fmt.Sprintf("no postal code column in header %v", header), nil)
	}

	stats := &ImportStats{}
	batch := make([]domain.Demographic, 0, importBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.PutAll(batch); err != nil {
			return apperrors.NewStorageError("writing import batch", err)
		}
		stats.Imported += len(batch)
		batch = batch[:0]
		return nil
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, apperrors.NewParsingError("reading row", err).WithContext("line", line)
		}
		stats.Rows++

		zip, ok := domain.CanonicalZip(field(row, pos, "zip"))
		if !ok {
			stats.Skipped++
			continue
		}
		batch = append(batch, domain.Demographic{
			ZipCode:               zip,
			Found:                 true,
			MedianHomeValue:       parseFloat(field(row, pos, "home")),
			MedianHouseholdIncome: parseFloat(field(row, pos, "income")),
			Population:            parseInt(field(row, pos, "population")),
		})
		if len(batch) == importBatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

func field(row []string, pos map[string]int, name string) string {
	i, ok := pos[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Negative values are census missing-data sentinels such as -666666666.
func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func parseInt(s string) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
