// Package loader reads a tabular input into a domain.Table.
//
// Delimited text and .xlsx workbooks are supported. Header names are
// normalized before any other stage sees them. Recognised columns are parsed
// into typed record fields, where unparseable values become missing. Every
// other column is carried through as text.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"zipenrich/internal/config"
	apperrors "zipenrich/internal/errors"
	"zipenrich/pkg/contracts/domain"
)

// ColumnMap names the normalized source columns feeding typed record fields.
// An empty name disables that field.
type ColumnMap struct {
	Latitude  string
	Longitude string
	ZipCode   string
	Borough   string
	Date      string
	Time      string
}

// Options configures a Loader
type Options struct {
	Delimiter rune
	// Sheet selects the workbook sheet; the first sheet is used when empty.
	Sheet   string
	Columns ColumnMap
}

// OptionsFromConfig converts the input configuration into loader options
func OptionsFromConfig(cfg config.InputConfig) Options {
	opts := Options{
		Delimiter: ',',
		Sheet:     cfg.Sheet,
		Columns: ColumnMap{
			Latitude:  NormalizeColumnName(cfg.Columns.Latitude),
			Longitude: NormalizeColumnName(cfg.Columns.Longitude),
			ZipCode:   NormalizeColumnName(cfg.Columns.ZipCode),
			Borough:   NormalizeColumnName(cfg.Columns.Borough),
			Date:      NormalizeColumnName(cfg.Columns.Date),
			Time:      NormalizeColumnName(cfg.Columns.Time),
		},
	}
	if r, _ := utf8.DecodeRuneInString(cfg.Delimiter); r != utf8.RuneError {
		opts.Delimiter = r
	}
	return opts
}

// Report summarizes what the loader found
type Report struct {
	Source             string   `json:"source"`
	Rows               int      `json:"rows"`
	Columns            []string `json:"columns"`
	MissingColumns     []string `json:"missing_columns,omitempty"`
	InvalidCoordinates int      `json:"invalid_coordinates"`
	InvalidZipCodes    int      `json:"invalid_zip_codes"`
	UnknownBoroughs    int      `json:"unknown_boroughs"`
}

// Loader reads tables from sources
type Loader struct {
	opts   Options
	logger *slog.Logger
}

// New creates a loader
func New(opts Options, logger *slog.Logger) *Loader {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{opts: opts, logger: logger}
}

// rowReader yields rows one at a time; io.EOF ends the input
type rowReader interface {
	Next() ([]string, error)
}

// Load reads src into a table. Failure to open or parse the input is
// returned as a STORAGE or PARSING AppError; bad cell values are not errors.
func (l *Loader) Load(ctx context.Context, src Source) (*domain.Table, *Report, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, nil, apperrors.NewStorageError("failed to open input", err).
			WithContext("source", src.Name())
	}
	defer rc.Close()

	var rows rowReader
	switch strings.ToLower(filepath.Ext(src.Name())) {
	case ".xlsx", ".xlsm":
		rows, err = l.workbookRows(rc)
	default:
		rows = l.delimitedRows(rc)
	}
	if err != nil {
		return nil, nil, apperrors.NewParsingError("failed to read workbook", err).
			WithContext("source", src.Name())
	}

	table, report, err := l.build(ctx, rows)
	if err != nil {
		return nil, nil, err
	}
	report.Source = src.Name()

	l.logger.InfoContext(ctx, "input_loaded",
		slog.String("source", report.Source),
		slog.Int("rows", report.Rows),
		slog.Int("passthrough_columns", len(table.Columns)),
		slog.Int("invalid_coordinates", report.InvalidCoordinates),
		slog.Int("invalid_zip_codes", report.InvalidZipCodes),
		slog.Int("unknown_boroughs", report.UnknownBoroughs))
	if len(report.MissingColumns) > 0 {
		l.logger.WarnContext(ctx, "input_columns_missing",
			slog.Any("columns", report.MissingColumns))
	}
	return table, report, nil
}

// build maps the header row and every data row onto records
func (l *Loader) build(ctx context.Context, rows rowReader) (*domain.Table, *Report, error) {
	header, err := rows.Next()
	if errors.Is(err, io.EOF) {
		return nil, nil, apperrors.NewParsingError("input has no header row", nil)
	}
	if err != nil {
		return nil, nil, apperrors.NewParsingError("failed to read header", err)
	}

	mapping, err := l.mapHeader(header)
	if err != nil {
		return nil, nil, err
	}

	table := &domain.Table{Columns: mapping.passthroughNames()}
	report := &Report{Columns: mapping.names, MissingColumns: mapping.missing}

	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, apperrors.NewParsingError("failed to read row", err).
				WithContext("line", line)
		}
		if isBlank(row) {
			continue
		}

		table.Records = append(table.Records, mapping.record(row, report))
	}

	report.Rows = len(table.Records)
	return table, report, nil
}

// header maps column positions to record fields
type header struct {
	names       []string
	typed       map[int]string
	passthrough []int
	missing     []string
}

func (l *Loader) mapHeader(cells []string) (*header, error) {
	h := &header{typed: make(map[int]string)}

	wanted := map[string]string{}
	for field, name := range map[string]string{
		domain.ColumnLatitude:  l.opts.Columns.Latitude,
		domain.ColumnLongitude: l.opts.Columns.Longitude,
		domain.ColumnZipCode:   l.opts.Columns.ZipCode,
		domain.ColumnBorough:   l.opts.Columns.Borough,
		fieldDate:              l.opts.Columns.Date,
		fieldTime:              l.opts.Columns.Time,
	} {
		if name != "" {
			wanted[name] = field
		}
	}

	seen := make(map[string]int, len(cells))
	found := make(map[string]bool)
	for i, cell := range cells {
		name := NormalizeColumnName(cell)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if prev, dup := seen[name]; dup {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("duplicate column %q at positions %d and %d", name, prev+1, i+1), nil)
		}
		seen[name] = i
		h.names = append(h.names, name)

		if field, ok := wanted[name]; ok {
			h.typed[i] = field
			found[field] = true
			continue
		}
		if isFixedColumn(name) {
			// a source column named like a derived column would collide with it
			name = "source_" + name
			h.names[i] = name
		}
		h.passthrough = append(h.passthrough, i)
	}

	for name, field := range wanted {
		if !found[field] {
			h.missing = append(h.missing, name)
		}
	}
	sort.Strings(h.missing)
	return h, nil
}

func (h *header) passthroughNames() []string {
	names := make([]string, 0, len(h.passthrough))
	for _, i := range h.passthrough {
		names = append(names, h.names[i])
	}
	return names
}

const (
	fieldDate = "_date"
	fieldTime = "_time"
)

func (h *header) record(row []string, report *Report) domain.Record {
	var rec domain.Record

	for i, field := range h.typed {
		value := cell(row, i)
		switch field {
		case domain.ColumnLatitude:
			rec.Latitude = parseCoordinate(value, 90, report)
		case domain.ColumnLongitude:
			rec.Longitude = parseCoordinate(value, 180, report)
		case domain.ColumnZipCode:
			if value == "" {
				continue
			}
			if zip, ok := domain.CanonicalZip(value); ok {
				rec.ZipCode = &zip
			} else {
				report.InvalidZipCodes++
			}
		case domain.ColumnBorough:
			if value == "" {
				continue
			}
			if b, ok := domain.ParseBorough(value); ok {
				rec.Borough = b.Ptr()
			} else {
				report.UnknownBoroughs++
			}
		case fieldDate:
			rec.RawDate = value
		case fieldTime:
			rec.RawTime = value
		}
	}

	for _, i := range h.passthrough {
		if value := cell(row, i); value != "" {
			if rec.Extra == nil {
				rec.Extra = make(map[string]string, len(h.passthrough))
			}
			rec.Extra[h.names[i]] = value
		}
	}
	return rec
}

// parseCoordinate parses a decimal degree. Unparseable, non-finite and
// out-of-range values are missing. Zero sentinels are left to the cleaner.
func parseCoordinate(value string, limit float64, report *Report) *float64 {
	if value == "" {
		return nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > limit {
		report.InvalidCoordinates++
		return nil
	}
	return &v
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isFixedColumn(name string) bool {
	for _, c := range domain.FixedColumns {
		if c == name {
			return true
		}
	}
	return false
}

type csvRows struct {
	r *csv.Reader
}

func (c *csvRows) Next() ([]string, error) {
	return c.r.Read()
}

func (l *Loader) delimitedRows(r io.Reader) rowReader {
	cr := csv.NewReader(r)
	cr.Comma = l.opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &csvRows{r: cr}
}

type sliceRows struct {
	rows [][]string
	pos  int
}

func (s *sliceRows) Next() ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// workbookRows reads every row of the configured sheet
func (l *Loader) workbookRows(r io.Reader) (rowReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := l.opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return &sliceRows{rows: rows}, nil
}
