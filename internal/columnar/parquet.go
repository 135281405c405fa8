// Package columnar persists a cleaned table as a Parquet file and reads it
// back.
//
// The Arrow schema has the typed record columns first, then one nullable
// string column per passthrough column in table order. Missing values are
// written as nulls, so a write followed by a read reproduces the table.
package columnar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	apperrors "zipenrich/internal/errors"
	"zipenrich/pkg/contracts/domain"
)

// DefaultBatchSize is the number of records per Arrow record batch
const DefaultBatchSize = 64 * 1024

// Pool is the allocator used for all Arrow buffers
var Pool = memory.NewGoAllocator()

// fixedFields are the typed columns, in the order of domain.FixedColumns
var fixedFields = []arrow.Field{
	{Name: domain.ColumnLatitude, Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: domain.ColumnLongitude, Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: domain.ColumnZipCode, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: domain.ColumnBorough, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: domain.ColumnTimestamp, Type: arrow.FixedWidthTypes.Timestamp_us, Nullable: true},
	{Name: domain.ColumnGeohash, Type: arrow.BinaryTypes.String, Nullable: true},
}

// WriteOptions configures WriteFile
type WriteOptions struct {
	// Compression is one of snappy, zstd, gzip or none; snappy when empty
	Compression string
	BatchSize   int
}

// Schema builds the Arrow schema for a table
func Schema(table *domain.Table) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(fixedFields)+len(table.Columns))
	fields = append(fields, fixedFields...)

	seen := make(map[string]bool, cap(fields))
	for _, f := range fixedFields {
		seen[f.Name] = true
	}
	for _, c := range table.Columns {
		if seen[c] {
			return nil, fmt.Errorf("column %q is duplicated or shadows a typed column", c)
		}
		seen[c] = true
		fields = append(fields, arrow.Field{Name: c, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

func codec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported compression %q", name)
	}
}

// WriteFile writes table to path, replacing any existing file. The file is
// written under a temporary name and renamed into place once complete.
func WriteFile(path string, table *domain.Table, opts WriteOptions) error {
	schema, err := Schema(table)
	if err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	comp, err := codec(opts.Compression)
	if err != nil {
		return apperrors.NewConfigError("invalid parquet options", err)
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperrors.NewStorageError("failed to create output directory", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return apperrors.NewStorageError("failed to create parquet file", err)
	}
	defer os.Remove(tmp)
	// the parquet writer closes f
	defer f.Close()

	props := parquet.NewWriterProperties(parquet.WithCompression(comp))
	w, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return apperrors.NewStorageError("failed to create parquet writer", err)
	}

	for start := 0; start < len(table.Records); start += batch {
		end := start + batch
		if end > len(table.Records) {
			end = len(table.Records)
		}
		if err := writeBatch(w, schema, table, table.Records[start:end]); err != nil {
			w.Close()
			return apperrors.NewStorageError("failed to write parquet batch", err).
				WithContext("offset", start)
		}
	}

	if err := w.Close(); err != nil {
		return apperrors.NewStorageError("failed to finalize parquet file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperrors.NewStorageError("failed to move parquet file into place", err)
	}
	return nil
}

func writeBatch(w *pqarrow.FileWriter, schema *arrow.Schema, table *domain.Table, records []domain.Record) error {
	b := array.NewRecordBuilder(Pool, schema)
	defer b.Release()

	lat := b.Field(0).(*array.Float64Builder)
	lon := b.Field(1).(*array.Float64Builder)
	zip := b.Field(2).(*array.StringBuilder)
	borough := b.Field(3).(*array.StringBuilder)
	ts := b.Field(4).(*array.TimestampBuilder)
	hash := b.Field(5).(*array.StringBuilder)

	extras := make([]*array.StringBuilder, len(table.Columns))
	for i := range table.Columns {
		extras[i] = b.Field(len(fixedFields) + i).(*array.StringBuilder)
	}

	for _, r := range records {
		appendFloat(lat, r.Latitude)
		appendFloat(lon, r.Longitude)
		appendString(zip, r.ZipCode)
		if r.Borough != nil {
			borough.Append(string(*r.Borough))
		} else {
			borough.AppendNull()
		}
		if r.Timestamp != nil {
			ts.Append(arrow.Timestamp(r.Timestamp.UnixMicro()))
		} else {
			ts.AppendNull()
		}
		appendString(hash, r.Geohash)

		for i, c := range table.Columns {
			if v, ok := r.Extra[c]; ok {
				extras[i].Append(v)
			} else {
				extras[i].AppendNull()
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()
	return w.Write(rec)
}

func appendFloat(b *array.Float64Builder, v *float64) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}

func appendString(b *array.StringBuilder, v *string) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}

// ReadFile reads a file written by WriteFile back into a table
func ReadFile(ctx context.Context, path string) (*domain.Table, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open parquet file", err).
			WithContext("path", path)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: DefaultBatchSize}, Pool)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read parquet metadata", err)
	}

	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read parquet data", err)
	}
	defer tbl.Release()

	table, err := newTable(tbl.Schema())
	if err != nil {
		return nil, apperrors.NewParsingError("unexpected parquet schema", err).
			WithContext("path", path)
	}
	table.Records = make([]domain.Record, 0, tbl.NumRows())

	tr := array.NewTableReader(tbl, DefaultBatchSize)
	defer tr.Release()
	for tr.Next() {
		if err := appendRecords(table, tr.Record()); err != nil {
			return nil, apperrors.NewParsingError("failed to decode parquet batch", err)
		}
	}
	if err := tr.Err(); err != nil {
		return nil, apperrors.NewParsingError("failed to read parquet batch", err)
	}
	return table, nil
}

// newTable checks that schema starts with the typed columns and returns an
// empty table with the remaining fields as passthrough columns.
func newTable(schema *arrow.Schema) (*domain.Table, error) {
	fields := schema.Fields()
	if len(fields) < len(fixedFields) {
		return nil, fmt.Errorf("expected at least %d columns, found %d", len(fixedFields), len(fields))
	}
	for i, want := range fixedFields {
		if fields[i].Name != want.Name || fields[i].Type.ID() != want.Type.ID() {
			return nil, fmt.Errorf("column %d: expected %s %s, found %s %s",
				i, want.Name, want.Type, fields[i].Name, fields[i].Type)
		}
	}

	table := &domain.Table{}
	for _, f := range fields[len(fixedFields):] {
		if f.Type.ID() != arrow.STRING {
			return nil, fmt.Errorf("passthrough column %s has type %s", f.Name, f.Type)
		}
		table.Columns = append(table.Columns, f.Name)
	}
	return table, nil
}

func appendRecords(table *domain.Table, rec arrow.Record) error {
	lat, ok1 := rec.Column(0).(*array.Float64)
	lon, ok2 := rec.Column(1).(*array.Float64)
	zip, ok3 := rec.Column(2).(*array.String)
	borough, ok4 := rec.Column(3).(*array.String)
	ts, ok5 := rec.Column(4).(*array.Timestamp)
	hash, ok6 := rec.Column(5).(*array.String)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return fmt.Errorf("typed columns have unexpected array types")
	}
	unit := ts.DataType().(*arrow.TimestampType).Unit

	extras := make([]*array.String, len(table.Columns))
	for i := range table.Columns {
		col, ok := rec.Column(len(fixedFields) + i).(*array.String)
		if !ok {
			return fmt.Errorf("column %s is not a string array", table.Columns[i])
		}
		extras[i] = col
	}

	for i := 0; i < int(rec.NumRows()); i++ {
		var r domain.Record
		r.Latitude = floatAt(lat, i)
		r.Longitude = floatAt(lon, i)
		r.ZipCode = stringAt(zip, i)
		if s := stringAt(borough, i); s != nil {
			b := domain.Borough(*s)
			r.Borough = &b
		}
		if ts.IsValid(i) {
			t := ts.Value(i).ToTime(unit)
			r.Timestamp = &t
		}
		r.Geohash = stringAt(hash, i)

		for j, c := range table.Columns {
			if extras[j].IsValid(i) {
				if r.Extra == nil {
					r.Extra = make(map[string]string)
				}
				r.Extra[c] = extras[j].Value(i)
			}
		}
		table.Records = append(table.Records, r)
	}
	return nil
}

func floatAt(a *array.Float64, i int) *float64 {
	if a.IsNull(i) {
		return nil
	}
	v := a.Value(i)
	return &v
}

func stringAt(a *array.String, i int) *string {
	if a.IsNull(i) {
		return nil
	}
	v := a.Value(i)
	return &v
}

// FileInfo describes a parquet file
type FileInfo struct {
	Path         string        `json:"path"`
	Rows         int64         `json:"rows"`
	RowGroups    int           `json:"row_groups"`
	Schema       *arrow.Schema `json:"-"`
	Columns      []string      `json:"columns"`
	ModifiedTime time.Time     `json:"modified_time"`
}

// Inspect reads the metadata of a parquet file without loading its data
func Inspect(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to stat parquet file", err)
	}

	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open parquet file", err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, Pool)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read parquet metadata", err)
	}
	schema, err := fr.Schema()
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read arrow schema", err)
	}

	info := &FileInfo{
		Path:         path,
		Rows:         rdr.NumRows(),
		RowGroups:    rdr.NumRowGroups(),
		Schema:       schema,
		ModifiedTime: stat.ModTime(),
	}
	for _, f := range schema.Fields() {
		info.Columns = append(info.Columns, f.Name)
	}
	return info, nil
}
