package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"zipenrich/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter provides CSV export functionality
type CSVWriter struct {
	logger *slog.Logger
	// BOMPrefix adds a UTF-8 BOM to new files for Excel compatibility
	BOMPrefix bool
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{logger: logger}
}

// EnrichedHeader returns the output header: the fixed columns, then the
// passthrough columns in table order, then the demographic columns.
func EnrichedHeader(columns []string) []string {
	header := make([]string, 0, len(domain.FixedColumns)+len(columns)+len(domain.DemographicColumns))
	header = append(header, domain.FixedColumns...)
	header = append(header, columns...)
	header = append(header, domain.DemographicColumns...)
	return header
}

// EnrichedRow renders one enriched record in EnrichedHeader order
func EnrichedRow(rec domain.EnrichedRecord, columns []string) []string {
	row := make([]string, 0, len(domain.FixedColumns)+len(columns)+len(domain.DemographicColumns))
	row = append(row,
		formatFloat(rec.Latitude),
		formatFloat(rec.Longitude),
		formatString(rec.ZipCode),
		formatBorough(rec.Borough),
		formatTime(rec.Timestamp),
		formatString(rec.Geohash),
	)
	for _, c := range columns {
		row = append(row, rec.Extra[c])
	}
	d := rec.Demographic
	row = append(row,
		formatFloat(d.MedianHomeValue),
		formatFloat(d.MedianHouseholdIncome),
		formatInt(d.Population),
	)
	return row
}

// WriteEnriched writes the enriched table to filePath. The file is written
// next to its destination and renamed into place, so a failed export never
// leaves a truncated file behind.
func (w *CSVWriter) WriteEnriched(filePath string, records []domain.EnrichedRecord, columns []string) error {
	w.logger.Info("Writing enriched CSV",
		slog.String("file_path", filePath),
		slog.Int("record_count", len(records)),
		slog.Int("passthrough_columns", len(columns)))

	tmpPath := filePath + ".tmp"
	stream, err := w.CreateStreamWriter(tmpPath, EnrichedHeader(columns))
	if err != nil {
		return err
	}

	for i := range records {
		if err := stream.WriteRecord(EnrichedRow(records[i], columns)); err != nil {
			stream.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := stream.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finish CSV: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move CSV into place: %w", err)
	}
	return nil
}

// StreamWriter provides streaming CSV writing for large datasets
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
}

// CreateStreamWriter creates a new streaming CSV writer
func (w *CSVWriter) CreateStreamWriter(filePath string, headers []string) (*StreamWriter, error) {
	w.logger.Debug("Creating CSV stream writer",
		slog.String("file_path", filePath),
		slog.Int("header_count", len(headers)))

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	if w.BOMPrefix {
		if _, err := file.Write(utf8BOM); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(file)

	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
	}

	return &StreamWriter{
		file:   file,
		writer: writer,
	}, nil
}

// WriteRecord writes a single record to the stream
func (s *StreamWriter) WriteRecord(record []string) error {
	return s.writer.Write(record)
}

// Close flushes and closes the stream writer
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
