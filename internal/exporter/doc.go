// Package exporter writes the enriched table as CSV.
//
// CSVWriter renders each enriched record as one row: the fixed record
// columns, the passthrough columns in table order and finally the
// demographic columns. Missing values are written as empty cells. A UTF-8
// BOM can be prepended for spreadsheet tools.
//
// Example usage:
//
//	w := exporter.NewCSVWriter(logger)
//	err := w.WriteEnriched("data/enriched.csv", enriched, table.Columns)
package exporter
