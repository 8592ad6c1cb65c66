// Package storage holds helpers shared by the table sink implementations.
// Each backend (memory, local CSV, GCS, Postgres) lives in its own subpackage
// and satisfies dataset.Sink.
package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/JakeFAU/geodata/internal/dataset"
)

// WriteCSV encodes rows as CSV, optionally preceded by a header line.
func WriteCSV(w io.Writer, schema dataset.Schema, rows [][]any, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(schema.ColumnNames()); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	record := make([]string, len(schema.Columns))
	for _, row := range rows {
		for i, v := range row {
			s, err := FormatValue(v)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", schema.Name, schema.Columns[i].Name, err)
			}
			record[i] = s
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// FormatValue renders a single column value as text.
func FormatValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case int:
		return strconv.Itoa(t), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
