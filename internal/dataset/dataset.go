// Package dataset declares the persisted entities, their table schemas, and the
// sink abstraction every storage backend implements.
package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/geodata/internal/metrics"
)

// ColumnType is the logical type of a table column.
type ColumnType string

// Supported column types.
const (
	TypeText    ColumnType = "text"
	TypeInteger ColumnType = "integer"
)

// Column describes a single table column.
type Column struct {
	Name string
	Type ColumnType
}

// Schema describes a persisted table.
type Schema struct {
	Name    string
	Columns []Column
	// Index lists the columns identifying a row.
	Index []string
	// UniqueIndex is false for tables that may legitimately hold repeated rows.
	UniqueIndex bool
}

// ColumnNames returns the column names in declaration order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// ErrSchema marks rows that do not fit their table schema.
var ErrSchema = errors.New("row does not match schema")

// Validate checks arity and column types of a single row.
func (s Schema) Validate(row []any) error {
	if len(row) != len(s.Columns) {
		return fmt.Errorf("%w: %s expects %d values, got %d", ErrSchema, s.Name, len(s.Columns), len(row))
	}
	for i, c := range s.Columns {
		switch c.Type {
		case TypeText:
			if _, ok := row[i].(string); !ok {
				return fmt.Errorf("%w: %s.%s expects text, got %T", ErrSchema, s.Name, c.Name, row[i])
			}
		case TypeInteger:
			if _, ok := row[i].(int64); !ok {
				return fmt.Errorf("%w: %s.%s expects integer, got %T", ErrSchema, s.Name, c.Name, row[i])
			}
		default:
			return fmt.Errorf("%w: %s.%s has unknown type %q", ErrSchema, s.Name, c.Name, c.Type)
		}
	}
	return nil
}

// Mode selects how a write treats rows already in the table.
type Mode int

// Persistence modes.
const (
	// Replace makes the written rows the complete content of the table.
	Replace Mode = iota + 1
	// Append adds the written rows without touching existing ones.
	Append
)

func (m Mode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Sink persists table rows. Append writes must be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, schema Schema, mode Mode, rows [][]any) error
	Close() error
}

// Record is implemented by every entity stored in a Table.
type Record interface {
	Values() []any
}

// Table binds an entity type to its schema and a sink.
type Table[T Record] struct {
	schema Schema
	sink   Sink
}

// NewTable creates a Table.
func NewTable[T Record](schema Schema, sink Sink) *Table[T] {
	return &Table[T]{schema: schema, sink: sink}
}

// Schema returns the table schema.
func (t *Table[T]) Schema() Schema {
	return t.schema
}

// ReplaceAll makes records the complete content of the table.
func (t *Table[T]) ReplaceAll(ctx context.Context, records []T) error {
	return t.write(ctx, Replace, records)
}

// Extend appends records to the table.
func (t *Table[T]) Extend(ctx context.Context, records []T) error {
	return t.write(ctx, Append, records)
}

func (t *Table[T]) write(ctx context.Context, mode Mode, records []T) error {
	if t.sink == nil {
		return fmt.Errorf("table %s has no sink", t.schema.Name)
	}
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		row := r.Values()
		if err := t.schema.Validate(row); err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := t.sink.Write(ctx, t.schema, mode, rows); err != nil {
		return fmt.Errorf("%s %s: %w", mode, t.schema.Name, err)
	}
	metrics.ObserveRowsWritten(t.schema.Name, mode.String(), len(rows))
	return nil
}
