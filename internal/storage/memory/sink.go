// Package memory keeps table rows in-memory for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/geodata/internal/dataset"
)

// Sink stores table rows in-memory.
type Sink struct {
	mu     sync.RWMutex
	tables map[string][][]any
	writes map[string]int
}

// NewSink creates an empty in-memory sink.
func NewSink() *Sink {
	return &Sink{
		tables: make(map[string][][]any),
		writes: make(map[string]int),
	}
}

// Write replaces or extends the named table with copies of rows.
func (s *Sink) Write(_ context.Context, schema dataset.Schema, mode dataset.Mode, rows [][]any) error {
	copied := make([][]any, len(rows))
	for i, row := range rows {
		copied[i] = append([]any(nil), row...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch mode {
	case dataset.Replace:
		s.tables[schema.Name] = copied
	case dataset.Append:
		s.tables[schema.Name] = append(s.tables[schema.Name], copied...)
	default:
		return fmt.Errorf("unsupported mode %s", mode)
	}
	s.writes[schema.Name]++
	return nil
}

// Rows returns a snapshot of the rows stored for table.
func (s *Sink) Rows(table string) [][]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]any, len(s.tables[table]))
	copy(out, s.tables[table])
	return out
}

// Writes reports how many writes table has received.
func (s *Sink) Writes(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[table]
}

// Close is a no-op.
func (s *Sink) Close() error { return nil }
