// Package local implements a table sink writing CSV files to the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/geodata/internal/dataset"
	"github.com/JakeFAU/geodata/internal/storage"
)

// Config captures the parameters for the local filesystem sink.
type Config struct {
	// BaseDir is the root directory where table files will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Sink writes one CSV file per table.
type Sink struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a new local filesystem-backed sink.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Sink{
		baseDir: cfg.BaseDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Path returns the file backing table.
func (s *Sink) Path(table string) string {
	return filepath.Join(s.baseDir, table+".csv")
}

// Write replaces or extends the CSV file of schema.
func (s *Sink) Write(_ context.Context, schema dataset.Schema, mode dataset.Mode, rows [][]any) error {
	if strings.ContainsAny(schema.Name, `/\`) || schema.Name == "" {
		return fmt.Errorf("invalid table name %q", schema.Name)
	}
	lock := s.tableLock(schema.Name)
	lock.Lock()
	defer lock.Unlock()

	switch mode {
	case dataset.Replace:
		return s.replace(schema, rows)
	case dataset.Append:
		return s.append(schema, rows)
	default:
		return fmt.Errorf("unsupported mode %s", mode)
	}
}

// Close is a no-op.
func (s *Sink) Close() error { return nil }

func (s *Sink) tableLock(table string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[table]
	if !ok {
		l = &sync.Mutex{}
		s.locks[table] = l
	}
	return l
}

// replace writes to a temporary file first so readers never see a partial table.
func (s *Sink) replace(schema dataset.Schema, rows [][]any) error {
	tmp, err := os.CreateTemp(s.baseDir, "."+schema.Name+"-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if err := storage.WriteCSV(tmp, schema, rows, true); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(schema.Name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename table file: %w", err)
	}
	return nil
}

func (s *Sink) append(schema dataset.Schema, rows [][]any) error {
	path := s.Path(schema.Name)
	// #nosec G304 -- path is derived from the validated table name under baseDir.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open table file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat table file: %w", err)
	}
	if err := storage.WriteCSV(f, schema, rows, info.Size() == 0); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close table file: %w", err)
	}
	return nil
}
