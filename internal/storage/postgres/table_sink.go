// Package postgres provides a Postgres-backed table sink.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/geodata/internal/dataset"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink writes table rows into Postgres with COPY.
type Sink struct {
	pool pool
}

// New creates a Postgres-backed Sink using the provided config.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Sink{pool: p}, nil
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Sink, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Sink{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Write copies rows into the schema's table. Replace truncates and copies in
// one transaction so readers see either the old or the new table.
func (s *Sink) Write(ctx context.Context, schema dataset.Schema, mode dataset.Mode, rows [][]any) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres sink is not configured")
	}
	if !validTableName.MatchString(schema.Name) {
		return fmt.Errorf("invalid table name %q", schema.Name)
	}
	table := pgx.Identifier{schema.Name}
	columns := schema.ColumnNames()

	switch mode {
	case dataset.Append:
		if _, err := s.pool.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy into %s: %w", schema.Name, err)
		}
		return nil
	case dataset.Replace:
		return s.replace(ctx, table, columns, rows)
	default:
		return fmt.Errorf("unsupported mode %s", mode)
	}
}

func (s *Sink) replace(ctx context.Context, table pgx.Identifier, columns []string, rows [][]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+table.Sanitize()); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("truncate %s: %w", table.Sanitize(), err)
	}
	if _, err := tx.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows)); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("copy into %s: %w", table.Sanitize(), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// EnsureSchema creates any missing tables and their indexes.
func (s *Sink) EnsureSchema(ctx context.Context, schemas ...dataset.Schema) error {
	for _, schema := range schemas {
		for _, stmt := range CreateStatements(schema) {
			if _, err := s.pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", schema.Name, err)
			}
		}
	}
	return nil
}

// CreateStatements renders the DDL for schema. Unique indexes become the
// primary key; non-unique ones get a plain index.
func CreateStatements(schema dataset.Schema) []string {
	table := pgx.Identifier{schema.Name}.Sanitize()
	defs := make([]string, 0, len(schema.Columns)+1)
	for _, c := range schema.Columns {
		defs = append(defs, fmt.Sprintf("%s %s NOT NULL", pgx.Identifier{c.Name}.Sanitize(), sqlType(c.Type)))
	}
	index := make([]string, len(schema.Index))
	for i, name := range schema.Index {
		index[i] = pgx.Identifier{name}.Sanitize()
	}
	if schema.UniqueIndex && len(index) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(index, ", ")))
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(defs, ",\n\t"))}
	if !schema.UniqueIndex && len(index) > 0 {
		idxName := pgx.Identifier{schema.Name + "_" + strings.Join(schema.Index, "_") + "_idx"}.Sanitize()
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idxName, table, strings.Join(index, ", ")))
	}
	return stmts
}

func sqlType(t dataset.ColumnType) string {
	switch t {
	case dataset.TypeInteger:
		return "BIGINT"
	default:
		return "TEXT"
	}
}
