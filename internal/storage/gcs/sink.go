// Package gcs provides a table sink backed by Google Cloud Storage.
//
// Each table is a prefix holding one or more CSV part objects. Replace removes
// every existing part before writing a single new one; Append adds a part.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/geodata/internal/dataset"
	storagecsv "github.com/JakeFAU/geodata/internal/storage"
)

// Config captures the parameters required to write tables to GCS.
type Config struct {
	Bucket string
	Prefix string
}

type objectStore interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

// Sink writes tables as CSV part objects in a bucket.
type Sink struct {
	objects objectStore
	prefix  string
	newID   func() string
}

// New creates a GCS-backed sink.
func New(client *storage.Client, cfg Config) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return newSink(&bucketObjects{client: client, bucket: cfg.Bucket}, cfg.Prefix), nil
}

func newSink(objects objectStore, prefix string) *Sink {
	return &Sink{
		objects: objects,
		prefix:  strings.Trim(prefix, "/"),
		newID:   func() string { return uuid.NewString() },
	}
}

// Write replaces or extends the table stored under the sink prefix.
func (s *Sink) Write(ctx context.Context, schema dataset.Schema, mode dataset.Mode, rows [][]any) error {
	if mode != dataset.Replace && mode != dataset.Append {
		return fmt.Errorf("unsupported mode %s", mode)
	}
	var buf bytes.Buffer
	if err := storagecsv.WriteCSV(&buf, schema, rows, true); err != nil {
		return err
	}

	var stale []string
	if mode == dataset.Replace {
		existing, err := s.objects.List(ctx, s.tablePrefix(schema.Name))
		if err != nil {
			return fmt.Errorf("list parts: %w", err)
		}
		stale = existing
	}

	name := s.partName(schema.Name)
	if err := s.objects.Put(ctx, name, "text/csv", &buf); err != nil {
		return fmt.Errorf("put part %s: %w", name, err)
	}
	// Stale parts go only after the new one is in place.
	for _, old := range stale {
		if err := s.objects.Delete(ctx, old); err != nil {
			return fmt.Errorf("delete part %s: %w", old, err)
		}
	}
	return nil
}

// Close releases the storage client.
func (s *Sink) Close() error {
	return s.objects.Close()
}

func (s *Sink) tablePrefix(table string) string {
	return path.Join(s.prefix, table) + "/"
}

func (s *Sink) partName(table string) string {
	return s.tablePrefix(table) + "part-" + s.newID() + ".csv"
}

type bucketObjects struct {
	client *storage.Client
	bucket string
}

func (b *bucketObjects) Put(ctx context.Context, name, contentType string, r io.Reader) error {
	writer := b.client.Bucket(b.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func (b *bucketObjects) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
}

func (b *bucketObjects) Delete(ctx context.Context, name string) error {
	err := b.client.Bucket(b.bucket).Object(name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (b *bucketObjects) Close() error {
	return b.client.Close()
}
