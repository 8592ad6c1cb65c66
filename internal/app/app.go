// Package app initializes and holds the long-lived services shared by the
// CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/geodata/internal/boundary"
	"github.com/JakeFAU/geodata/internal/config"
	"github.com/JakeFAU/geodata/internal/dataset"
	"github.com/JakeFAU/geodata/internal/fetcher"
	collyfetcher "github.com/JakeFAU/geodata/internal/fetcher/colly"
	"github.com/JakeFAU/geodata/internal/logging"
	"github.com/JakeFAU/geodata/internal/metrics"
	"github.com/JakeFAU/geodata/internal/nuts"
	"github.com/JakeFAU/geodata/internal/osmadmin"
	"github.com/JakeFAU/geodata/internal/ratelimit"
	gcssink "github.com/JakeFAU/geodata/internal/storage/gcs"
	"github.com/JakeFAU/geodata/internal/storage/local"
	"github.com/JakeFAU/geodata/internal/storage/memory"
	"github.com/JakeFAU/geodata/internal/storage/postgres"
)

// ErrSchemaUnsupported is returned by InitSchema for sinks without DDL.
var ErrSchemaUnsupported = errors.New("storage backend does not manage table schemas")

// SchemaManager is implemented by sinks that can create their tables.
type SchemaManager interface {
	EnsureSchema(ctx context.Context, schemas ...dataset.Schema) error
}

// App holds the shared services for one command invocation.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	sink       dataset.Sink
	pages      fetcher.PageFetcher
	downloader fetcher.Downloader
}

// New opens the configured sink and builds the fetchers.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sink, err := OpenSink(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s sink: %w", cfg.Storage.Backend, err)
	}
	logger.Info("storage ready", zap.String("backend", cfg.Storage.Backend))
	return NewWithSink(cfg, logger, sink), nil
}

// NewWithSink builds an App around an already opened sink.
func NewWithSink(cfg config.Config, logger *zap.Logger, sink dataset.Sink) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.RequestsPerSecond, Burst: cfg.HTTP.Burst})
	return &App{
		cfg:    cfg,
		logger: logger,
		sink:   sink,
		pages: fetcher.ThrottledPages{
			Pages: collyfetcher.New(collyfetcher.Config{
				UserAgent: cfg.HTTP.UserAgent,
				Timeout:   cfg.HTTPTimeout(),
			}),
			Waiter: limiter,
		},
		downloader: fetcher.ThrottledDownloader{
			Downloader: fetcher.NewHTTPDownloader(fetcher.HTTPConfig{
				UserAgent: cfg.HTTP.UserAgent,
				Timeout:   cfg.HTTPTimeout(),
			}),
			Waiter: limiter,
		},
	}
}

// OpenSink returns the sink selected by storage.backend.
func OpenSink(ctx context.Context, cfg config.Config) (dataset.Sink, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return memory.NewSink(), nil
	case config.BackendLocal:
		return local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
	case config.BackendPostgres:
		sink, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxConns), // #nosec G115 -- validated small positive value
		})
		if err != nil {
			return nil, err
		}
		if cfg.DB.SchemaInit {
			if err := sink.EnsureSchema(ctx, dataset.Schemas()...); err != nil {
				_ = sink.Close()
				return nil, err
			}
		}
		return sink, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		return gcssink.New(client, gcssink.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.GCSPrefix})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// GetLogger returns the root logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetSink returns the configured table sink.
func (a *App) GetSink() dataset.Sink {
	return a.sink
}

// NutsLoader builds the NUTS pipeline.
func (a *App) NutsLoader() *nuts.Loader {
	return nuts.New(nuts.Config{
		APIRoot:    a.cfg.Nuts.APIRoot,
		Scale:      a.cfg.Nuts.Scale,
		CRS:        a.cfg.Nuts.CRS,
		Resolution: a.cfg.Nuts.Resolution,
		WorkDir:    a.cfg.WorkDir,
	}, a.pages, a.downloader, a.sink, logging.ForPipeline(a.logger, "nuts"))
}

// OSMLoader builds the OSM administrative pipeline.
func (a *App) OSMLoader() *osmadmin.Loader {
	logger := logging.ForPipeline(a.logger, "osm-admin")
	workers := a.cfg.OSMWorkers(runtime.NumCPU())
	// Extract passes share the CPUs with the other workers.
	procs := max(1, runtime.NumCPU()/workers)
	return osmadmin.New(osmadmin.Config{
		MirrorRoot: a.cfg.OSM.MirrorRoot,
		Workers:    workers,
		WorkDir:    a.cfg.WorkDir,
	}, a.pages, a.downloader, boundary.NewExtractor(procs, logger.Named("boundary")), a.sink, logger)
}

// InitSchema creates every table when the sink supports it.
func (a *App) InitSchema(ctx context.Context) error {
	manager, ok := a.sink.(SchemaManager)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSchemaUnsupported, a.cfg.Storage.Backend)
	}
	if err := manager.EnsureSchema(ctx, dataset.Schemas()...); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	a.logger.Info("schema ready", zap.Int("tables", len(dataset.Schemas())))
	return nil
}

// PushMetrics sends the collected metrics to the configured Pushgateway, if any.
func (a *App) PushMetrics(ctx context.Context) error {
	return metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job)
}

// Close releases the sink and flushes the logger.
func (a *App) Close() {
	if err := a.sink.Close(); err != nil {
		a.logger.Warn("error closing sink", zap.Error(err))
	}
	_ = a.logger.Sync()
}
