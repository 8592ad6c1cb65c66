// Package osmadmin loads OSM administrative boundaries from a Geofabrik-style
// mirror, one country extract per task.
package osmadmin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/geodata/internal/boundary"
	"github.com/JakeFAU/geodata/internal/dataset"
	"github.com/JakeFAU/geodata/internal/dispatcher"
	"github.com/JakeFAU/geodata/internal/fetcher"
	"github.com/JakeFAU/geodata/internal/metrics"
)

// BoundaryReader extracts administrative boundaries from a local PBF file.
type BoundaryReader interface {
	Extract(ctx context.Context, path string) ([]boundary.Boundary, error)
}

// Config controls an OSM administrative load.
type Config struct {
	MirrorRoot string
	Workers    int
	// WorkDir is the parent of the per-task temporary directories.
	WorkDir string
}

// Result summarises a completed load.
type Result struct {
	Countries int
	Failed    int
	Units     int
}

// Loader runs the OSM administrative pipeline.
type Loader struct {
	cfg        Config
	pages      fetcher.PageFetcher
	downloader fetcher.Downloader
	reader     BoundaryReader
	units      *dataset.Table[dataset.AdministrativeUnit]
	logger     *zap.Logger
}

// New constructs a Loader appending to the administrative unit table in sink.
func New(cfg Config, pages fetcher.PageFetcher, downloader fetcher.Downloader, reader BoundaryReader, sink dataset.Sink, logger *zap.Logger) *Loader {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		cfg:        cfg,
		pages:      pages,
		downloader: downloader,
		reader:     reader,
		units:      dataset.NewTable[dataset.AdministrativeUnit](dataset.AdministrativeUnitSchema, sink),
		logger:     logger,
	}
}

// Links crawls the mirror and returns the sorted, de-duplicated extract URLs.
// Any page failure is fatal.
func (l *Loader) Links(ctx context.Context) ([]string, error) {
	body, err := l.fetch(ctx, l.cfg.MirrorRoot)
	if err != nil {
		return nil, fmt.Errorf("fetch mirror index: %w", err)
	}
	continents, err := SubregionLinks(body)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, continent := range continents {
		pageURL, err := Resolve(l.cfg.MirrorRoot, continent)
		if err != nil {
			return nil, err
		}
		body, err := l.fetch(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("fetch continent %s: %w", continent, err)
		}
		links, err := ExtractLinks(body, l.cfg.MirrorRoot)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("continent crawled", zap.String("continent", continent), zap.Int("extracts", len(links)))
		for _, link := range links {
			set[link] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for link := range set {
		out = append(out, link)
	}
	sort.Strings(out)
	return out, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	page, err := l.pages.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := page.Err(); err != nil {
		return nil, err
	}
	return page.Body, nil
}

// Run crawls the mirror and loads every country on the worker pool. Country
// failures are logged and returned joined once all countries have finished.
func (l *Loader) Run(ctx context.Context) (Result, error) {
	var res Result

	links, err := l.Links(ctx)
	if err != nil {
		return res, err
	}
	res.Countries = len(links)
	l.logger.Info("dispatching country extracts", zap.Int("countries", len(links)), zap.Int("workers", l.cfg.Workers))

	counts := make([]int, len(links))
	tasks := make([]dispatcher.Task, len(links))
	for i, link := range links {
		tasks[i] = dispatcher.Task{
			Key: CountryID(link),
			Run: func(ctx context.Context) error {
				n, err := l.LoadCountry(ctx, link)
				counts[i] = n
				return err
			},
		}
	}

	runErr := dispatcher.New(l.cfg.Workers, l.logger.Named("dispatcher")).Run(ctx, tasks)
	for _, n := range counts {
		res.Units += n
	}
	for _, err := range multierr.Errors(runErr) {
		if !errors.Is(err, context.Canceled) {
			res.Failed++
		}
	}
	l.logger.Info("osm load complete",
		zap.Int("countries", res.Countries),
		zap.Int("failed", res.Failed),
		zap.Int("units", res.Units),
	)
	return res, runErr
}

// LoadCountry downloads one extract, extracts its boundaries and appends the
// rows that carry an integer admin level. It returns the number of rows written.
func (l *Loader) LoadCountry(ctx context.Context, link string) (n int, err error) {
	countryID := CountryID(link)
	logger := l.logger.With(zap.String("country_id", countryID))
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("panic loading %s: %v", countryID, r)
		}
		if err != nil {
			metrics.ObserveCountry("failed")
			return
		}
		metrics.ObserveCountry("loaded")
	}()

	if l.cfg.WorkDir != "" {
		if err := os.MkdirAll(l.cfg.WorkDir, 0o750); err != nil {
			return 0, fmt.Errorf("create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(l.cfg.WorkDir, "osm-"+countryID+"-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn("failed to remove temp dir", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()

	extract := filepath.Join(dir, "extract.osm.pbf")
	size, err := l.downloader.Download(ctx, link, extract)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	logger.Debug("extract downloaded", zap.Int64("bytes", size))

	boundaries, err := l.reader.Extract(ctx, extract)
	if err != nil {
		return 0, fmt.Errorf("extract boundaries: %w", err)
	}

	units := ToUnits(boundaries, countryID)
	if err := l.units.Extend(ctx, units); err != nil {
		return 0, err
	}
	logger.Info("country loaded", zap.Int("boundaries", len(boundaries)), zap.Int("units", len(units)))
	return len(units), nil
}

// ToUnits converts boundaries into table rows for countryID, dropping those
// without an integer admin level.
func ToUnits(boundaries []boundary.Boundary, countryID string) []dataset.AdministrativeUnit {
	units := make([]dataset.AdministrativeUnit, 0, len(boundaries))
	for _, b := range boundaries {
		level, err := strconv.Atoi(b.AdminLevel)
		if err != nil {
			continue
		}
		units = append(units, dataset.AdministrativeUnit{
			AID:       b.ID,
			Name:      b.Name,
			Level:     level,
			Geometry:  b.WKT(),
			CountryID: countryID,
		})
	}
	return units
}
