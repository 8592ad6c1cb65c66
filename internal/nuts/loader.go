// Package nuts loads NUTS region vintages from the GISCO distribution API and
// joins them to an H3 grid.
package nuts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/biter777/countries"
	"go.uber.org/zap"

	"github.com/JakeFAU/geodata/internal/dataset"
	"github.com/JakeFAU/geodata/internal/fetcher"
	"github.com/JakeFAU/geodata/internal/hexgrid"
	"github.com/JakeFAU/geodata/internal/metrics"
)

// ErrNoVintages reports a run in which no vintage could be loaded. The stored
// tables are left untouched.
var ErrNoVintages = errors.New("no nuts vintage loaded")

// Config controls a NUTS load.
type Config struct {
	APIRoot    string
	Scale      string
	CRS        string
	Resolution int
	// WorkDir holds the single temporary archive reused for every vintage.
	WorkDir string
}

// Result summarises a completed load.
type Result struct {
	Years    []int
	Loaded   []int
	Skipped  []int
	Regions  int
	Hexagons int
	Locators int
}

// Loader runs the NUTS pipeline.
type Loader struct {
	cfg        Config
	pages      fetcher.PageFetcher
	downloader fetcher.Downloader
	regions    *dataset.Table[dataset.NutsRegion]
	locators   *dataset.Table[dataset.NutsLocator]
	hexagons   *dataset.Table[dataset.HexagonHash]
	logger     *zap.Logger
}

// New constructs a Loader writing its three tables to sink.
func New(cfg Config, pages fetcher.PageFetcher, downloader fetcher.Downloader, sink dataset.Sink, logger *zap.Logger) *Loader {
	if cfg.Scale == "" {
		cfg.Scale = "60M"
	}
	if cfg.CRS == "" {
		cfg.CRS = "4326"
	}
	if cfg.Resolution == 0 {
		cfg.Resolution = hexgrid.DefaultResolution
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		cfg:        cfg,
		pages:      pages,
		downloader: downloader,
		regions:    dataset.NewTable[dataset.NutsRegion](dataset.NutsRegionSchema, sink),
		locators:   dataset.NewTable[dataset.NutsLocator](dataset.NutsLocatorSchema, sink),
		hexagons:   dataset.NewTable[dataset.HexagonHash](dataset.HexagonHashSchema, sink),
		logger:     logger,
	}
}

// Run fetches every advertised vintage and replaces the region, locator and
// hexagon tables. Vintages whose archive cannot be fetched are skipped; if
// every vintage is skipped the run fails with ErrNoVintages before any write.
// Vintages are processed one at a time because they share one archive path.
func (l *Loader) Run(ctx context.Context) (Result, error) {
	var res Result

	page, err := l.pages.Fetch(ctx, l.cfg.APIRoot)
	if err != nil {
		return res, fmt.Errorf("fetch catalog: %w", err)
	}
	if err := page.Err(); err != nil {
		return res, fmt.Errorf("fetch catalog: %w", err)
	}
	res.Years = ParseYears(page.Body)
	l.logger.Info("discovered vintages", zap.Ints("years", res.Years))

	if err := os.MkdirAll(l.cfg.WorkDir, 0o750); err != nil {
		return res, fmt.Errorf("create work dir: %w", err)
	}
	archive := filepath.Join(l.cfg.WorkDir, "nuts.shp.zip")
	defer func() {
		if err := os.Remove(archive); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("failed to remove temporary archive", zap.String("path", archive), zap.Error(err))
		}
	}()

	var regions []Region
	for _, year := range res.Years {
		url := ArchiveURL(l.cfg.APIRoot, l.cfg.Scale, year, l.cfg.CRS)
		if _, err := l.downloader.Download(ctx, url, archive); err != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("download %d: %w", year, ctx.Err())
			}
			l.logger.Info("vintage unavailable, skipping", zap.Int("year", year), zap.String("url", url), zap.Error(err))
			metrics.ObserveVintage("skipped")
			res.Skipped = append(res.Skipped, year)
			continue
		}
		vintage, err := ReadArchive(archive, year)
		if err != nil {
			return res, fmt.Errorf("read %d archive: %w", year, err)
		}
		l.logger.Info("loaded vintage", zap.Int("year", year), zap.Int("regions", len(vintage)))
		metrics.ObserveVintage("loaded")
		res.Loaded = append(res.Loaded, year)
		regions = append(regions, vintage...)
	}
	if len(res.Loaded) == 0 {
		return res, fmt.Errorf("%w: %d advertised", ErrNoVintages, len(res.Years))
	}
	l.warnUnknownCountries(regions)

	rows := make([]dataset.NutsRegion, len(regions))
	for i, r := range regions {
		rows[i] = r.NutsRegion
	}
	locators, hexagons, err := Tessellate(regions, l.cfg.Resolution)
	if err != nil {
		return res, err
	}
	if err := dataset.CheckLocatorIntegrity(rows, hexagons, locators); err != nil {
		return res, err
	}

	if err := l.regions.ReplaceAll(ctx, rows); err != nil {
		return res, err
	}
	if err := l.locators.ReplaceAll(ctx, locators); err != nil {
		return res, err
	}
	if err := l.hexagons.ReplaceAll(ctx, hexagons); err != nil {
		return res, err
	}

	res.Regions, res.Locators, res.Hexagons = len(rows), len(locators), len(hexagons)
	l.logger.Info("nuts load complete",
		zap.Int("regions", res.Regions),
		zap.Int("locators", res.Locators),
		zap.Int("hexagons", res.Hexagons),
	)
	return res, nil
}

// Tessellate covers every region with cells at resolution. It returns one
// locator per (region, cell) pair and the distinct cells, both in input order.
func Tessellate(regions []Region, resolution int) ([]dataset.NutsLocator, []dataset.HexagonHash, error) {
	var (
		locators []dataset.NutsLocator
		hexagons []dataset.HexagonHash
		seen     = make(map[string]struct{})
	)
	for _, r := range regions {
		cells, err := hexgrid.Polyfill(r.Geometry, resolution)
		if err != nil {
			return nil, nil, fmt.Errorf("tessellate %s: %w", r.NID, err)
		}
		for _, c := range cells {
			id := hexgrid.CellID(c)
			locators = append(locators, dataset.NutsLocator{Region: r.NID, Hexagon: id})
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			hexagons = append(hexagons, dataset.HexagonHash{HID: id, Level: resolution})
		}
	}
	return locators, hexagons, nil
}

// euAliases maps the EU protocol codes NUTS uses onto ISO 3166 alpha-2.
var euAliases = map[string]string{"EL": "GR", "UK": "GB"}

// KnownCountry reports whether code names an ISO 3166 country.
func KnownCountry(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if alias, ok := euAliases[code]; ok {
		code = alias
	}
	if len(code) != 2 {
		return false
	}
	// ByName resolves placeholders such as XX to countries.None, whose Alpha2 is not a code.
	return countries.ByName(code).Alpha2() == code
}

func (l *Loader) warnUnknownCountries(regions []Region) {
	warned := make(map[string]struct{})
	for _, r := range regions {
		if KnownCountry(r.CountryCode) {
			continue
		}
		if _, ok := warned[r.CountryCode]; ok {
			continue
		}
		warned[r.CountryCode] = struct{}{}
		l.logger.Warn("unrecognised country code", zap.String("country_code", r.CountryCode), zap.String("nid", r.NID))
	}
}
