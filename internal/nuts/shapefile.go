package nuts

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/JakeFAU/geodata/internal/dataset"
)

// ErrMissingColumn is returned when an archive lacks a column the region
// mapping depends on.
var ErrMissingColumn = errors.New("missing source column")

// Region is a NUTS region row together with its boundary.
type Region struct {
	dataset.NutsRegion
	Code     string
	Year     int
	Geometry orb.MultiPolygon
}

// columnMapping maps canonical fields to the source column names used across
// vintages, in order of preference.
var columnMapping = []struct {
	field   string
	sources []string
}{
	{field: "code", sources: []string{"NUTS_ID"}},
	{field: "country_code", sources: []string{"CNTR_CODE"}},
	{field: "name", sources: []string{"NAME_LATN", "NUTS_NAME"}},
	{field: "level", sources: []string{"LEVL_CODE", "STAT_LEVL_"}},
}

// resolveColumns returns the attribute index of every canonical field.
func resolveColumns(fields []shp.Field) (map[string]int, error) {
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		byName[strings.ToUpper(strings.TrimSpace(f.String()))] = i
	}
	out := make(map[string]int, len(columnMapping))
	for _, m := range columnMapping {
		found := false
		for _, src := range m.sources {
			if idx, ok := byName[src]; ok {
				out[m.field] = idx
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s (tried %s)", ErrMissingColumn, m.field, strings.Join(m.sources, ", "))
		}
	}
	return out, nil
}

// ReadArchive parses a zipped NUTS shapefile and tags every region with year.
func ReadArchive(path string, year int) ([]Region, error) {
	zr, err := shp.OpenZip(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile archive: %w", err)
	}
	defer zr.Close() //nolint:errcheck // read-only archive

	cols, err := resolveColumns(zr.Fields())
	if err != nil {
		return nil, err
	}

	var regions []Region
	for zr.Next() {
		n, shape := zr.Shape()
		attr := func(field string) string {
			return strings.Trim(zr.Attribute(cols[field]), " \x00")
		}
		code := attr("code")
		if code == "" {
			return nil, fmt.Errorf("record %d: empty region code", n)
		}
		level, err := parseLevel(attr("level"))
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", n, code, err)
		}
		geom, err := toMultiPolygon(shape)
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", n, code, err)
		}
		regions = append(regions, Region{
			NutsRegion: dataset.NutsRegion{
				NID:         RegionID(code, year),
				Level:       level,
				Name:        attr("name"),
				CountryCode: attr("country_code"),
			},
			Code:     code,
			Year:     year,
			Geometry: geom,
		})
	}
	if err := zr.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}
	return regions, nil
}

// RegionID derives the unique region identifier of a vintage.
func RegionID(code string, year int) string {
	return code + "-" + strconv.Itoa(year)
}

func parseLevel(raw string) (int, error) {
	if level, err := strconv.Atoi(raw); err == nil {
		return level, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid level %q", raw)
	}
	return int(f), nil
}

func toMultiPolygon(shape shp.Shape) (orb.MultiPolygon, error) {
	switch s := shape.(type) {
	case *shp.Null, nil:
		return nil, nil
	case *shp.Polygon:
		return ringsToMultiPolygon(s.Parts, s.Points), nil
	case *shp.PolygonZ:
		return ringsToMultiPolygon(s.Parts, s.Points), nil
	case *shp.PolygonM:
		return ringsToMultiPolygon(s.Parts, s.Points), nil
	default:
		return nil, fmt.Errorf("unsupported shape type %T", shape)
	}
}

// ringsToMultiPolygon groups shapefile parts into polygons. Clockwise rings
// are outer boundaries and counter-clockwise rings are holes.
func ringsToMultiPolygon(parts []int32, points []shp.Point) orb.MultiPolygon {
	var mp orb.MultiPolygon
	for i, start := range parts {
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) >= end {
			continue
		}
		ring := make(orb.Ring, 0, end-int(start))
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		if len(ring) < 4 {
			continue
		}

		if ring.Orientation() == orb.CW {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		if owner := containingPolygon(mp, ring); owner >= 0 {
			mp[owner] = append(mp[owner], ring)
			continue
		}
		// A hole with no enclosing shell is treated as a shell of its own.
		mp = append(mp, orb.Polygon{ring})
	}
	return mp
}

func containingPolygon(mp orb.MultiPolygon, hole orb.Ring) int {
	for i := len(mp) - 1; i >= 0; i-- {
		if planar.RingContains(mp[i][0], hole[0]) {
			return i
		}
	}
	return -1
}
