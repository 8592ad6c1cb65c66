// Package hexgrid tessellates polygons into H3 cells.
package hexgrid

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/uber/h3-go/v4"
)

// DefaultResolution is the H3 resolution used for region coverage.
const DefaultResolution = 6

// Polyfill returns the distinct cells whose centers fall inside mp, sorted by
// index. A polygon with area but no interior cell center still gets the
// cell containing its centroid, so non-empty input never yields zero cells.
func Polyfill(mp orb.MultiPolygon, resolution int) ([]h3.Cell, error) {
	if resolution < 0 || resolution > h3.MaxResolution {
		return nil, fmt.Errorf("invalid h3 resolution %d", resolution)
	}
	seen := make(map[h3.Cell]struct{})
	for _, polygon := range mp {
		if len(polygon) == 0 || len(polygon[0]) < 4 {
			continue
		}
		cells, err := h3.PolygonToCells(toGeoPolygon(polygon), resolution)
		if err != nil {
			return nil, fmt.Errorf("polygon to cells: %w", err)
		}
		for _, c := range cells {
			seen[c] = struct{}{}
		}
	}

	if len(seen) == 0 {
		centroid, area := planar.CentroidArea(mp)
		if area == 0 {
			return nil, nil
		}
		c, err := h3.LatLngToCell(h3.NewLatLng(centroid.Lat(), centroid.Lon()), resolution)
		if err != nil {
			return nil, fmt.Errorf("centroid cell: %w", err)
		}
		seen[c] = struct{}{}
	}

	out := make([]h3.Cell, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// CellID renders a cell as its canonical lowercase hex index.
func CellID(c h3.Cell) string {
	return c.String()
}

func toGeoPolygon(polygon orb.Polygon) h3.GeoPolygon {
	gp := h3.GeoPolygon{GeoLoop: toGeoLoop(polygon[0])}
	for _, hole := range polygon[1:] {
		if len(hole) < 4 {
			continue
		}
		gp.Holes = append(gp.Holes, toGeoLoop(hole))
	}
	return gp
}

// toGeoLoop drops the closing vertex; h3 loops are implicitly closed.
func toGeoLoop(ring orb.Ring) h3.GeoLoop {
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		n--
	}
	loop := make(h3.GeoLoop, 0, n)
	for _, pt := range ring[:n] {
		loop = append(loop, h3.LatLng{Lat: pt.Lat(), Lng: pt.Lon()})
	}
	return loop
}
