// Package boundary extracts administrative boundary polygons from OSM PBF
// extracts.
package boundary

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmgeojson"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"
)

// Boundary is one administrative relation or closed way with its geometry.
type Boundary struct {
	// Type is osm.TypeRelation or osm.TypeWay.
	Type osm.Type
	ID   string
	Name string
	// AdminLevel is the raw admin_level tag, empty when the tag is absent.
	AdminLevel string
	Geometry   orb.MultiPolygon
}

// WKT renders the boundary geometry as well-known text.
func (b Boundary) WKT() string {
	return wkt.MarshalString(b.Geometry)
}

// Extractor reads boundaries from PBF files.
type Extractor struct {
	procs  int
	logger *zap.Logger
}

// NewExtractor creates an Extractor using procs decoder goroutines per pass.
func NewExtractor(procs int, logger *zap.Logger) *Extractor {
	if procs <= 0 {
		procs = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{procs: procs, logger: logger}
}

// Extract returns the administrative boundaries in the file at path: every
// boundary relation whose rings close, then every closed administrative way
// that no such relation references. Each group is ordered by id.
func (e *Extractor) Extract(ctx context.Context, path string) ([]Boundary, error) {
	data := &osm.OSM{}
	members := make(map[osm.WayID]struct{})
	err := e.scan(ctx, path, pass{skipNodes: true, skipWays: true}, func(o osm.Object) {
		rel, ok := o.(*osm.Relation)
		if !ok || !IsAdministrative(rel.Tags) {
			return
		}
		data.Relations = append(data.Relations, rel)
		for _, m := range rel.Members {
			if m.Type == osm.TypeWay {
				members[osm.WayID(m.Ref)] = struct{}{}
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan relations: %w", err)
	}

	standalone := make(map[osm.WayID]struct{})
	nodeIDs := make(map[osm.NodeID]struct{})
	err = e.scan(ctx, path, pass{skipNodes: true, skipRelations: true}, func(o osm.Object) {
		way, ok := o.(*osm.Way)
		if !ok {
			return
		}
		if _, member := members[way.ID]; !member {
			if !IsAdministrativeWay(way) {
				return
			}
			standalone[way.ID] = struct{}{}
		}
		data.Ways = append(data.Ways, way)
		for _, wn := range way.Nodes {
			nodeIDs[wn.ID] = struct{}{}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan ways: %w", err)
	}
	if len(data.Relations) == 0 && len(data.Ways) == 0 {
		return nil, nil
	}

	err = e.scan(ctx, path, pass{skipWays: true, skipRelations: true}, func(o osm.Object) {
		node, ok := o.(*osm.Node)
		if !ok {
			return
		}
		if _, wanted := nodeIDs[node.ID]; wanted {
			data.Nodes = append(data.Nodes, &osm.Node{ID: node.ID, Lat: node.Lat, Lon: node.Lon, Visible: true})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan nodes: %w", err)
	}

	return assemble(data, standalone, e.logger)
}

type pass struct {
	skipNodes     bool
	skipWays      bool
	skipRelations bool
}

func (e *Extractor) scan(ctx context.Context, path string, p pass, fn func(osm.Object)) error {
	// #nosec G304 -- path is the extract downloaded by the caller.
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // read-only

	scanner := osmpbf.New(ctx, f, e.procs)
	defer scanner.Close() //nolint:errcheck // scanner errors surface through Err
	scanner.SkipNodes = p.skipNodes
	scanner.SkipWays = p.skipWays
	scanner.SkipRelations = p.skipRelations

	for scanner.Scan() {
		fn(scanner.Object())
	}
	return scanner.Err()
}

// IsAdministrative reports whether tags mark an administrative boundary relation.
func IsAdministrative(tags osm.Tags) bool {
	if tags.Find("boundary") != "administrative" {
		return false
	}
	switch tags.Find("type") {
	case "boundary", "multipolygon":
		return true
	default:
		return false
	}
}

// IsAdministrativeWay reports whether w is a closed way tagged as an
// administrative boundary.
func IsAdministrativeWay(w *osm.Way) bool {
	return w.Tags.Find("boundary") == "administrative" && w.Polygon()
}

// assemble builds polygons for the relations and standalone ways in data.
// Relations whose rings cannot be closed, or that reference ways or nodes
// missing from the extract, are skipped.
func assemble(data *osm.OSM, standalone map[osm.WayID]struct{}, logger *zap.Logger) ([]Boundary, error) {
	fc, err := osmgeojson.Convert(data,
		osmgeojson.NoMeta(true),
		osmgeojson.NoRelationMembership(true),
	)
	if err != nil {
		return nil, fmt.Errorf("assemble geometry: %w", err)
	}

	var (
		out   = make([]Boundary, 0, len(data.Relations)+len(standalone))
		built = make(map[osm.RelationID]struct{}, len(data.Relations))
	)
	for _, f := range fc.Features {
		kind, _ := f.Properties["type"].(string)
		id, _ := f.Properties["id"].(int)
		switch osm.Type(kind) {
		case osm.TypeRelation:
		case osm.TypeWay:
			if _, ok := standalone[osm.WayID(id)]; !ok {
				continue
			}
		default:
			continue
		}
		if tainted, _ := f.Properties["tainted"].(bool); tainted {
			continue
		}
		geom, ok := multiPolygon(f)
		if !ok {
			continue
		}
		if osm.Type(kind) == osm.TypeRelation {
			built[osm.RelationID(id)] = struct{}{}
		}
		tags, _ := f.Properties["tags"].(map[string]string)
		out = append(out, Boundary{
			Type:       osm.Type(kind),
			ID:         strconv.Itoa(id),
			Name:       tags["name"],
			AdminLevel: tags["admin_level"],
			Geometry:   geom,
		})
	}
	for _, rel := range data.Relations {
		if _, ok := built[rel.ID]; !ok {
			logger.Debug("skipping boundary", zap.Int64("relation", int64(rel.ID)), zap.String("reason", "rings incomplete"))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type == osm.TypeRelation
		}
		a, _ := strconv.ParseInt(out[i].ID, 10, 64)
		b, _ := strconv.ParseInt(out[j].ID, 10, 64)
		return a < b
	})
	return out, nil
}

func multiPolygon(f *geojson.Feature) (orb.MultiPolygon, bool) {
	switch g := f.Geometry.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{g}, true
	case orb.MultiPolygon:
		return g, true
	default:
		return nil, false
	}
}
