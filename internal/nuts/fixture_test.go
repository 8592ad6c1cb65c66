package nuts

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

var standardColumns = []string{"NUTS_ID", "CNTR_CODE", "NAME_LATN", "LEVL_CODE"}

type fixtureRegion struct {
	code    string
	country string
	name    string
	level   int
	rings   [][]shp.Point
}

// clockwiseSquare returns a closed clockwise ring, the shapefile convention for shells.
func clockwiseSquare(minX, minY, size float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY},
		{X: minX, Y: minY + size},
		{X: minX + size, Y: minY + size},
		{X: minX + size, Y: minY},
		{X: minX, Y: minY},
	}
}

func counterClockwiseSquare(minX, minY, size float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY},
		{X: minX + size, Y: minY},
		{X: minX + size, Y: minY + size},
		{X: minX, Y: minY + size},
		{X: minX, Y: minY},
	}
}

// writeArchive builds a zipped polygon shapefile at dst.
func writeArchive(t *testing.T, dst string, columns []string, regions []fixtureRegion) {
	t.Helper()

	base := filepath.Join(t.TempDir(), "NUTS_RG_60M_TEST_4326")
	w, err := shp.Create(base+".shp", shp.POLYGON)
	require.NoError(t, err)

	fields := make([]shp.Field, len(columns))
	for i, c := range columns {
		if strings.HasPrefix(c, "LEVL") || strings.HasPrefix(c, "STAT") {
			fields[i] = shp.NumberField(c, 2)
		} else {
			fields[i] = shp.StringField(c, 64)
		}
	}
	require.NoError(t, w.SetFields(fields))

	for i, r := range regions {
		polygon := shp.Polygon(*shp.NewPolyLine(r.rings))
		w.Write(&polygon)
		values := map[string]any{
			"NUTS_ID":    r.code,
			"CNTR_CODE":  r.country,
			"NAME_LATN":  r.name,
			"NUTS_NAME":  r.name,
			"LEVL_CODE":  r.level,
			"STAT_LEVL_": r.level,
		}
		for j, c := range columns {
			require.NoError(t, w.WriteAttribute(i, j, values[c]))
		}
	}
	w.Close()

	// #nosec G304 -- test writes into its own temp directory.
	out, err := os.Create(dst)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		entry, err := zw.Create(filepath.Base(base) + ext)
		require.NoError(t, err)
		// go-shp names the attribute file without the dot before the extension.
		src := base + ext
		if ext == ".dbf" {
			src = base + "dbf"
		}
		// #nosec G304 -- test reads from its own temp directory.
		data, err := os.ReadFile(src)
		require.NoError(t, err)
		_, err = entry.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

func sampleRegions() []fixtureRegion {
	return []fixtureRegion{
		{code: "DE", country: "DE", name: "Deutschland", level: 0, rings: [][]shp.Point{clockwiseSquare(8, 50, 1)}},
		{code: "DE1", country: "DE", name: "Baden-Wurttemberg", level: 1, rings: [][]shp.Point{clockwiseSquare(8, 50, 0.5)}},
		{code: "EL3", country: "EL", name: "Attiki", level: 1, rings: [][]shp.Point{clockwiseSquare(23.5, 37.8, 0.4)}},
	}
}
