package dataset_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/geodata/internal/dataset"
	"github.com/JakeFAU/geodata/internal/storage/memory"
)

type failingSink struct{ err error }

func (f failingSink) Write(context.Context, dataset.Schema, dataset.Mode, [][]any) error {
	return f.err
}

func (failingSink) Close() error { return nil }

func TestSchemaValidate(t *testing.T) {
	t.Parallel()

	schema := dataset.NutsRegionSchema
	require.NoError(t, schema.Validate([]any{"DE-2021", int64(0), "Deutschland", "DE"}))

	tests := []struct {
		name string
		row  []any
	}{
		{name: "short row", row: []any{"DE-2021", int64(0)}},
		{name: "int level", row: []any{"DE-2021", 0, "Deutschland", "DE"}},
		{name: "numeric id", row: []any{int64(1), int64(0), "Deutschland", "DE"}},
		{name: "nil name", row: []any{"DE-2021", int64(0), nil, "DE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := schema.Validate(tt.row)
			require.Error(t, err)
			assert.True(t, errors.Is(err, dataset.ErrSchema))
		})
	}
}

func TestModeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "replace", dataset.Replace.String())
	assert.Equal(t, "append", dataset.Append.String())
	assert.Equal(t, "mode(0)", dataset.Mode(0).String())
}

func TestSchemasColumnNames(t *testing.T) {
	t.Parallel()

	names := make(map[string][]string)
	for _, s := range dataset.Schemas() {
		names[s.Name] = s.ColumnNames()
	}
	assert.Equal(t, []string{"nid", "level", "name", "country_code"}, names["nuts_region"])
	assert.Equal(t, []string{"hid", "level"}, names["hexagon_hash"])
	assert.Equal(t, []string{"region", "hexagon"}, names["nuts_locator"])
	assert.Equal(t, []string{"aid", "name", "level", "geometry", "country_id"}, names["administrative_unit"])
	assert.False(t, dataset.AdministrativeUnitSchema.UniqueIndex)
}

func TestTableReplaceAndExtend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := memory.NewSink()
	units := dataset.NewTable[dataset.AdministrativeUnit](dataset.AdministrativeUnitSchema, sink)

	first := []dataset.AdministrativeUnit{{AID: "62422", Name: "Berlin", Level: 4, Geometry: "MULTIPOLYGON EMPTY", CountryID: "germany"}}
	require.NoError(t, units.ReplaceAll(ctx, first))
	require.NoError(t, units.Extend(ctx, first))
	require.NoError(t, units.Extend(ctx, first))

	rows := sink.Rows("administrative_unit")
	require.Len(t, rows, 3, "appends accumulate repeated rows")
	assert.Equal(t, []any{"62422", "Berlin", int64(4), "MULTIPOLYGON EMPTY", "germany"}, rows[2])

	require.NoError(t, units.ReplaceAll(ctx, nil))
	assert.Empty(t, sink.Rows("administrative_unit"))
	assert.Equal(t, 4, sink.Writes("administrative_unit"))
}

func TestTableWrapsSinkErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	regions := dataset.NewTable[dataset.NutsRegion](dataset.NutsRegionSchema, failingSink{err: boom})
	err := regions.ReplaceAll(context.Background(), []dataset.NutsRegion{{NID: "DE-2021"}})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "replace nuts_region")

	orphan := dataset.NewTable[dataset.NutsRegion](dataset.NutsRegionSchema, nil)
	require.Error(t, orphan.Extend(context.Background(), nil))
}

func TestCheckLocatorIntegrity(t *testing.T) {
	t.Parallel()

	regions := []dataset.NutsRegion{{NID: "DE-2021"}, {NID: "FR-2021"}}
	hexagons := []dataset.HexagonHash{{HID: "861f1d487ffffff", Level: 6}, {HID: "861fb4667ffffff", Level: 6}}
	locators := []dataset.NutsLocator{
		{Region: "DE-2021", Hexagon: "861f1d487ffffff"},
		{Region: "FR-2021", Hexagon: "861fb4667ffffff"},
	}
	require.NoError(t, dataset.CheckLocatorIntegrity(regions, hexagons, locators))

	tests := []struct {
		name     string
		regions  []dataset.NutsRegion
		hexagons []dataset.HexagonHash
		locators []dataset.NutsLocator
		want     string
	}{
		{name: "duplicate region", regions: append(regions, dataset.NutsRegion{NID: "DE-2021"}), hexagons: hexagons, locators: locators, want: "duplicate region"},
		{name: "duplicate hexagon", regions: regions, hexagons: append(hexagons, hexagons[0]), locators: locators, want: "duplicate hexagon"},
		{name: "unknown region", regions: regions[:1], hexagons: hexagons, locators: locators, want: "unknown region"},
		{name: "unknown hexagon", regions: regions, hexagons: hexagons[:1], locators: locators, want: "unknown hexagon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := dataset.CheckLocatorIntegrity(tt.regions, tt.hexagons, tt.locators)
			require.ErrorIs(t, err, dataset.ErrIntegrity)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
