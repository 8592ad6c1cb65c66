package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/geodata/internal/dataset"
)

func TestWriteCSVWithHeader(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rows := [][]any{
		{"DE1-2021", int64(1), "Baden-Württemberg", "DE"},
		{"FR-2021", int64(0), "France, métropole", "FR"},
	}
	require.NoError(t, WriteCSV(&buf, dataset.NutsRegionSchema, rows, true))

	want := "nid,level,name,country_code\n" +
		"DE1-2021,1,Baden-Württemberg,DE\n" +
		"FR-2021,0,\"France, métropole\",FR\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVWithoutHeader(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, dataset.HexagonHashSchema, [][]any{{"861f8d7a7ffffff", int64(6)}}, false))
	assert.Equal(t, "861f8d7a7ffffff,6\n", buf.String())
}

func TestWriteCSVRejectsUnknownTypes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteCSV(&buf, dataset.HexagonHashSchema, [][]any{{"abc", 6.5}}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hexagon_hash.level")
}
