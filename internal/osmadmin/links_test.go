package osmadmin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mirrorIndex = `<html><body><table>
<tr><td class="subregion"><a href="africa.html">Africa</a></td><td><a href="africa-latest.osm.pbf">[.osm.pbf]</a></td></tr>
<tr><td class="subregion"><a href="europe.html">Europe</a> <a href="europe/">more</a></td></tr>
<tr><td class="subregion">no link</td></tr>
<tr><td><a href="antarctica.html">Antarctica</a></td></tr>
</table></body></html>`

const europePage = `<html><body><table>
<tr><td class="subregion"><a href="europe/andorra.html">Andorra</a></td>
<td><a href="europe/andorra-latest.osm.pbf"> [.osm.pbf] </a></td>
<td><a href="europe/andorra-latest.osm.bz2">[.osm.bz2]</a></td></tr>
<tr><td class="subregion"><a href="europe/malta.html">Malta</a></td>
<td><a href="/europe/malta-latest.osm.pbf">[.osm.pbf]</a></td></tr>
<tr><td><a href="https://other.example/europe/monaco-latest.osm.pbf">[.osm.pbf]</a></td></tr>
<tr><td><a>[.osm.pbf]</a></td></tr>
</table></body></html>`

func TestSubregionLinks(t *testing.T) {
	t.Parallel()

	links, err := SubregionLinks([]byte(mirrorIndex))
	require.NoError(t, err)
	assert.Equal(t, []string{"africa.html", "europe.html"}, links)
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	links, err := ExtractLinks([]byte(europePage), "https://mirror.example/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://mirror.example/europe/andorra-latest.osm.pbf",
		"https://mirror.example/europe/malta-latest.osm.pbf",
		"https://other.example/europe/monaco-latest.osm.pbf",
	}, links)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	got, err := Resolve("https://mirror.example/osm", "europe.html")
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example/osm/europe.html", got)

	_, err = Resolve("://bad", "europe.html")
	require.Error(t, err)
}

func TestCountryID(t *testing.T) {
	t.Parallel()

	tests := []struct{ link, want string }{
		{"https://mirror.example/europe/germany-latest.osm.pbf", "germany"},
		{"https://mirror.example/north-america/us/california-latest.osm.pbf", "california"},
		{"https://mirror.example/europe/bosnia-herzegovina-latest.osm.pbf?x=1", "bosnia-herzegovina"},
		{"https://mirror.example/asia/japan.osm.pbf", "japan.osm.pbf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CountryID(tt.link), tt.link)
	}
}
