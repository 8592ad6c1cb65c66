package nuts

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var vintagePattern = regexp.MustCompile(`nuts-(\d{4})-files`)

// ParseYears returns the distinct vintage years advertised on the catalog page,
// in ascending order.
func ParseYears(body []byte) []int {
	seen := make(map[int]struct{})
	for _, m := range vintagePattern.FindAllSubmatch(body, -1) {
		year, err := strconv.Atoi(string(m[1]))
		if err != nil {
			continue
		}
		seen[year] = struct{}{}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// ArchiveURL builds the download URL of one zipped shapefile vintage.
func ArchiveURL(root, scale string, year int, crs string) string {
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return fmt.Sprintf("%sshp/NUTS_RG_%s_%d_%s.shp.zip", root, scale, year, crs)
}
