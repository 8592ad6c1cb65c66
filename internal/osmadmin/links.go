package osmadmin

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractAnchorText is the visible text of a country extract link.
const ExtractAnchorText = "[.osm.pbf]"

// SubregionLinks returns the href of the first anchor in every td.subregion cell.
func SubregionLinks(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse mirror index: %w", err)
	}
	var links []string
	doc.Find("td.subregion").Each(func(_ int, td *goquery.Selection) {
		if href, ok := td.Find("a").First().Attr("href"); ok && href != "" {
			links = append(links, href)
		}
	})
	return links, nil
}

// ExtractLinks returns the hrefs of anchors whose trimmed text is exactly
// ExtractAnchorText, resolved against root.
func ExtractLinks(body []byte, root string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse continent page: %w", err)
	}
	var (
		links []string
		errs  []error
	)
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		if strings.TrimSpace(a.Text()) != ExtractAnchorText {
			return
		}
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		abs, err := Resolve(root, href)
		if err != nil {
			errs = append(errs, err)
			return
		}
		links = append(links, abs)
	})
	if len(errs) > 0 {
		return links, errs[0]
	}
	return links, nil
}

// Resolve joins href onto the mirror root.
func Resolve(root, href string) (string, error) {
	base, err := url.Parse(root)
	if err != nil {
		return "", fmt.Errorf("parse mirror root %q: %w", root, err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// CountryID derives the country identifier from an extract URL, e.g.
// ".../europe/germany-latest.osm.pbf" becomes "germany".
func CountryID(link string) string {
	name := link
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		name = u.Path
	}
	name = path.Base(name)
	if before, _, found := strings.Cut(name, "-latest"); found {
		return before
	}
	return name
}
