// Package fetcher defines the page and archive fetching contracts used by the
// loaders, plus a streaming archive downloader.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Page is a fetched HTML or text document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// OK reports whether the page was served with a 2xx status.
func (p Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// Err returns a *StatusError unless the page status is 2xx.
func (p Page) Err() error {
	if p.OK() {
		return nil
	}
	return &StatusError{URL: p.URL, StatusCode: p.StatusCode}
}

// PageFetcher retrieves small documents such as catalog and listing pages.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Downloader streams a remote archive into a local file and returns the
// number of bytes written.
type Downloader interface {
	Download(ctx context.Context, url, dst string) (int64, error)
}

// ErrStatus matches every *StatusError.
var ErrStatus = errors.New("unexpected http status")

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is makes errors.Is(err, ErrStatus) succeed for status errors.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}
