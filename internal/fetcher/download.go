package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/JakeFAU/geodata/internal/metrics"
)

// HTTPConfig controls the archive downloader.
type HTTPConfig struct {
	UserAgent string
	// Timeout bounds connection setup and response headers. Bodies are
	// streamed without a deadline because country extracts can be gigabytes.
	Timeout time.Duration
}

// HTTPDownloader implements Downloader on top of net/http.
type HTTPDownloader struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPDownloader builds an HTTPDownloader.
func NewHTTPDownloader(cfg HTTPConfig) *HTTPDownloader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPDownloader{
		cfg:    cfg,
		client: &http.Client{Transport: NewTransport(cfg.Timeout)},
	}
}

// Download fetches url and writes the body to dst, truncating any existing
// file. Non-2xx responses return a *StatusError and leave dst untouched.
func (d *HTTPDownloader) Download(ctx context.Context, url, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // body is fully consumed or abandoned

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	// #nosec G304 -- dst is chosen by the loaders inside their work directories.
	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		_ = f.Close()
		return n, fmt.Errorf("write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", dst, err)
	}
	metrics.ObserveDownload(url, n)
	return n, nil
}

// NewTransport returns the pooled transport shared by the fetchers.
func NewTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
