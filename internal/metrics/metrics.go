// Package metrics exposes Prometheus collectors for the loader pipelines.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	rowsWrittenTotal   *prometheus.CounterVec
	downloadBytesTotal *prometheus.CounterVec
	nutsVintagesTotal  *prometheus.CounterVec
	osmCountriesTotal  *prometheus.CounterVec
	activeWorkers      prometheus.Gauge
	pageFetchesTotal   *prometheus.CounterVec
	rateLimitDelay     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		rowsWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geodata_rows_written_total",
				Help: "Total number of rows written, labeled by table and persistence mode.",
			},
			[]string{"table", "mode"},
		)

		downloadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geodata_download_bytes_total",
				Help: "Total number of archive bytes downloaded, labeled by site.",
			},
			[]string{"site"},
		)

		nutsVintagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geodata_nuts_vintages_total",
				Help: "NUTS vintages processed, labeled by outcome (loaded or skipped).",
			},
			[]string{"status"},
		)

		osmCountriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geodata_osm_countries_total",
				Help: "OSM country extracts processed, labeled by outcome.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "geodata_active_workers",
				Help: "Number of pool workers currently running a task.",
			},
		)

		pageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geodata_page_fetches_total",
				Help: "Catalog and mirror pages fetched, labeled by site and status code class.",
			},
			[]string{"site", "class"},
		)

		rateLimitDelay = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geodata_rate_limit_delay_seconds",
				Help:    "Time requests spent waiting on the per-site rate limiter.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"site"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveRowsWritten adds n rows to the written counter for table.
func ObserveRowsWritten(table, mode string, n int) {
	Init()
	rowsWrittenTotal.WithLabelValues(table, mode).Add(float64(n))
}

// ObserveDownload records bytes fetched from rawURL.
func ObserveDownload(rawURL string, n int64) {
	Init()
	if n > 0 {
		downloadBytesTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(n))
	}
}

// ObservePageFetch records a page fetch and its HTTP status code.
func ObservePageFetch(rawURL string, code int) {
	Init()
	pageFetchesTotal.WithLabelValues(SanitizeSite(rawURL), fmt.Sprintf("%dxx", code/100)).Inc()
}

// ObserveVintage increments the NUTS vintage counter for the given status.
func ObserveVintage(status string) {
	Init()
	nutsVintagesTotal.WithLabelValues(status).Inc()
}

// ObserveCountry increments the OSM country counter for the given status.
func ObserveCountry(status string) {
	Init()
	osmCountriesTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records time spent waiting for a rate limit token.
func ObserveRateLimitDelay(rawURL string, d time.Duration) {
	Init()
	rateLimitDelay.WithLabelValues(SanitizeSite(rawURL)).Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// Push sends every registered collector to a Prometheus Pushgateway.
// Batch runs have no scrape endpoint, so this is how their metrics leave the process.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	Init()
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
