// Package config loads and validates geodata configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/geodata/internal/dispatcher"
	"github.com/JakeFAU/geodata/internal/hexgrid"
)

// EnvPrefix prefixes every environment override, e.g. GEODATA_DB_DSN.
const EnvPrefix = "GEODATA"

// Storage backends.
const (
	BackendLocal    = "local"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
	BackendMemory   = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Nuts    NutsConfig    `mapstructure:"nuts"`
	OSM     OSMConfig     `mapstructure:"osm"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
	WorkDir string        `mapstructure:"work_dir"`
}

// NutsConfig points the NUTS loader at the distribution API.
type NutsConfig struct {
	APIRoot    string `mapstructure:"api_root"`
	Scale      string `mapstructure:"scale"`
	CRS        string `mapstructure:"crs"`
	Resolution int    `mapstructure:"resolution"`
}

// OSMConfig controls the mirror crawl and the worker pool.
type OSMConfig struct {
	MirrorRoot string `mapstructure:"mirror_root"`
	// Workers overrides the CPU-derived pool size when positive.
	Workers    int `mapstructure:"workers"`
	MaxWorkers int `mapstructure:"max_workers"`
}

// HTTPConfig configures outbound requests.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	// RequestsPerSecond limits requests per site; zero disables the limit.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StorageConfig selects where tables are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	// SchemaInit creates missing tables before the first write.
	SchemaInit bool `mapstructure:"schema_init"`
}

// MetricsConfig configures the optional Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional file, a .env file and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("nuts.api_root", "https://gisco-services.ec.europa.eu/distribution/v2/nuts/")
	v.SetDefault("nuts.scale", "60M")
	v.SetDefault("nuts.crs", "4326")
	v.SetDefault("nuts.resolution", hexgrid.DefaultResolution)
	v.SetDefault("osm.mirror_root", "https://download.geofabrik.de/")
	v.SetDefault("osm.workers", 0)
	v.SetDefault("osm.max_workers", dispatcher.MaxWorkers)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "geodata/0.1 (+https://github.com/JakeFAU/geodata)")
	v.SetDefault("http.requests_per_second", 2)
	v.SetDefault("http.burst", 2)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_prefix", "geodata")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.schema_init", true)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "geodata")
	v.SetDefault("logging.development", true)
	v.SetDefault("work_dir", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Nuts.APIRoot == "" {
		return fmt.Errorf("nuts.api_root must be set")
	}
	if c.Nuts.Scale == "" || c.Nuts.CRS == "" {
		return fmt.Errorf("nuts.scale and nuts.crs must be set")
	}
	if c.Nuts.Resolution < 0 || c.Nuts.Resolution > 15 {
		return fmt.Errorf("nuts.resolution must be between 0 and 15")
	}
	if c.OSM.MirrorRoot == "" {
		return fmt.Errorf("osm.mirror_root must be set")
	}
	if c.OSM.Workers < 0 {
		return fmt.Errorf("osm.workers must be >= 0")
	}
	if c.OSM.MaxWorkers <= 0 {
		return fmt.Errorf("osm.max_workers must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres backend")
		}
		if c.DB.MaxConns <= 0 {
			return fmt.Errorf("db.max_conns must be > 0")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of local, postgres, gcs, memory", c.Storage.Backend)
	}
	return nil
}

// HTTPTimeout returns the request timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// OSMWorkers resolves the pool size for a host with numCPU CPUs.
func (c Config) OSMWorkers(numCPU int) int {
	if c.OSM.Workers > 0 {
		return c.OSM.Workers
	}
	return dispatcher.PoolSize(numCPU, c.OSM.MaxWorkers)
}
