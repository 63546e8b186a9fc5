package model

import (
	"fmt"
	"time"
)

// Config holds the complete zsr configuration
type Config struct {
	HTTP   HTTPConfig   `yaml:"http" mapstructure:"http"`
	Lookup LookupConfig `yaml:"lookup" mapstructure:"lookup"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Sheet  SheetConfig  `yaml:"sheet" mapstructure:"sheet"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// HTTPConfig controls the outbound HTTP client
type HTTPConfig struct {
	UserAgent  string `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// LookupConfig controls calls to the Site Review API
type LookupConfig struct {
	Endpoint          string        `yaml:"endpoint" mapstructure:"endpoint"`
	BatchSize         int           `yaml:"batch_size" mapstructure:"batch_size"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"` // <= 0 disables limiting
	Burst             int           `yaml:"burst" mapstructure:"burst"`
}

// CacheConfig selects and configures the verdict cache
type CacheConfig struct {
	Backend    string        `yaml:"backend" mapstructure:"backend"` // json, sqlite, memory
	Path       string        `yaml:"path" mapstructure:"path"`
	SQLitePath string        `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	TTL        time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// SheetConfig describes where entry lists live in a workbook
type SheetConfig struct {
	Names              []string `yaml:"names" mapstructure:"names"`
	Marker             string   `yaml:"marker" mapstructure:"marker"`
	MarkerRows         int      `yaml:"marker_rows" mapstructure:"marker_rows"`
	MaxColumns         int      `yaml:"max_columns" mapstructure:"max_columns"`
	PrebuiltCategories []string `yaml:"prebuilt_categories" mapstructure:"prebuilt_categories"`
}

// LogConfig controls logger construction
type LogConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
	JSON    bool `yaml:"json" mapstructure:"json"`
}

const (
	DefaultEndpoint  = "https://sitereview.zscaler.com/api/lookup"
	DefaultBatchSize = 90
	DefaultTimeout   = 10 * time.Second
	DefaultCacheTTL  = 14 * 24 * time.Hour
	DefaultCacheFile = "zsr_cache.json"
)

// Cache backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			UserAgent: "zsr/0.3 (+https://github.com/ppiankov/zsr)",
		},
		Lookup: LookupConfig{
			Endpoint:          DefaultEndpoint,
			BatchSize:         DefaultBatchSize,
			Timeout:           DefaultTimeout,
			MaxBodyBytes:      10_000_000,
			RequestsPerSecond: 2,
			Burst:             1,
		},
		Cache: CacheConfig{
			Backend:    BackendJSON,
			Path:       DefaultCacheFile,
			SQLitePath: "zsr_cache.db",
			TTL:        DefaultCacheTTL,
		},
		Sheet: SheetConfig{
			Names:      []string{"SSL Dest Groups", "SSL Custom Categories"},
			Marker:     "Entries",
			MarkerRows: 9,
			MaxColumns: 100,
			PrebuiltCategories: []string{
				"GLOBAL_INT_GBL_SSL_BYPASS",
				"GLOBAL_INT_OFC_SSL_BYPASS",
				"GLOBAL_INT_ZOOM",
				"GLOBAL_INT_RINGCENTRAL",
				"GLOBAL_INT_LOGMEIN",
			},
		},
	}
}

// Validate reports the first setting that cannot be used
func (c *Config) Validate() error {
	if c.Lookup.Endpoint == "" {
		return fmt.Errorf("lookup.endpoint is required")
	}
	if c.Lookup.BatchSize < 1 {
		return fmt.Errorf("lookup.batch_size must be >= 1")
	}
	if c.Lookup.Timeout <= 0 {
		return fmt.Errorf("lookup.timeout must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	switch c.Cache.Backend {
	case BackendJSON, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	if c.Sheet.MarkerRows < 1 || c.Sheet.MaxColumns < 2 {
		return fmt.Errorf("sheet.marker_rows must be >= 1 and sheet.max_columns >= 2")
	}
	return nil
}
