package config

import (
	"booksync/internal/core/domain/models"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix namespaces environment overrides, e.g. BS_SYNC_BOOK_CAP.
const EnvPrefix = "BS"

type SyncConfig struct {
	BookCap          int           `mapstructure:"book_cap"`
	ReadingStateCap  int           `mapstructure:"reading_state_cap"`
	CatalogPageSize  int           `mapstructure:"catalog_page_size"`
	CatalogMaxPages  int           `mapstructure:"catalog_max_pages"`
	ReadableFormats  []string      `mapstructure:"readable_formats"`
	CatalogCacheSize int           `mapstructure:"catalog_cache_size"`
	CatalogCacheTTL  time.Duration `mapstructure:"catalog_cache_ttl"`
}

type OPDSConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	Concurrency    int    `mapstructure:"concurrency"`
	BatchSize      int    `mapstructure:"batch_size"`
	SinceTimestamp int64  `mapstructure:"since_timestamp"`
	DelayMS        int    `mapstructure:"delay_ms"`
}

type Config struct {
	DatabaseDSN     string        `mapstructure:"database_dsn"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
	LogEncoding     string        `mapstructure:"log_encoding"`
	StateFilePath   string        `mapstructure:"state_file_path"`

	Sync SyncConfig `mapstructure:"sync"`
	OPDS OPDSConfig `mapstructure:"opds"`
}

func Default() Config {
	return Config{
		DatabaseDSN:     "file:booksync.db",
		HTTPAddr:        ":8000",
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogEncoding:     "console",
		StateFilePath:   "booksync_state.json",
		Sync: SyncConfig{
			BookCap:          100,
			ReadingStateCap:  100,
			CatalogPageSize:  1000,
			ReadableFormats:  []string{string(models.FormatEPUB), string(models.FormatKEPUB)},
			CatalogCacheSize: 256,
		},
		OPDS: OPDSConfig{
			Concurrency: 5,
		},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database_dsn", d.DatabaseDSN)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_encoding", d.LogEncoding)
	v.SetDefault("state_file_path", d.StateFilePath)

	v.SetDefault("sync.book_cap", d.Sync.BookCap)
	v.SetDefault("sync.reading_state_cap", d.Sync.ReadingStateCap)
	v.SetDefault("sync.catalog_page_size", d.Sync.CatalogPageSize)
	v.SetDefault("sync.catalog_max_pages", d.Sync.CatalogMaxPages)
	v.SetDefault("sync.readable_formats", d.Sync.ReadableFormats)
	v.SetDefault("sync.catalog_cache_size", d.Sync.CatalogCacheSize)
	v.SetDefault("sync.catalog_cache_ttl", d.Sync.CatalogCacheTTL)

	v.SetDefault("opds.base_url", d.OPDS.BaseURL)
	v.SetDefault("opds.username", d.OPDS.Username)
	v.SetDefault("opds.password", d.OPDS.Password)
	v.SetDefault("opds.concurrency", d.OPDS.Concurrency)
	v.SetDefault("opds.batch_size", d.OPDS.BatchSize)
	v.SetDefault("opds.since_timestamp", d.OPDS.SinceTimestamp)
	v.SetDefault("opds.delay_ms", d.OPDS.DelayMS)
}

// Load layers defaults, the optional config file and BS_* environment
// variables onto v, in that order of precedence, and validates the result.
// Flags bound to v beforehand win over all of them.
func Load(v *viper.Viper, file string) (*Config, error) {
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("BS_DATABASE_DSN is required")
	}

	if c.RequestTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	if _, err := zap.ParseAtomicLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("BS_LOG_LEVEL %q is not a valid level", c.LogLevel)
	}

	if c.Sync.BookCap < 1 {
		return fmt.Errorf("BS_SYNC_BOOK_CAP must be at least 1")
	}

	if c.Sync.ReadingStateCap < 1 {
		return fmt.Errorf("BS_SYNC_READING_STATE_CAP must be at least 1")
	}

	if c.Sync.CatalogPageSize < 1 {
		return fmt.Errorf("BS_SYNC_CATALOG_PAGE_SIZE must be at least 1")
	}

	if c.Sync.CatalogMaxPages < 0 {
		return fmt.Errorf("BS_SYNC_CATALOG_MAX_PAGES cannot be negative")
	}

	if len(c.Sync.ReadableFormats) == 0 {
		return fmt.Errorf("BS_SYNC_READABLE_FORMATS must name at least one format")
	}
	if _, err := c.Sync.Formats(); err != nil {
		return err
	}

	if c.Sync.CatalogCacheSize < 0 || c.Sync.CatalogCacheTTL < 0 {
		return fmt.Errorf("catalog cache size and ttl cannot be negative")
	}

	if c.OPDS.Concurrency < 1 {
		return fmt.Errorf("BS_OPDS_CONCURRENCY must be at least 1")
	}

	if c.OPDS.BatchSize < 0 {
		return fmt.Errorf("BS_OPDS_BATCH_SIZE cannot be negative")
	}

	if c.OPDS.SinceTimestamp < 0 {
		return fmt.Errorf("BS_OPDS_SINCE_TIMESTAMP cannot be negative")
	}

	if c.OPDS.DelayMS < 0 {
		return fmt.Errorf("BS_OPDS_DELAY_MS cannot be negative")
	}

	return nil
}

// Formats parses ReadableFormats.
func (s SyncConfig) Formats() ([]models.Format, error) {
	out := make([]models.Format, 0, len(s.ReadableFormats))
	for _, name := range s.ReadableFormats {
		f, ok := models.ParseFormat(name)
		if !ok {
			return nil, fmt.Errorf("unknown readable format %q", name)
		}
		out = append(out, f)
	}
	return out, nil
}
