package config

import (
	"booksync/internal/core/domain/models"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Sync.BookCap)
	assert.Equal(t, 100, cfg.Sync.ReadingStateCap)
	assert.Equal(t, 1000, cfg.Sync.CatalogPageSize)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)

	formats, err := cfg.Sync.Formats()
	require.NoError(t, err)
	assert.Equal(t, []models.Format{models.FormatEPUB, models.FormatKEPUB}, formats)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "booksync.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
http_addr: ":9999"
sync:
  book_cap: 25
  readable_formats: [epub, pdf]
opds:
  base_url: http://calibre.local/opds
`), 0o600))

	t.Setenv("BS_SYNC_BOOK_CAP", "10")
	t.Setenv("BS_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 10, cfg.Sync.BookCap)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://calibre.local/opds", cfg.OPDS.BaseURL)

	formats, err := cfg.Sync.Formats()
	require.NoError(t, err)
	assert.Equal(t, []models.Format{models.FormatEPUB, models.FormatPDF}, formats)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero book cap", func(c *Config) { c.Sync.BookCap = 0 }},
		{"zero reading state cap", func(c *Config) { c.Sync.ReadingStateCap = 0 }},
		{"zero page size", func(c *Config) { c.Sync.CatalogPageSize = 0 }},
		{"negative max pages", func(c *Config) { c.Sync.CatalogMaxPages = -1 }},
		{"no formats", func(c *Config) { c.Sync.ReadableFormats = nil }},
		{"unknown format", func(c *Config) { c.Sync.ReadableFormats = []string{"epub", "djvu"} }},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
		{"no dsn", func(c *Config) { c.DatabaseDSN = "" }},
		{"zero concurrency", func(c *Config) { c.OPDS.Concurrency = 0 }},
		{"negative batch", func(c *Config) { c.OPDS.BatchSize = -1 }},
		{"negative since", func(c *Config) { c.OPDS.SinceTimestamp = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
