package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Archive.Root)
	assert.Equal(t, 5*time.Second, cfg.Archive.Settle())
	assert.Equal(t, 250*time.Millisecond, cfg.Archive.StableInterval())
	assert.Equal(t, 8, cfg.Ingest.Concurrency)
	assert.Equal(t, 120*time.Second, cfg.Ingest.ArtifactTimeout())
	assert.Equal(t, 500, cfg.Ingest.CheckpointEvery)
	assert.Equal(t, 3, cfg.Ingest.WriteAttempts)
	assert.Equal(t, 3, cfg.Ingest.SystemicMinAttempts)
	assert.Equal(t, 1, cfg.Resolve.DateWindowDays)
	assert.InDelta(t, 0.6, cfg.Resolve.MinConfidence, 0.001)
	assert.InDelta(t, 0.1, cfg.Resolve.AmbiguityMargin, 0.001)
	assert.InDelta(t, 0.5, cfg.Resolve.TextWeight, 0.001)
	assert.InDelta(t, 0.3, cfg.Resolve.DesignationWeight, 0.001)
	assert.InDelta(t, 0.4, cfg.Resolve.CitationWeight, 0.001)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "congress.db", cfg.Store.Path)
	assert.Equal(t, "pdftotext", cfg.PDF.PdfToTextPath)
	assert.Equal(t, "@every 30m", cfg.Watch.Schedule)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
archive:
  root: /srv/archive
ingest:
  concurrency: 16
store:
  driver: postgres
  database_url: postgres://localhost/congress
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/archive", cfg.Archive.Root)
	assert.Equal(t, 16, cfg.Ingest.Concurrency)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/congress", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 120, cfg.Ingest.ArtifactTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CONGRESS_STORE_DRIVER", "postgres")
	t.Setenv("CONGRESS_LOG_LEVEL", "warn")
	t.Setenv("CONGRESS_INGEST_CONCURRENCY", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Ingest.Concurrency)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("archive: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Archive.Root = "data"
	cfg.Ingest.Concurrency = 8
	cfg.Ingest.ArtifactTimeoutSecs = 120
	cfg.Resolve = ResolveConfig{
		DateWindowDays:    1,
		MinConfidence:     0.6,
		AmbiguityMargin:   0.1,
		TextWeight:        0.5,
		DesignationWeight: 0.3,
		CitationWeight:    0.4,
	}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "congress.db"
	cfg.Server.Port = 8080
	cfg.Watch.Schedule = "@hourly"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ingest ok", mode: "ingest"},
		{name: "resolve ok", mode: "resolve"},
		{name: "serve ok", mode: "serve"},
		{name: "status ok", mode: "status"},
		{name: "watch ok", mode: "watch"},
		{
			name:    "postgres without url",
			mode:    "ingest",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: "store.database_url is required",
		},
		{
			name:    "unknown driver",
			mode:    "status",
			mutate:  func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: "store.driver must be sqlite or postgres",
		},
		{
			name:    "concurrency too low",
			mode:    "ingest",
			mutate:  func(c *Config) { c.Ingest.Concurrency = 0 },
			wantErr: "ingest.concurrency must be between 1 and 256",
		},
		{
			name:    "missing root",
			mode:    "ingest",
			mutate:  func(c *Config) { c.Archive.Root = "" },
			wantErr: "archive.root is required",
		},
		{
			name:    "confidence out of range",
			mode:    "resolve",
			mutate:  func(c *Config) { c.Resolve.MinConfidence = 1.5 },
			wantErr: "resolve.min_confidence",
		},
		{
			name:    "negative weight",
			mode:    "resolve",
			mutate:  func(c *Config) { c.Resolve.CitationWeight = -1 },
			wantErr: "resolve weights must be >= 0",
		},
		{
			name:    "watch without schedule",
			mode:    "watch",
			mutate:  func(c *Config) { c.Watch.Schedule = "" },
			wantErr: "watch.schedule is required",
		},
		{
			name:    "serve bad port",
			mode:    "serve",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port must be > 0",
		},
		{
			name:    "unknown mode",
			mode:    "export",
			wantErr: "unknown mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
