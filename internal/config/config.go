package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Router  RouterConfig  `yaml:"router" mapstructure:"router"`
	Resolve ResolveConfig `yaml:"resolve" mapstructure:"resolve"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	PDF     PDFConfig     `yaml:"pdf" mapstructure:"pdf"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Watch   WatchConfig   `yaml:"watch" mapstructure:"watch"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ArchiveConfig locates the raw artifact tree and the readiness contract
// with the crawler writing into it.
type ArchiveConfig struct {
	Root             string `yaml:"root" mapstructure:"root"`
	SettleSecs       int    `yaml:"settle_secs" mapstructure:"settle_secs"`
	StableIntervalMs int    `yaml:"stable_interval_ms" mapstructure:"stable_interval_ms"`
}

// Settle returns the settle window as a duration.
func (c ArchiveConfig) Settle() time.Duration {
	return time.Duration(c.SettleSecs) * time.Second
}

// StableInterval returns the re-stat interval as a duration.
func (c ArchiveConfig) StableInterval() time.Duration {
	return time.Duration(c.StableIntervalMs) * time.Millisecond
}

// IngestConfig configures the ingestion coordinator.
type IngestConfig struct {
	Concurrency         int     `yaml:"concurrency" mapstructure:"concurrency"`
	ArtifactTimeoutSecs int     `yaml:"artifact_timeout_secs" mapstructure:"artifact_timeout_secs"`
	MaxArtifactsPerSec  float64 `yaml:"max_artifacts_per_sec" mapstructure:"max_artifacts_per_sec"`
	CheckpointEvery     int     `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
	WriteAttempts       int     `yaml:"write_attempts" mapstructure:"write_attempts"`
	// SystemicMinAttempts is how many failed attempts an era needs, with no
	// success, before the run is reported as systemically broken.
	SystemicMinAttempts int `yaml:"systemic_min_attempts" mapstructure:"systemic_min_attempts"`
}

// ArtifactTimeout returns the per-artifact deadline.
func (c IngestConfig) ArtifactTimeout() time.Duration {
	return time.Duration(c.ArtifactTimeoutSecs) * time.Second
}

// RouterConfig configures the format-era table.
type RouterConfig struct {
	ErasFile string `yaml:"eras_file" mapstructure:"eras_file"`
}

// ResolveConfig holds the vote-to-bill resolution thresholds.
type ResolveConfig struct {
	DateWindowDays    int     `yaml:"date_window_days" mapstructure:"date_window_days"`
	MinConfidence     float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	AmbiguityMargin   float64 `yaml:"ambiguity_margin" mapstructure:"ambiguity_margin"`
	TextWeight        float64 `yaml:"text_weight" mapstructure:"text_weight"`
	DesignationWeight float64 `yaml:"designation_weight" mapstructure:"designation_weight"`
	CitationWeight    float64 `yaml:"citation_weight" mapstructure:"citation_weight"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PDFConfig configures PDF text extraction.
type PDFConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ServerConfig configures the read-only query API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// WatchConfig configures scheduled re-ingestion.
type WatchConfig struct {
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
}

// MetricsConfig configures run metrics export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONGRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("archive.root", "data")
	v.SetDefault("archive.settle_secs", 5)
	v.SetDefault("archive.stable_interval_ms", 250)
	v.SetDefault("ingest.concurrency", 8)
	v.SetDefault("ingest.artifact_timeout_secs", 120)
	v.SetDefault("ingest.max_artifacts_per_sec", 0)
	v.SetDefault("ingest.checkpoint_every", 500)
	v.SetDefault("ingest.write_attempts", 3)
	v.SetDefault("ingest.systemic_min_attempts", 3)
	v.SetDefault("router.eras_file", "")
	v.SetDefault("resolve.date_window_days", 1)
	v.SetDefault("resolve.min_confidence", 0.6)
	v.SetDefault("resolve.ambiguity_margin", 0.1)
	v.SetDefault("resolve.text_weight", 0.5)
	v.SetDefault("resolve.designation_weight", 0.3)
	v.SetDefault("resolve.citation_weight", 0.4)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "congress.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("pdf.provider", "local")
	v.SetDefault("pdf.pdftotext_path", "pdftotext")
	v.SetDefault("server.port", 8080)
	v.SetDefault("watch.schedule", "@every 30m")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "ingest", "watch":
		if c.Archive.Root == "" {
			errs = append(errs, "archive.root is required")
		}
		if c.Ingest.Concurrency < 1 || c.Ingest.Concurrency > 256 {
			errs = append(errs, "ingest.concurrency must be between 1 and 256")
		}
		if c.Ingest.ArtifactTimeoutSecs <= 0 {
			errs = append(errs, "ingest.artifact_timeout_secs must be > 0")
		}
		if c.Ingest.MaxArtifactsPerSec < 0 {
			errs = append(errs, "ingest.max_artifacts_per_sec must be >= 0")
		}
		if mode == "watch" && c.Watch.Schedule == "" {
			errs = append(errs, "watch.schedule is required")
		}
		errs = append(errs, c.Resolve.problems()...)
	case "resolve":
		errs = append(errs, c.Resolve.problems()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "status", "migrate", "eras":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c ResolveConfig) problems() []string {
	var errs []string
	if c.DateWindowDays < 0 {
		errs = append(errs, "resolve.date_window_days must be >= 0")
	}
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		errs = append(errs, "resolve.min_confidence must be in (0, 1]")
	}
	if c.AmbiguityMargin < 0 || c.AmbiguityMargin >= 1 {
		errs = append(errs, "resolve.ambiguity_margin must be in [0, 1)")
	}
	if c.TextWeight < 0 || c.DesignationWeight < 0 || c.CitationWeight < 0 {
		errs = append(errs, "resolve weights must be >= 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
