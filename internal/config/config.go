package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Import ImportConfig `yaml:"import" mapstructure:"import"`
	Match  MatchConfig  `yaml:"match" mapstructure:"match"`
	Retry  RetryConfig  `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the Postgres connection pool.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the REST server.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	UploadRatePerMin int      `yaml:"upload_rate_per_min" mapstructure:"upload_rate_per_min"`
	UploadBurst      int      `yaml:"upload_burst" mapstructure:"upload_burst"`
	MaxUploadMB      int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ImportConfig configures workbook ingestion.
type ImportConfig struct {
	ChunkSize         int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	LayoutPath        string `yaml:"layout_path" mapstructure:"layout_path"`
	AutoMatchOnUpload bool   `yaml:"auto_match_on_upload" mapstructure:"auto_match_on_upload"`
}

// MatchConfig holds the reconciliation thresholds.
type MatchConfig struct {
	AutoLinkThreshold float64 `yaml:"auto_link_threshold" mapstructure:"auto_link_threshold"`
	AmbiguityMargin   float64 `yaml:"ambiguity_margin" mapstructure:"ambiguity_margin"`
	CandidateFloor    float64 `yaml:"candidate_floor" mapstructure:"candidate_floor"`
	PrefilterFloor    float64 `yaml:"prefilter_floor" mapstructure:"prefilter_floor"`
	MaxCandidates     int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	TopN              int     `yaml:"top_n" mapstructure:"top_n"`
	BandHigh          float64 `yaml:"band_high" mapstructure:"band_high"`
	BandMedium        float64 `yaml:"band_medium" mapstructure:"band_medium"`
	TrigramWeight     float64 `yaml:"trigram_weight" mapstructure:"trigram_weight"`
	PageSize          int     `yaml:"page_size" mapstructure:"page_size"`
}

// RetryConfig configures retries of transient database failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VISTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.upload_rate_per_min", 6)
	v.SetDefault("server.upload_burst", 2)
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("import.chunk_size", 500)
	v.SetDefault("import.auto_match_on_upload", false)
	v.SetDefault("match.auto_link_threshold", 0.92)
	v.SetDefault("match.ambiguity_margin", 0.03)
	v.SetDefault("match.candidate_floor", 0.5)
	v.SetDefault("match.prefilter_floor", 0.3)
	v.SetDefault("match.max_candidates", 10)
	v.SetDefault("match.top_n", 5)
	v.SetDefault("match.band_high", 0.9)
	v.SetDefault("match.band_medium", 0.7)
	v.SetDefault("match.trigram_weight", 0.6)
	v.SetDefault("match.page_size", 500)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 100)
	v.SetDefault("retry.max_backoff_ms", 5000)

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

// Validate checks the settings a command mode depends on. Modes: "serve",
// "import", "match".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.MaxUploadMB <= 0 {
			errs = append(errs, "server.max_upload_mb must be > 0")
		}
	case "import":
		if c.Import.ChunkSize <= 0 || c.Import.ChunkSize > 10000 {
			errs = append(errs, "import.chunk_size must be between 1 and 10000")
		}
	case "match":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	errs = append(errs, c.Match.validate()...)

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (m MatchConfig) validate() []string {
	var errs []string
	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, "match."+name+" must be between 0 and 1")
		}
	}
	unit("auto_link_threshold", m.AutoLinkThreshold)
	unit("ambiguity_margin", m.AmbiguityMargin)
	unit("candidate_floor", m.CandidateFloor)
	unit("prefilter_floor", m.PrefilterFloor)
	unit("band_high", m.BandHigh)
	unit("band_medium", m.BandMedium)
	unit("trigram_weight", m.TrigramWeight)

	if m.CandidateFloor > m.AutoLinkThreshold {
		errs = append(errs, "match.candidate_floor must not exceed match.auto_link_threshold")
	}
	if m.BandMedium > m.BandHigh {
		errs = append(errs, "match.band_medium must not exceed match.band_high")
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
