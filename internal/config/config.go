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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Policy     PolicyConfig     `yaml:"policy" mapstructure:"policy"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Preflight  PreflightConfig  `yaml:"preflight" mapstructure:"preflight"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig holds Firecrawl API settings (fallback reader only). An
// empty key disables the fallback.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	ExtractModel  string  `yaml:"extract_model" mapstructure:"extract_model"`
	ExplainModel  string  `yaml:"explain_model" mapstructure:"explain_model"`
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
	ExplainErrors bool    `yaml:"explain_errors" mapstructure:"explain_errors"`
}

// PolicyConfig locates the trusted-host policy file. An empty path uses the
// built-in defaults.
type PolicyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ResearchConfig configures the research phase.
type ResearchConfig struct {
	MinContentLength int     `yaml:"min_content_length" mapstructure:"min_content_length"`
	MaxChildLinks    int     `yaml:"max_child_links" mapstructure:"max_child_links"`
	FetchesPerSec    float64 `yaml:"fetches_per_sec" mapstructure:"fetches_per_sec"`
	FetchTimeoutSecs int     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
}

// PreflightConfig configures the manual URL preflight.
type PreflightConfig struct {
	RequireReachable bool `yaml:"require_reachable" mapstructure:"require_reachable"`
}

// PipelineConfig carries the per-stage time budgets in seconds.
type PipelineConfig struct {
	ResearchTimeoutSecs int `yaml:"research_timeout_secs" mapstructure:"research_timeout_secs"`
	ExtractTimeoutSecs  int `yaml:"extract_timeout_secs" mapstructure:"extract_timeout_secs"`
	PublishTimeoutSecs  int `yaml:"publish_timeout_secs" mapstructure:"publish_timeout_secs"`
	AuditReuseWindowHrs int `yaml:"audit_reuse_window_hrs" mapstructure:"audit_reuse_window_hrs"`
	RecentRunWindowMins int `yaml:"recent_run_window_mins" mapstructure:"recent_run_window_mins"`
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
	v.SetEnvPrefix("REGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.extract_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.explain_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.explain_errors", true)
	v.SetDefault("research.min_content_length", 1500)
	v.SetDefault("research.max_child_links", 8)
	v.SetDefault("research.fetches_per_sec", 1.0)
	v.SetDefault("research.fetch_timeout_secs", 45)
	v.SetDefault("preflight.require_reachable", true)
	v.SetDefault("pipeline.research_timeout_secs", 300)
	v.SetDefault("pipeline.extract_timeout_secs", 180)
	v.SetDefault("pipeline.publish_timeout_secs", 20)
	v.SetDefault("pipeline.audit_reuse_window_hrs", 24)
	v.SetDefault("pipeline.recent_run_window_mins", 10)

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
