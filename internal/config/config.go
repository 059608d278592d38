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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// BrowserConfig configures the scripted-browser fetch strategy.
type BrowserConfig struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Headless    bool `yaml:"headless" mapstructure:"headless"`
}

// FetchConfig configures the content fetcher.
type FetchConfig struct {
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DomainRPS        float64 `yaml:"domain_rps" mapstructure:"domain_rps"`
	DomainBurst      int     `yaml:"domain_burst" mapstructure:"domain_burst"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	MinContentLength int     `yaml:"min_content_length" mapstructure:"min_content_length"`
}

// ExtractConfig configures LLM event extraction.
type ExtractConfig struct {
	// MaxInputChars truncates page content before it reaches the model.
	// Content past the cutoff is silently dropped; this trades recall on
	// very long listing pages for bounded cost and latency.
	MaxInputChars     int    `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	MaxAttempts       int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelaySecs    int    `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	RateLimitAttempts int    `yaml:"rate_limit_attempts" mapstructure:"rate_limit_attempts"`
	RateLimitBaseSecs int    `yaml:"rate_limit_base_secs" mapstructure:"rate_limit_base_secs"`
	TargetRegion      string `yaml:"target_region" mapstructure:"target_region"`
}

// DedupConfig configures the deduplication engine.
type DedupConfig struct {
	// ListingPatterns are regexes matching known aggregator listing pages.
	ListingPatterns []string `yaml:"listing_patterns" mapstructure:"listing_patterns"`
	// TrustedListingHosts are hostnames whose sources only ever expose
	// listing URLs; candidates from them bypass the listing gate.
	TrustedListingHosts []string `yaml:"trusted_listing_hosts" mapstructure:"trusted_listing_hosts"`
}

// PipelineConfig configures run orchestration.
type PipelineConfig struct {
	MaxEventsPerRun      int `yaml:"max_events_per_run" mapstructure:"max_events_per_run"`
	InterSourceDelaySecs int `yaml:"inter_source_delay_secs" mapstructure:"inter_source_delay_secs"`
	StuckRunAgeHours     int `yaml:"stuck_run_age_hours" mapstructure:"stuck_run_age_hours"`
	// PartialThreshold is the number of source failures at or above which
	// a run report is tiered "failed" instead of "partial".
	PartialThreshold int `yaml:"partial_threshold" mapstructure:"partial_threshold"`
	MaxReportErrors  int `yaml:"max_report_errors" mapstructure:"max_report_errors"`
}

// NotifyConfig configures the run-reporting webhook.
type NotifyConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("EVENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout_secs", 45)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.domain_rps", 0.5)
	v.SetDefault("fetch.domain_burst", 1)
	v.SetDefault("fetch.user_agent", "events-cli/1.0 (+https://github.com/cityscout/events-cli)")
	v.SetDefault("fetch.min_content_length", 100)
	v.SetDefault("extract.max_input_chars", 24000)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("extract.retry_delay_secs", 2)
	v.SetDefault("extract.rate_limit_attempts", 4)
	v.SetDefault("extract.rate_limit_base_secs", 5)
	v.SetDefault("extract.target_region", "Berlin")
	v.SetDefault("dedup.listing_patterns", []string{
		`^https?://(www\.)?ra\.co/events/[a-z]{2}/[a-z-]+/?$`,
		`^https?://(www\.)?eventbrite\.[a-z.]+/d/.*`,
		`^https?://[^/]+/(events|veranstaltungen|kalender|calendar|programm)/?$`,
		`^https?://[^/]+/events\?.*`,
	})
	v.SetDefault("dedup.trusted_listing_hosts", []string{})
	v.SetDefault("pipeline.max_events_per_run", 120)
	v.SetDefault("pipeline.inter_source_delay_secs", 5)
	v.SetDefault("pipeline.stuck_run_age_hours", 6)
	v.SetDefault("pipeline.partial_threshold", 5)
	v.SetDefault("pipeline.max_report_errors", 10)
	v.SetDefault("notify.timeout_secs", 10)

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
