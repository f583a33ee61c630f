// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/legal-corpus-crawler/internal/cache"
	"github.com/JakeFAU/legal-corpus-crawler/internal/crawler"
	"github.com/JakeFAU/legal-corpus-crawler/internal/extract"
	"github.com/JakeFAU/legal-corpus-crawler/internal/publish"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig        `mapstructure:"crawler"`
	Cache     CacheConfig          `mapstructure:"cache"`
	Extractor ExtractorConfig      `mapstructure:"extractor"`
	Sites     []crawler.SiteConfig `mapstructure:"sites"`
	Publish   PublishConfig        `mapstructure:"publish"`
	Metrics   MetricsConfig        `mapstructure:"metrics"`
	Logging   LoggingConfig        `mapstructure:"logging"`
}

// CrawlerConfig governs traversal and the HTTP client.
type CrawlerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	UserAgent      string        `mapstructure:"user_agent"`
	Accept         string        `mapstructure:"accept"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// CacheConfig locates the download cache. Each site gets its own subdirectory.
type CacheConfig struct {
	Root    string `mapstructure:"root"`
	KeyMode string `mapstructure:"key_mode"`
}

// ExtractorConfig lists the extraction strategies in the order they are tried.
type ExtractorConfig struct {
	Strategies    []string      `mapstructure:"strategies"`
	PdftotextPath string        `mapstructure:"pdftotext_path"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// PublishConfig selects where the finished corpus goes. Every sink is optional.
type PublishConfig struct {
	RunPrefix string         `mapstructure:"run_prefix"`
	Format    string         `mapstructure:"format"`
	Local     LocalConfig    `mapstructure:"local"`
	GCS       GCSConfig      `mapstructure:"gcs"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
	PubSub    PubSubConfig   `mapstructure:"pubsub"`
}

// LocalConfig writes the export under a directory.
type LocalConfig struct {
	Dir string `mapstructure:"dir"`
}

// GCSConfig uploads the export to a bucket.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// PostgresConfig inserts one row per record.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig holds metadata for the run notification.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the status server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.request_timeout", "30s")
	v.SetDefault("crawler.max_body_bytes", 64<<20)
	v.SetDefault("crawler.max_retries", 2)
	v.SetDefault("crawler.backoff_initial", "250ms")
	v.SetDefault("crawler.backoff_max", "5s")
	v.SetDefault("crawler.rate_limit_rps", 0)
	v.SetDefault("crawler.rate_limit_burst", 1)
	v.SetDefault("cache.root", "data/pdfs")
	v.SetDefault("cache.key_mode", string(cache.KeyBasename))
	v.SetDefault("extractor.strategies", []string{extract.StrategyPdftotext, extract.StrategyNative})
	v.SetDefault("extractor.pdftotext_path", "pdftotext")
	v.SetDefault("extractor.timeout", "1m")
	v.SetDefault("publish.run_prefix", "corpora")
	v.SetDefault("publish.format", string(publish.FormatJSONL))
	v.SetDefault("publish.postgres.table", "corpus_documents")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Concurrency < 1 {
		return fmt.Errorf("crawler.concurrency must be >= 1")
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.Crawler.RateLimitRPS < 0 {
		return fmt.Errorf("crawler.rate_limit_rps must be >= 0")
	}
	if c.Cache.Root == "" {
		return fmt.Errorf("cache.root is required")
	}
	switch cache.KeyMode(c.Cache.KeyMode) {
	case cache.KeyBasename, cache.KeyURLHash:
	default:
		return fmt.Errorf("cache.key_mode %q is not supported", c.Cache.KeyMode)
	}
	if _, err := extract.Build(c.Extractor.Strategies, extract.Options{}, nil); err != nil {
		return fmt.Errorf("extractor.strategies: %w", err)
	}
	if _, err := publish.ParseFormat(c.Publish.Format); err != nil {
		return fmt.Errorf("publish.format: %w", err)
	}
	if c.Publish.PubSub.Topic != "" && c.Publish.PubSub.ProjectID == "" {
		return fmt.Errorf("publish.pubsub.project_id must be set when a topic is configured")
	}
	return c.validateSites()
}

func (c Config) validateSites() error {
	if len(c.Sites) == 0 {
		return errors.New("at least one site must be configured")
	}
	seen := make(map[string]struct{}, len(c.Sites))
	dirs := make(map[string]string, len(c.Sites))
	for i, site := range c.Sites {
		if err := site.Validate(); err != nil {
			return fmt.Errorf("sites[%d]: %w", i, err)
		}
		if _, dup := seen[site.Name]; dup {
			return fmt.Errorf("sites[%d]: duplicate site name %q", i, site.Name)
		}
		seen[site.Name] = struct{}{}
		dir := site.CacheDir()
		if other, clash := dirs[dir]; clash {
			return fmt.Errorf("sites[%d]: cache directory %q is shared with site %q", i, dir, other)
		}
		dirs[dir] = site.Name
	}
	return nil
}

// Site returns the named site.
func (c Config) Site(name string) (crawler.SiteConfig, bool) {
	for _, site := range c.Sites {
		if site.Name == name {
			return site, true
		}
	}
	return crawler.SiteConfig{}, false
}
