// Package config holds the crawl-wide settings loaded from the config
// file, environment, and flags via viper, validated at startup. Invalid
// settings are a fatal startup error, not something to limp along with.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/bookscout/bookscout/internal/fetch"
	"github.com/bookscout/bookscout/internal/similarity"
)

// Fetch mirrors the engine's knobs with file/env names.
type Fetch struct {
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=1,lte=10"`
	MinRequestDelay   time.Duration `mapstructure:"min_request_delay" validate:"gte=0"`
	MinContentLength  int           `mapstructure:"min_content_length" validate:"gte=0"`
	DetectionKeywords []string      `mapstructure:"detection_keywords"`
	RecycleAfter      int           `mapstructure:"recycle_after" validate:"gte=1"`
	Headless          bool          `mapstructure:"headless"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Similarity tunes the fuzzy matcher used by the rating pass.
type Similarity struct {
	Weights   similarity.Weights `mapstructure:"weights"`
	Threshold float64            `mapstructure:"threshold" validate:"gte=0,lte=100"`
}

// Config is the full settings tree.
type Config struct {
	Fetch           Fetch      `mapstructure:"fetch"`
	Similarity      Similarity `mapstructure:"similarity"`
	Workers         int        `mapstructure:"workers" validate:"gte=1,lte=64"`
	CategoryMapFile string     `mapstructure:"category_map_file"`
	MetricsAddr     string     `mapstructure:"metrics_addr"`
}

// SetDefaults registers every default on a viper instance so partial
// config files work.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.min_request_delay", time.Second)
	v.SetDefault("fetch.min_content_length", 1000)
	v.SetDefault("fetch.detection_keywords", []string{
		"access denied", "captcha", "cloudflare", "are you a robot",
	})
	v.SetDefault("fetch.recycle_after", 5)
	v.SetDefault("fetch.headless", true)
	v.SetDefault("fetch.timeout", 60*time.Second)
	v.SetDefault("similarity.weights.token", 0.5)
	v.SetDefault("similarity.weights.substr", 0.1)
	v.SetDefault("similarity.weights.phonetic", 0.1)
	v.SetDefault("similarity.weights.ratio", 0.3)
	v.SetDefault("similarity.threshold", 65)
	v.SetDefault("workers", 4)
}

// Load unmarshals and validates the settings tree.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// FetchConfig converts to the engine's config type.
func (c *Config) FetchConfig() fetch.Config {
	return fetch.Config{
		MaxRetries:        c.Fetch.MaxRetries,
		MinRequestDelay:   c.Fetch.MinRequestDelay,
		MinContentLength:  c.Fetch.MinContentLength,
		DetectionKeywords: c.Fetch.DetectionKeywords,
		RecycleAfter:      c.Fetch.RecycleAfter,
		Headless:          c.Fetch.Headless,
		Timeout:           c.Fetch.Timeout,
	}
}

// SimilarityEngine builds the matcher from the settings tree.
func (c *Config) SimilarityEngine() *similarity.Engine {
	return similarity.New(c.Similarity.Weights, c.Similarity.Threshold)
}
