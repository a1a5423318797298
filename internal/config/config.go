package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Alignment values accepted for export.text_alignment.
const (
	AlignLeft    = "left"
	AlignCenter  = "center"
	AlignRight   = "right"
	AlignJustify = "justify"
)

// ExportSettings controls the stylesheet injected into exported documents.
type ExportSettings struct {
	TextAlignment  string `json:"text_alignment" mapstructure:"text_alignment"`
	ForceAlignment bool   `json:"force_alignment" mapstructure:"force_alignment"`
}

type OpenAI struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// Config holds all runtime settings for the translation engine.
type Config struct {
	DBPath string `mapstructure:"db_path"`

	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
	BatchCharLimit    int           `mapstructure:"batch_char_limit"`
	TranslateTimeout  time.Duration `mapstructure:"translate_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`

	// Models is the ordered fallback chain tried per translation attempt.
	Models []string `mapstructure:"models"`

	SourceLanguage  string `mapstructure:"source_language"`
	TargetLanguage  string `mapstructure:"target_language"`
	TargetDirection string `mapstructure:"target_direction"`

	Export ExportSettings `mapstructure:"export"`
	OpenAI OpenAI         `mapstructure:"openai"`

	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "mutarjim.db")
	v.SetDefault("worker_concurrency", 5)
	v.SetDefault("batch_char_limit", 6000)
	v.SetDefault("translate_timeout", 10*time.Minute)
	v.SetDefault("max_retries", 3)
	v.SetDefault("models", []string{"gpt-4o", "gpt-4o-mini"})
	v.SetDefault("source_language", "en")
	v.SetDefault("target_language", "ar")
	v.SetDefault("target_direction", "rtl")
	v.SetDefault("export.text_alignment", AlignRight)
	v.SetDefault("export.force_alignment", false)
	v.SetDefault("server.port", 8080)
}

// Load reads configuration from built-in defaults, the given file (optional)
// and the environment (MUTARJIM_ prefix), in ascending priority.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MUTARJIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("mutarjim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("worker_concurrency must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.BatchCharLimit < 1 {
		return fmt.Errorf("batch_char_limit must be positive, got %d", c.BatchCharLimit)
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model is required in the fallback chain")
	}
	switch c.Export.TextAlignment {
	case AlignLeft, AlignCenter, AlignRight, AlignJustify:
	default:
		return fmt.Errorf("unknown text alignment %q", c.Export.TextAlignment)
	}
	return nil
}
