// Package config loads and validates qrscan settings from the environment and
// an optional .env file using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/and161185/qrscan/internal/model"
)

// DefaultAPIURL is the backend base used when QRSCAN_API_URL is unset.
const DefaultAPIURL = "http://127.0.0.1:5000/api"

var validate = validator.New()

// Config holds client configuration.
type Config struct {
	// APIURL is the backend base; the decode endpoint is APIURL + "/content/decode".
	APIURL string `mapstructure:"QRSCAN_API_URL" validate:"required,url"`
	// DatabaseURL enables the scan journal when set.
	DatabaseURL string `mapstructure:"QRSCAN_DATABASE_URL"`

	Debounce      time.Duration `mapstructure:"QRSCAN_DEBOUNCE" validate:"gt=0"`
	ResumeDelay   time.Duration `mapstructure:"QRSCAN_RESUME_DELAY" validate:"gt=0"`
	FrameInterval time.Duration `mapstructure:"QRSCAN_FRAME_INTERVAL" validate:"gt=0"`
	HTTPTimeout   time.Duration `mapstructure:"QRSCAN_HTTP_TIMEOUT" validate:"gt=0"`

	MaxWidth     int `mapstructure:"QRSCAN_MAX_WIDTH" validate:"min=1"`
	MaxHeight    int `mapstructure:"QRSCAN_MAX_HEIGHT" validate:"min=1"`
	WarmupFrames int `mapstructure:"QRSCAN_WARMUP_FRAMES" validate:"min=0"`

	// ConfigDir overrides where the token and data key live.
	ConfigDir string `mapstructure:"QRSCAN_CONFIG_DIR"`
}

// Load reads .env from the working directory (if present), then the environment.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing file is fine

	v.AutomaticEnv()

	v.SetDefault("QRSCAN_API_URL", DefaultAPIURL)
	v.SetDefault("QRSCAN_DATABASE_URL", "")
	v.SetDefault("QRSCAN_DEBOUNCE", time.Second)
	v.SetDefault("QRSCAN_RESUME_DELAY", time.Second)
	v.SetDefault("QRSCAN_FRAME_INTERVAL", 16*time.Millisecond)
	v.SetDefault("QRSCAN_HTTP_TIMEOUT", 15*time.Second)
	v.SetDefault("QRSCAN_MAX_WIDTH", 1920)
	v.SetDefault("QRSCAN_MAX_HEIGHT", 1080)
	v.SetDefault("QRSCAN_WARMUP_FRAMES", 2)
	v.SetDefault("QRSCAN_CONFIG_DIR", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Constraints returns the capture constraints with the configured cap.
func (c *Config) Constraints() model.CameraConstraints {
	cons := model.DefaultConstraints()
	cons.MaxWidth, cons.MaxHeight = c.MaxWidth, c.MaxHeight
	if cons.IdealWidth > cons.MaxWidth {
		cons.IdealWidth = cons.MaxWidth
	}
	if cons.IdealHeight > cons.MaxHeight {
		cons.IdealHeight = cons.MaxHeight
	}
	return cons
}

// JournalEnabled reports whether decoded results are persisted.
func (c *Config) JournalEnabled() bool {
	return c != nil && c.DatabaseURL != ""
}
