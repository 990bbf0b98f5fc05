// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Search   SearchConfig   `mapstructure:"search"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port        int `mapstructure:"port" validate:"gt=0,lt=65536"`
	MaxUploadMB int `mapstructure:"max_upload_mb" validate:"gt=0"`
	// StaticDir, when set, is served at / for the upload page.
	StaticDir string `mapstructure:"static_dir"`
	// RequestTimeoutSeconds bounds upload handling; 0 disables the limit.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" validate:"gte=0"`
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers int `mapstructure:"workers" validate:"gte=1"`
	// JobTimeoutSeconds bounds each word; 0 lets jobs run to completion.
	JobTimeoutSeconds int `mapstructure:"job_timeout_seconds" validate:"gte=0"`
}

// SearchConfig controls where icons are searched for.
type SearchConfig struct {
	DefaultTemplate string `mapstructure:"default_template" validate:"required,url"`
	UserAgent       string `mapstructure:"user_agent"`
	RespectRobots   bool   `mapstructure:"respect_robots"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	// TimeoutSeconds bounds each request; 0 disables the timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gte=0"`
	MaxBodyMB      int `mapstructure:"max_body_mb" validate:"gte=0"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel" validate:"gte=0"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds" validate:"gte=0"`
	PromotionThresh int  `mapstructure:"promotion_threshold" validate:"gte=0"`
}

// StorageConfig locates the ephemeral batch workspace.
type StorageConfig struct {
	WorkDir string `mapstructure:"work_dir" validate:"required"`
}

// ArchiveConfig tunes zip output.
type ArchiveConfig struct {
	CompressionLevel int `mapstructure:"compression_level" validate:"gte=-2,lte=9"`
}

// PubSubConfig holds metadata for batch notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Load builds a Config from defaults, an optional file, and HARVESTER_*
// environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.request_timeout_seconds", 0)
	v.SetDefault("pool.workers", 4)
	v.SetDefault("pool.job_timeout_seconds", 0)
	v.SetDefault("search.default_template", "https://thenounproject.com/search/icons/?q=")
	v.SetDefault("search.user_agent", "icon-harvester/0.1")
	v.SetDefault("search.respect_robots", false)
	v.SetDefault("http.timeout_seconds", 0)
	v.SetDefault("http.max_body_mb", 10)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("storage.work_dir", filepath.Join(os.TempDir(), "icon-harvester"))
	v.SetDefault("archive.compression_level", 9)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s", describe(verrs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return errors.New("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// JobTimeout converts the pool job timeout; zero means none.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Pool.JobTimeoutSeconds) * time.Second
}

// HTTPTimeout converts the outbound request timeout; zero means none.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout converts the upload handling timeout; zero means none.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// MaxUploadBytes is the request body cap for uploads.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// describe renders validation failures with their config keys, for example
// "pool.workers must satisfy gte=1".
func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := fe.Namespace()
		if idx := strings.IndexByte(key, '.'); idx >= 0 {
			key = key[idx+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", key, rule))
	}
	return strings.Join(parts, "; ")
}
