// Package config loads and validates webcapture configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. WEBCAPTURE_CAPTURE_DRIVER.
const EnvPrefix = "WEBCAPTURE"

// EnvironmentHeadless runs browsers without a visible UI.
const EnvironmentHeadless = "headless"

// Config captures every knob of a capture run.
type Config struct {
	Capture CaptureConfig `mapstructure:"capture"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CaptureConfig governs sessions and the worker pool.
type CaptureConfig struct {
	Driver      string  `mapstructure:"driver"`
	Environment string  `mapstructure:"environment"`
	TimeoutMs   int     `mapstructure:"timeout_ms"`
	Concurrency int     `mapstructure:"concurrency"`
	OutputDir   string  `mapstructure:"output_dir"`
	PerHostQPS  float64 `mapstructure:"per_host_qps"`
}

// StorageConfig configures the optional GCS mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PubSubConfig configures optional capture event announcements.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig points at an optional Prometheus textfile.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	Debug       bool `mapstructure:"debug"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"driver":         "capture.driver",
	"environment":    "capture.environment",
	"timeout-ms":     "capture.timeout_ms",
	"concurrency":    "capture.concurrency",
	"output-dir":     "capture.output_dir",
	"per-host-qps":   "capture.per_host_qps",
	"gcs-bucket":     "storage.gcs_bucket",
	"gcs-prefix":     "storage.gcs_prefix",
	"pubsub-project": "pubsub.project_id",
	"pubsub-topic":   "pubsub.topic",
	"metrics-file":   "metrics.textfile",
	"debug":          "logging.debug",
}

// Load builds a Config from defaults, an optional file, the environment and
// flags, in increasing order of precedence. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

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
	v.SetDefault("capture.driver", "chrome")
	v.SetDefault("capture.environment", "")
	v.SetDefault("capture.timeout_ms", 6500)
	v.SetDefault("capture.concurrency", 16)
	v.SetDefault("capture.output_dir", "tmp")
	v.SetDefault("capture.per_host_qps", 0)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_prefix", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.debug", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Capture.Driver) == "" {
		return fmt.Errorf("capture.driver must be set")
	}
	switch strings.ToLower(c.Capture.Environment) {
	case "", EnvironmentHeadless:
	default:
		return fmt.Errorf("capture.environment must be %q or empty, got %q", EnvironmentHeadless, c.Capture.Environment)
	}
	if c.Capture.TimeoutMs <= 0 {
		return fmt.Errorf("capture.timeout_ms must be > 0")
	}
	if c.Capture.Concurrency < 1 {
		return fmt.Errorf("capture.concurrency must be >= 1")
	}
	if strings.TrimSpace(c.Capture.OutputDir) == "" {
		return fmt.Errorf("capture.output_dir must be set")
	}
	if c.Capture.PerHostQPS < 0 {
		return fmt.Errorf("capture.per_host_qps must be >= 0")
	}
	if c.Storage.GCSPrefix != "" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_prefix requires storage.gcs_bucket")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	return nil
}

// Headless reports whether browsers run without a visible UI.
func (c Config) Headless() bool {
	return strings.EqualFold(c.Capture.Environment, EnvironmentHeadless)
}
