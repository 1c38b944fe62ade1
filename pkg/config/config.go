package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	SinkTypeStream   = "stream"
	SinkTypeLiveView = "liveview"
)

type Config struct {
	Subscription             SubscriptionConfig `mapstructure:"subscription"`
	Sinks                    SinksConfig        `mapstructure:"sinks"`
	EnablePrometheusExporter bool               `mapstructure:"prometheusExporterEnabled"`
	EnableHealthProbes       bool               `mapstructure:"healthProbesEnabled"`
	HealthPort               int                `mapstructure:"healthPort"`
	MetricsPort              int                `mapstructure:"metricsPort"`
	LogLevel                 string             `mapstructure:"logLevel"`
	EnableProfiler           bool               `mapstructure:"profilerEnabled"`
	PyroscopeServer          string             `mapstructure:"pyroscopeServer"`
	ProcfsPath               string             `mapstructure:"procfsPath"`
}

type SubscriptionConfig struct {
	MaxAttempts           int           `mapstructure:"maxAttempts"`
	RetryDelay            time.Duration `mapstructure:"retryDelay"`
	ReconnectOnDisconnect bool          `mapstructure:"reconnectOnDisconnect"`
}

type SinksConfig struct {
	Type              string         `mapstructure:"type"`
	ParentPlaceholder string         `mapstructure:"parentPlaceholder"`
	LiveView          LiveViewConfig `mapstructure:"liveView"`
}

type LiveViewConfig struct {
	RefreshInterval time.Duration `mapstructure:"refreshInterval"`
}

// LoadConfig reads config.json from path, falling back to defaults when the file does
// not exist. Environment variables override both, with dots in keys replaced by
// underscores (SINKS_TYPE, SUBSCRIPTION_MAXATTEMPTS).
func LoadConfig(path string) (Config, error) {
	return loadConfig(afero.NewOsFs(), path)
}

func loadConfig(fs afero.Fs, path string) (Config, error) {
	v := viper.New()
	v.SetFs(fs)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetDefault("subscription.maxAttempts", 1000)
	v.SetDefault("subscription.retryDelay", time.Second)
	v.SetDefault("subscription.reconnectOnDisconnect", false)
	v.SetDefault("sinks.type", SinkTypeStream)
	v.SetDefault("sinks.parentPlaceholder", "0")
	v.SetDefault("sinks.liveView.refreshInterval", 100*time.Millisecond)
	v.SetDefault("prometheusExporterEnabled", false)
	v.SetDefault("healthProbesEnabled", false)
	v.SetDefault("healthPort", 7888)
	v.SetDefault("metricsPort", 8080)
	v.SetDefault("logLevel", "info")
	v.SetDefault("profilerEnabled", false)
	v.SetDefault("pyroscopeServer", "")
	v.SetDefault("procfsPath", "/proc")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, err
	}
	return config, config.Validate()
}

func (c *Config) Validate() error {
	switch c.Sinks.Type {
	case SinkTypeStream, SinkTypeLiveView:
	default:
		return fmt.Errorf("unknown sink type %q", c.Sinks.Type)
	}
	if c.Subscription.MaxAttempts <= 0 {
		return fmt.Errorf("subscription.maxAttempts must be positive, got %d", c.Subscription.MaxAttempts)
	}
	if c.Subscription.RetryDelay <= 0 {
		return fmt.Errorf("subscription.retryDelay must be positive, got %s", c.Subscription.RetryDelay)
	}
	if c.Sinks.LiveView.RefreshInterval <= 0 {
		return fmt.Errorf("sinks.liveView.refreshInterval must be positive, got %s", c.Sinks.LiveView.RefreshInterval)
	}
	return nil
}
