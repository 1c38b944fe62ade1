package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, fs afero.Fs, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, "/etc/config/config.json", []byte(content), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(afero.NewMemMapFs(), "/etc/config")
	require.NoError(t, err)

	want := Config{
		Subscription: SubscriptionConfig{
			MaxAttempts: 1000,
			RetryDelay:  time.Second,
		},
		Sinks: SinksConfig{
			Type:              SinkTypeStream,
			ParentPlaceholder: "0",
			LiveView:          LiveViewConfig{RefreshInterval: 100 * time.Millisecond},
		},
		HealthPort:  7888,
		MetricsPort: 8080,
		LogLevel:    "info",
		ProcfsPath:  "/proc",
	}
	assert.Equal(t, want, cfg)
}

func TestLoadConfig_File(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, `{
		"subscription": {"maxAttempts": 5, "retryDelay": "250ms", "reconnectOnDisconnect": true},
		"sinks": {"type": "liveview", "parentPlaceholder": "-", "liveView": {"refreshInterval": "1s"}},
		"prometheusExporterEnabled": true,
		"healthProbesEnabled": true,
		"metricsPort": 9090,
		"logLevel": "debug"
	}`)

	cfg, err := loadConfig(fs, "/etc/config")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Subscription.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Subscription.RetryDelay)
	assert.True(t, cfg.Subscription.ReconnectOnDisconnect)
	assert.Equal(t, SinkTypeLiveView, cfg.Sinks.Type)
	assert.Equal(t, "-", cfg.Sinks.ParentPlaceholder)
	assert.Equal(t, time.Second, cfg.Sinks.LiveView.RefreshInterval)
	assert.True(t, cfg.EnablePrometheusExporter)
	assert.True(t, cfg.EnableHealthProbes)
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.Equal(t, 7888, cfg.HealthPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, `{"sinks": {"type": "stream"}}`)
	t.Setenv("SINKS_TYPE", "liveview")
	t.Setenv("SUBSCRIPTION_MAXATTEMPTS", "3")

	cfg, err := loadConfig(fs, "/etc/config")
	require.NoError(t, err)
	assert.Equal(t, SinkTypeLiveView, cfg.Sinks.Type)
	assert.Equal(t, 3, cfg.Subscription.MaxAttempts)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed json", content: `{"sinks": `},
		{name: "unknown sink", content: `{"sinks": {"type": "gui"}}`},
		{name: "zero attempts", content: `{"subscription": {"maxAttempts": 0}}`},
		{name: "negative delay", content: `{"subscription": {"retryDelay": "-1s"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeConfig(t, fs, tt.content)
			_, err := loadConfig(fs, "/etc/config")
			assert.Error(t, err)
		})
	}
}
