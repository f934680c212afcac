package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	require.Equal(t, TransportWebSocket, cfg.Push.Transport)
	require.Zero(t, cfg.API.MaxRetries, "GET retries are opt-in")
	require.Equal(t, 20, cfg.List.PageSize)
	require.Equal(t, 2*time.Second, cfg.List.ReloadMinInterval)
	require.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoad_WithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orderwatch.yaml")
	content := `
api:
  base_url: http://orders.test/api
  timeout: 3s
  max_retries: 1
push:
  transport: none
  events: [orderChanged, " OrderStatusChanged "]
list:
  page_size: 10
  descending: true
  active_only: "true"
  reload_min_interval: 500ms
enrich:
  prefetch_concurrency: 2
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "http://orders.test/api", cfg.API.BaseURL)
	require.Equal(t, 3*time.Second, cfg.API.Timeout)
	require.Equal(t, 1, cfg.API.MaxRetries)
	require.Equal(t, TransportNone, cfg.Push.Transport)
	require.Equal(t, []string{"orderChanged", "OrderStatusChanged"}, cfg.Push.Events)
	require.Equal(t, 10, cfg.List.PageSize)
	require.True(t, cfg.List.Descending)
	require.Equal(t, 500*time.Millisecond, cfg.List.ReloadMinInterval)
	require.Equal(t, 2, cfg.Enrich.PrefetchConcurrency)
	require.Equal(t, "debug", cfg.LogLevel)

	active, err := cfg.List.activeOnly()
	require.NoError(t, err)
	require.NotNil(t, active)
	require.True(t, *active)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orderwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("list:\n  page_size: 10\n"), 0o600))

	t.Setenv("ORDERWATCH_LIST_PAGE_SIZE", "50")
	t.Setenv("ORDERWATCH_PUSH_TRANSPORT", "Kafka")
	t.Setenv("ORDERWATCH_PUSH_URL", "kafka://broker:9092/orders")
	t.Setenv("ORDERWATCH_PUSH_EVENTS", "orderChanged, OrderStatusChanged")
	t.Setenv("ORDERWATCH_AUTH_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 50, cfg.List.PageSize)
	require.Equal(t, TransportKafka, cfg.Push.Transport)
	require.Equal(t, "kafka://broker:9092/orders", cfg.Push.URL)
	require.Equal(t, []string{"orderChanged", "OrderStatusChanged"}, cfg.Push.Events)
	require.Equal(t, "secret", cfg.Auth.Token)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty base url", func(c *Config) { c.API.BaseURL = " " }, "api.base_url is required"},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }, "api.timeout must be positive"},
		{"unknown transport", func(c *Config) { c.Push.Transport = "sse" }, `unknown push.transport "sse"`},
		{"kafka without url", func(c *Config) { c.Push.Transport = TransportKafka; c.Push.URL = "" }, "push.url is required for kafka transport"},
		{"page size", func(c *Config) { c.List.PageSize = 0 }, "list.page_size must be positive"},
		{"active only", func(c *Config) { c.List.ActiveOnly = "maybe" }, "list.active_only must be any, true or false"},
		{"prefetch", func(c *Config) { c.Enrich.PrefetchConcurrency = 0 }, "enrich.prefetch_concurrency must be positive"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfig_NoneTransportNeedsNoURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Push.Transport = TransportNone
	cfg.Push.URL = ""
	require.NoError(t, cfg.Validate())
}

func TestStringList(t *testing.T) {
	require.Nil(t, stringList(nil))
	require.Nil(t, stringList(" , "))
	require.Equal(t, []string{"a", "b"}, stringList("a, b"))
	require.Equal(t, []string{"a", "1"}, stringList([]any{"a", 1}))
	require.Equal(t, []string{"x"}, stringList([]string{" x ", ""}))
}
