package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Транспорты push-канала.
const (
	TransportWebSocket = "websocket"
	TransportKafka     = "kafka"
	TransportNone      = "none"
)

const envPrefix = "ORDERWATCH"

// Config описывает настройки запуска orderwatch.
type Config struct {
	API         APIConfig
	Auth        AuthConfig
	Push        PushConfig
	List        ListConfig
	Enrich      EnrichConfig
	MetricsAddr string
	LogLevel    string
	// File — прочитанный файл конфигурации; пусто, если файла не было.
	File string
}

// APIConfig описывает REST-бэкенд заказов.
type APIConfig struct {
	BaseURL    string
	Timeout    time.Duration
	// MaxRetries включает автоматические повторы GET; по умолчанию 0:
	// ошибка показывается, повтор остаётся за пользователем.
	MaxRetries int
}

// AuthConfig содержит токен сессии.
type AuthConfig struct {
	Token   string
	Loading bool
}

// PushConfig описывает канал live-обновлений.
type PushConfig struct {
	Transport            string
	URL                  string
	Events               []string
	MaxReconnectAttempts int
}

// ListConfig содержит параметры списка.
type ListConfig struct {
	PageSize   int
	Descending bool
	// ActiveOnly: any, true или false.
	ActiveOnly        string
	ReloadMinInterval time.Duration
}

// EnrichConfig настраивает фоновое обогащение.
type EnrichConfig struct {
	PrefetchConcurrency int
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 15 * time.Second,
		},
		Push: PushConfig{
			Transport:            TransportWebSocket,
			URL:                  "ws://localhost:5000/hubs/orders",
			MaxReconnectAttempts: 5,
		},
		List: ListConfig{
			PageSize:          20,
			ActiveOnly:        "any",
			ReloadMinInterval: 2 * time.Second,
		},
		Enrich: EnrichConfig{
			PrefetchConcurrency: 4,
		},
		MetricsAddr: ":9090",
		LogLevel:    "info",
	}
}

// Load читает конфигурацию: значения по умолчанию, затем файл (если есть),
// затем переменные окружения ORDERWATCH_*. Пустой path ищет
// orderwatch.yaml в текущем каталоге и ./config.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("orderwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		API: APIConfig{
			BaseURL:    v.GetString("api.base_url"),
			Timeout:    v.GetDuration("api.timeout"),
			MaxRetries: v.GetInt("api.max_retries"),
		},
		Auth: AuthConfig{
			Token:   v.GetString("auth.token"),
			Loading: v.GetBool("auth.loading"),
		},
		Push: PushConfig{
			Transport:            strings.ToLower(strings.TrimSpace(v.GetString("push.transport"))),
			URL:                  v.GetString("push.url"),
			Events:               stringList(v.Get("push.events")),
			MaxReconnectAttempts: v.GetInt("push.max_reconnect_attempts"),
		},
		List: ListConfig{
			PageSize:          v.GetInt("list.page_size"),
			Descending:        v.GetBool("list.descending"),
			ActiveOnly:        strings.ToLower(strings.TrimSpace(v.GetString("list.active_only"))),
			ReloadMinInterval: v.GetDuration("list.reload_min_interval"),
		},
		Enrich: EnrichConfig{
			PrefetchConcurrency: v.GetInt("enrich.prefetch_concurrency"),
		},
		MetricsAddr: v.GetString("metrics.addr"),
		LogLevel:    v.GetString("log.level"),
		File:        v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("api.max_retries", cfg.API.MaxRetries)
	v.SetDefault("auth.token", cfg.Auth.Token)
	v.SetDefault("auth.loading", cfg.Auth.Loading)
	v.SetDefault("push.transport", cfg.Push.Transport)
	v.SetDefault("push.url", cfg.Push.URL)
	v.SetDefault("push.events", cfg.Push.Events)
	v.SetDefault("push.max_reconnect_attempts", cfg.Push.MaxReconnectAttempts)
	v.SetDefault("list.page_size", cfg.List.PageSize)
	v.SetDefault("list.descending", cfg.List.Descending)
	v.SetDefault("list.active_only", cfg.List.ActiveOnly)
	v.SetDefault("list.reload_min_interval", cfg.List.ReloadMinInterval)
	v.SetDefault("enrich.prefetch_concurrency", cfg.Enrich.PrefetchConcurrency)
	v.SetDefault("metrics.addr", cfg.MetricsAddr)
	v.SetDefault("log.level", cfg.LogLevel)
}

// stringList принимает список из YAML или строку через запятую из окружения.
func stringList(raw any) []string {
	var items []string
	switch value := raw.(type) {
	case nil:
		return nil
	case string:
		items = strings.Split(value, ",")
	case []string:
		items = value
	case []any:
		for _, item := range value {
			items = append(items, fmt.Sprint(item))
		}
	default:
		items = []string{fmt.Sprint(value)}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}
	if c.API.MaxRetries < 0 {
		errs = append(errs, errors.New("api.max_retries must not be negative"))
	}
	switch c.Push.Transport {
	case TransportWebSocket, TransportKafka:
		if strings.TrimSpace(c.Push.URL) == "" {
			errs = append(errs, fmt.Errorf("push.url is required for %s transport", c.Push.Transport))
		}
	case TransportNone:
	default:
		errs = append(errs, fmt.Errorf("unknown push.transport %q", c.Push.Transport))
	}
	if c.Push.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("push.max_reconnect_attempts must not be negative"))
	}
	if c.List.PageSize <= 0 {
		errs = append(errs, errors.New("list.page_size must be positive"))
	}
	if _, err := c.List.activeOnly(); err != nil {
		errs = append(errs, err)
	}
	if c.Enrich.PrefetchConcurrency <= 0 {
		errs = append(errs, errors.New("enrich.prefetch_concurrency must be positive"))
	}
	return errors.Join(errs...)
}

func (l ListConfig) activeOnly() (*bool, error) {
	switch l.ActiveOnly {
	case "", "any", "all":
		return nil, nil
	case "true", "active":
		v := true
		return &v, nil
	case "false", "inactive":
		v := false
		return &v, nil
	}
	return nil, fmt.Errorf("list.active_only must be any, true or false, got %q", l.ActiveOnly)
}
