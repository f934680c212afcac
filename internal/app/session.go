package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/orderwatch/internal/auth"
)

type sessionSource interface {
	Changed() <-chan struct{}
	ExpiresAt() time.Time
}

type sessionAware interface {
	SessionChanged() error
}

// watchSession передаёт экрану смену сессии: сигналы Changed и истечение
// токена. Таймер перевзводится после каждой смены токена.
func watchSession(ctx context.Context, session sessionSource, screen sessionAware, logger *log.Entry) {
	var (
		timer  *time.Timer
		expiry <-chan time.Time
	)
	arm := func() {
		if timer != nil {
			timer.Stop()
		}
		expiry = nil
		if expiresAt := session.ExpiresAt(); !expiresAt.IsZero() {
			timer = time.NewTimer(time.Until(expiresAt))
			expiry = timer.C
		}
	}
	arm()
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Changed():
			arm()
			logger.Debug("session changed")
		case <-expiry:
			expiry = nil
			logger.Warn("auth token expired")
		}
		if err := screen.SessionChanged(); err != nil {
			logger.WithError(err).Warn("failed to apply session change")
		}
	}
}

// watchAuthFile перечитывает секцию auth файла конфигурации при его
// изменении. Переменные окружения по-прежнему имеют приоритет.
func watchAuthFile(ctx context.Context, path string, onChange func(AuthConfig)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Обработчик вызывается из одной горутины viper, после перечитывания файла.
	v.OnConfigChange(func(event fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		log.WithFields(log.Fields{"file": event.Name, "op": event.Op.String()}).Debug("config file changed")
		onChange(AuthConfig{
			Token:   v.GetString("auth.token"),
			Loading: v.GetBool("auth.loading"),
		})
	})
	v.WatchConfig()
	return nil
}

// applyAuth переносит перечитанные настройки в сессию. Неразборчивый токен
// не заменяет текущий.
func applyAuth(session *auth.TokenSession, cfg AuthConfig, logger *log.Entry) {
	if err := session.Update(cfg.Token); err != nil {
		logger.WithError(err).Warn("reloaded auth token rejected")
	}
	session.SetLoading(cfg.Loading)
}
