package netwatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"devotional-sync/internal/infra/metrics"
)

// Pinger проверяет доступность удалённого хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Observer периодически пингует хранилище и хранит признак «в сети».
type Observer struct {
	pinger   Pinger
	interval time.Duration
	log      zerolog.Logger

	mu       sync.RWMutex
	online   bool
	checked  bool
	onChange []func(bool)
}

// NewObserver создаёт наблюдателя. До первой проверки считается, что сеть есть.
func NewObserver(pinger Pinger, interval time.Duration, logger zerolog.Logger) *Observer {
	return &Observer{
		pinger:   pinger,
		interval: interval,
		log:      logger.With().Str("component", "netwatch").Logger(),
		online:   true,
	}
}

// OnChange регистрирует обработчик смены состояния. Вызывается вне блокировки.
func (o *Observer) OnChange(fn func(online bool)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onChange = append(o.onChange, fn)
}

// Online сообщает последнее известное состояние.
func (o *Observer) Online() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.online
}

// Check выполняет одну проверку и возвращает новое состояние.
func (o *Observer) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, o.interval)
	defer cancel()
	err := o.pinger.Ping(ctx)
	online := err == nil

	o.mu.Lock()
	changed := !o.checked || online != o.online
	o.checked = true
	o.online = online
	handlers := append([]func(bool){}, o.onChange...)
	o.mu.Unlock()

	metrics.SetOnline(online)
	if !changed {
		return online
	}
	if online {
		o.log.Info().Msg("удалённое хранилище доступно")
	} else {
		o.log.Warn().Err(err).Msg("удалённое хранилище недоступно")
	}
	for _, fn := range handlers {
		fn(online)
	}
	return online
}

// Run проверяет сеть на каждом тике до отмены ctx.
func (o *Observer) Run(ctx context.Context) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		o.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
