package worker

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"devotional-sync/internal/infra/metrics"
)

// Task — фоновая запись в удалённое хранилище.
type Task struct {
	// Op используется как метка в логах и метриках.
	Op string
	// Key определяет строку удалённого хранилища. Задачи с одним ключом
	// выполняются одним воркером в порядке отправки.
	Key string
	Run func(ctx context.Context) error
}

// Key собирает ключ задачи из частей, например пользователь и строка.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Submitter принимает фоновые задачи без ожидания результата.
type Submitter interface {
	Submit(t Task)
}

// Pool выполняет фоновые задачи ограниченным числом горутин.
// У каждого воркера своя очередь; задача попадает в очередь по хэшу ключа.
type Pool struct {
	queues  []chan Task
	next    atomic.Uint64
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closing bool
	timeout time.Duration
	log     zerolog.Logger
}

// NewPool запускает size воркеров с общей ёмкостью очередей queueSize.
func NewPool(size, queueSize int, logger zerolog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	perWorker := max(queueSize/size, 1)
	p := &Pool{
		queues:  make([]chan Task, size),
		timeout: 10 * time.Second,
		log:     logger.With().Str("component", "worker").Logger(),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Task, perWorker)
		p.wg.Add(1)
		go p.run(p.queues[i])
	}
	return p
}

func (p *Pool) run(tasks <-chan Task) {
	defer p.wg.Done()
	for t := range tasks {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := t.Run(ctx); err != nil {
			metrics.BackgroundWriteErrors.WithLabelValues(t.Op).Inc()
			p.log.Error().Err(err).Str("op", t.Op).Str("key", t.Key).Msg("фоновая запись не удалась")
		}
		cancel()
	}
}

func (p *Pool) queue(key string) chan Task {
	if key == "" {
		return p.queues[p.next.Add(1)%uint64(len(p.queues))]
	}
	return p.queues[xxhash.Sum64String(key)%uint64(len(p.queues))]
}

// Submit ставит задачу в очередь; при переполнении или остановке задача отбрасывается.
func (p *Pool) Submit(t Task) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closing {
		p.log.Warn().Str("op", t.Op).Msg("задача получена во время остановки, отброшена")
		metrics.BackgroundTasksDropped.Inc()
		return
	}
	select {
	case p.queue(t.Key) <- t:
	default:
		p.log.Warn().Str("op", t.Op).Msg("очередь задач переполнена, задача отброшена")
		metrics.BackgroundTasksDropped.Inc()
	}
}

// Shutdown перестаёт принимать задачи и дожидается выполнения очередей.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return
	}
	p.closing = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Inline выполняет задачу синхронно в вызывающей горутине.
type Inline struct {
	Log zerolog.Logger
}

// Submit выполняет задачу сразу.
func (i Inline) Submit(t Task) {
	if err := t.Run(context.Background()); err != nil {
		metrics.BackgroundWriteErrors.WithLabelValues(t.Op).Inc()
		i.Log.Error().Err(err).Str("op", t.Op).Msg("фоновая запись не удалась")
	}
}
