package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/usecase/completions"
	"devotional-sync/internal/usecase/reflections"
)

// Store — хранилище, привязанное к текущему пользователю.
type Store interface {
	Name() string
	// Reset синхронно очищает кэш; вызывается до публикации нового пользователя.
	Reset(userID string)
	Load(ctx context.Context) error
}

// Gate владеет текущим пользователем и переключает все хранилища при его смене.
type Gate struct {
	log         zerolog.Logger
	completions *completions.Store
	reflections *reflections.Store
	stores      []Store

	mu       sync.Mutex
	identity string
	loading  bool
	gen      uint64
	done     chan struct{}
	cancel   context.CancelFunc
	lastErr  error
}

// NewGate создаёт шлюз без пользователя. extra — дополнительные хранилища (община, профиль).
func NewGate(logger zerolog.Logger, c *completions.Store, r *reflections.Store, extra ...Store) *Gate {
	stores := append([]Store{c, r}, extra...)
	done := make(chan struct{})
	close(done)
	return &Gate{
		log:         logger.With().Str("component", "session").Logger(),
		completions: c,
		reflections: r,
		stores:      stores,
		done:        done,
	}
}

// Identity возвращает текущего пользователя или пустую строку.
func (g *Gate) Identity() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.identity
}

// Loading сообщает, что загрузка хранилищ для текущего пользователя не завершена.
func (g *Gate) Loading() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loading
}

// LastError возвращает ошибку последней завершённой загрузки.
func (g *Gate) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// SetIdentity переключает пользователя. Все хранилища сбрасываются в этом же вызове,
// до того как новый пользователь станет виден; загрузка запускается после.
// Повторный вызов с тем же пользователем ничего не делает.
func (g *Gate) SetIdentity(userID string) {
	g.mu.Lock()
	if userID == g.identity {
		g.mu.Unlock()
		return
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.gen++
	for _, s := range g.stores {
		s.Reset(userID)
	}
	g.identity = userID
	g.loading = userID != ""
	g.lastErr = nil
	done := make(chan struct{})
	g.done = done
	gen := g.gen
	if userID == "" {
		close(done)
		g.mu.Unlock()
		g.log.Info().Msg("выход из аккаунта")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.mu.Unlock()

	g.log.Info().Str("user_id", userID).Msg("пользователь сменился")
	go g.load(ctx, gen, done)
}

func (g *Gate) load(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	start := time.Now()

	var eg errgroup.Group
	for _, s := range g.stores {
		s := s
		eg.Go(func() error {
			if err := s.Load(ctx); err != nil {
				g.log.Error().Err(err).Str("store", s.Name()).Msg("не удалось загрузить хранилище")
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	err := eg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		return
	}
	g.loading = false
	g.lastErr = err
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.log.Debug().Dur("took", time.Since(start)).Msg("хранилища загружены")
}

// Wait блокируется до окончания загрузки для текущего пользователя.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()
	select {
	case <-done:
		return g.LastError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CompleteDevotional переключает отметку о прочтении. При отметке публикует
// разрешённые ответы на вопросы девоционала; при снятии отметки ничего не публикует.
func (g *Gate) CompleteDevotional(d domain.Devotional, author domain.ShareMeta) (complete bool, shared int) {
	complete = g.completions.ToggleComplete(d.ID)
	if !complete {
		return false, 0
	}
	meta := author
	meta.DevotionalTitle = d.Title
	shared = g.reflections.ShareToggledAnswers(d.ID, meta, d.Questions)
	return true, shared
}

// Close отменяет незавершённые загрузки и подписки.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.mu.Unlock()
	g.reflections.Close()
}
