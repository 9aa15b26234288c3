package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
	"devotional-sync/internal/infra/worker"
)

const storeName = "profile"

func localKey(userID string) string {
	return "profile:" + userID
}

// Service синхронизирует онбординг и настройки уведомлений между устройством и сервером.
type Service struct {
	remote domain.ProfileRepo
	local  domain.LocalStore
	bg     worker.Submitter
	log    zerolog.Logger

	mu      sync.Mutex
	userID  string
	gen     uint64
	loading bool
	profile domain.Profile
}

// NewService создаёт сервис профиля.
func NewService(remote domain.ProfileRepo, local domain.LocalStore, bg worker.Submitter, logger zerolog.Logger) *Service {
	return &Service{
		remote: remote,
		local:  local,
		bg:     bg,
		log:    logger.With().Str("component", storeName).Logger(),
	}
}

// Name возвращает имя хранилища для логов и метрик.
func (s *Service) Name() string { return storeName }

// Reset синхронно очищает профиль.
func (s *Service) Reset(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.userID = userID
	s.loading = userID != ""
	s.profile = domain.Profile{UserID: userID}
	metrics.StoreResets.WithLabelValues(storeName).Inc()
}

// Load сверяет локальный снимок с сервером: побеждает сервер, кроме случая,
// когда на сервере пусто, а локально есть данные, тогда они отправляются на сервер.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	gen, userID := s.gen, s.userID
	s.mu.Unlock()
	if userID == "" {
		return nil
	}

	local, err := s.readLocal(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Msg("не удалось прочитать снимок профиля")
	}
	remote, err := s.remote.GetProfile(ctx, userID)
	if err != nil {
		s.mu.Lock()
		if gen == s.gen {
			s.loading = false
			// сервер недоступен: показываем локальный снимок
			s.profile.Preferences = local
		}
		s.mu.Unlock()
		return fmt.Errorf("загрузка профиля: %w", err)
	}
	if remote == nil {
		remote = &domain.Profile{UserID: userID, Role: domain.ProfileRoleReader}
	}

	merged := *remote
	pushUp := remote.Preferences.Empty() && !local.Empty()
	if pushUp {
		merged.Preferences = local
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		metrics.StaleLoadsDiscarded.WithLabelValues(storeName).Inc()
		return nil
	}
	s.loading = false
	s.profile = merged
	s.mu.Unlock()

	if pushUp {
		s.log.Info().Msg("отправка локального снимка профиля на сервер")
		prefs := local
		s.bg.Submit(worker.Task{Op: "profile_push", Key: worker.Key(userID, "profile"), Run: func(ctx context.Context) error {
			return s.remote.UpdatePreferences(ctx, userID, prefs)
		}})
		return nil
	}
	if err := s.writeLocal(ctx, userID, merged.Preferences); err != nil {
		s.log.Warn().Err(err).Msg("снимок профиля не сохранён на устройстве")
	}
	return nil
}

// Loading сообщает, что загрузка профиля не завершена.
func (s *Service) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Profile возвращает текущий профиль.
func (s *Service) Profile() domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Author возвращает поля автора для публикации ответов.
func (s *Service) Author() domain.ShareMeta {
	p := s.Profile()
	return domain.ShareMeta{
		AuthorName:     p.Preferences.DisplayName,
		AuthorInitials: domain.Initials(p.Preferences.DisplayName),
	}
}

// UpdatePreferences сохраняет настройки сначала на устройстве, затем на сервере в фоне.
func (s *Service) UpdatePreferences(ctx context.Context, prefs domain.Preferences) error {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	if userID == "" {
		return domain.ErrNotSignedIn
	}
	if err := s.writeLocal(ctx, userID, prefs); err != nil {
		return fmt.Errorf("сохранение на устройстве: %w", err)
	}

	s.mu.Lock()
	if s.userID == userID {
		s.profile.Preferences = prefs
	}
	s.mu.Unlock()

	s.bg.Submit(worker.Task{Op: "profile_update", Key: worker.Key(userID, "profile"), Run: func(ctx context.Context) error {
		return s.remote.UpdatePreferences(ctx, userID, prefs)
	}})
	return nil
}

func (s *Service) readLocal(ctx context.Context, userID string) (domain.Preferences, error) {
	var prefs domain.Preferences
	raw, ok, err := s.local.Get(ctx, localKey(userID))
	if err != nil || !ok {
		return prefs, err
	}
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return domain.Preferences{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return prefs, nil
}

func (s *Service) writeLocal(ctx context.Context, userID string, prefs domain.Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return s.local.Set(ctx, localKey(userID), raw)
}
