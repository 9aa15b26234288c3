package church

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/metrics"
	"devotional-sync/internal/infra/worker"
)

const (
	storeName = "church"
	// CodeAttempts — число попыток подобрать уникальный код приглашения.
	CodeAttempts = 3
)

// Store хранит общину текущего пользователя и её участников.
type Store struct {
	churches domain.ChurchRepo
	profiles domain.ProfileRepo
	bg       worker.Submitter
	log      zerolog.Logger
	now      func() time.Time
	newCode  func() (string, error)

	mu          sync.Mutex
	userID      string
	gen         uint64
	loading     bool
	church      *domain.Church
	role        domain.MemberRole
	members     []domain.Member
	profileCode string
}

// NewStore создаёт хранилище без пользователя.
func NewStore(churches domain.ChurchRepo, profiles domain.ProfileRepo, bg worker.Submitter, logger zerolog.Logger) *Store {
	return &Store{
		churches: churches,
		profiles: profiles,
		bg:       bg,
		log:      logger.With().Str("component", storeName).Logger(),
		now:      time.Now,
		newCode:  domain.GenerateInviteCode,
	}
}

// Name возвращает имя хранилища для логов и метрик.
func (s *Store) Name() string { return storeName }

// Reset синхронно очищает кэш и переводит хранилище в загрузку для userID.
func (s *Store) Reset(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.userID = userID
	s.loading = userID != ""
	s.clearLocked()
	s.profileCode = ""
	metrics.StoreResets.WithLabelValues(storeName).Inc()
}

func (s *Store) clearLocked() {
	s.church = nil
	s.role = ""
	s.members = nil
}

// Load загружает членство, общину, участников и кэш кода из профиля.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	gen, userID := s.gen, s.userID
	s.mu.Unlock()
	if userID == "" {
		return nil
	}

	start := time.Now()
	church, role, members, profileCode, err := s.fetch(ctx, userID)
	metrics.ObserveStoreLoad(storeName, start, err)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		metrics.StaleLoadsDiscarded.WithLabelValues(storeName).Inc()
		return nil
	}
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("загрузка общины: %w", err)
	}
	s.church = church
	s.role = role
	s.members = members
	s.profileCode = profileCode
	s.mu.Unlock()

	s.Reconcile()
	return nil
}

func (s *Store) fetch(ctx context.Context, userID string) (*domain.Church, domain.MemberRole, []domain.Member, string, error) {
	var profileCode string
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, "", nil, "", err
	}
	if profile != nil {
		profileCode = profile.ChurchCode
	}

	membership, err := s.churches.GetMembershipByUser(ctx, userID)
	if err != nil {
		return nil, "", nil, "", err
	}
	if membership == nil {
		return nil, "", nil, profileCode, nil
	}
	church, err := s.churches.GetChurch(ctx, membership.ChurchID)
	if err != nil {
		return nil, "", nil, "", err
	}
	if church == nil {
		return nil, "", nil, profileCode, nil
	}
	members, err := s.roster(ctx, church.ID)
	if err != nil {
		return nil, "", nil, "", err
	}
	return church, membership.Role, members, profileCode, nil
}

// roster собирает участников в два запроса: членство, затем имена.
func (s *Store) roster(ctx context.Context, churchID string) ([]domain.Member, error) {
	rows, err := s.churches.ListMembers(ctx, churchID)
	if err != nil {
		return nil, fmt.Errorf("список участников: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.UserID)
	}
	names, err := s.churches.ListDisplayNames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("имена участников: %w", err)
	}
	members := make([]domain.Member, 0, len(rows))
	for _, m := range rows {
		name := strings.TrimSpace(names[m.UserID])
		members = append(members, domain.Member{
			UserID:   m.UserID,
			Name:     name,
			Initials: domain.Initials(name),
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Role != members[j].Role {
			return members[i].Role == domain.MemberRoleLeader
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

// Loading сообщает, что первая загрузка для пользователя ещё не завершилась.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Church возвращает копию общины пользователя или nil.
func (s *Store) Church() *domain.Church {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.church == nil {
		return nil
	}
	c := *s.church
	return &c
}

// HasChurch сообщает, состоит ли пользователь в общине.
func (s *Store) HasChurch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.church != nil
}

// Role возвращает роль пользователя в общине.
func (s *Store) Role() domain.MemberRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// IsLeader сообщает, что пользователь лидер общины.
func (s *Store) IsLeader() bool {
	return s.Role() == domain.MemberRoleLeader
}

// Members возвращает копию списка участников.
func (s *Store) Members() []domain.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Member(nil), s.members...)
}

// ProfileCode возвращает код общины, закэшированный в профиле.
func (s *Store) ProfileCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileCode
}

// CreateChurch создаёт общину и добавляет создателя лидером.
func (s *Store) CreateChurch(ctx context.Context, name, description string) (domain.Church, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return domain.Church{}, &domain.ValidationError{Messages: []string{"Church name is required"}}
	}
	gen, userID, err := s.precondition(false)
	if err != nil {
		return domain.Church{}, err
	}

	var created domain.Church
	inserted := false
	for attempt := 0; attempt < CodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return domain.Church{}, fmt.Errorf("генерация кода: %w", err)
		}
		created, err = s.churches.InsertChurch(ctx, domain.Church{
			ID:          uuid.NewString(),
			Name:        name,
			Description: description,
			InviteCode:  code,
			CreatedBy:   userID,
			CreatedAt:   s.now().UTC(),
		})
		if errors.Is(err, domain.ErrInviteCodeTaken) {
			s.log.Debug().Int("attempt", attempt+1).Msg("коллизия кода приглашения")
			continue
		}
		if err != nil {
			return domain.Church{}, fmt.Errorf("создание общины: %w", err)
		}
		inserted = true
		break
	}
	if !inserted {
		return domain.Church{}, domain.ErrInviteCodeExhausted
	}

	if _, err := s.churches.InsertMember(ctx, domain.Membership{
		ChurchID: created.ID,
		UserID:   userID,
		Role:     domain.MemberRoleLeader,
		JoinedAt: s.now().UTC(),
	}); err != nil {
		s.log.Error().Err(err).Str("church_id", created.ID).Msg("община создана без участия лидера")
		return domain.Church{}, fmt.Errorf("добавление лидера: %w", err)
	}

	s.enter(ctx, gen, userID, created, domain.MemberRoleLeader)
	return created, nil
}

// JoinChurch вступает в общину по коду приглашения.
func (s *Store) JoinChurch(ctx context.Context, inviteCode string) (domain.Church, error) {
	code := domain.NormalizeInviteCode(inviteCode)
	gen, userID, err := s.precondition(false)
	if err != nil {
		return domain.Church{}, err
	}
	if code == "" {
		return domain.Church{}, domain.ErrChurchNotFound
	}

	church, err := s.churches.FindChurchByInviteCode(ctx, code)
	if err != nil {
		return domain.Church{}, fmt.Errorf("поиск общины: %w", err)
	}
	if church == nil {
		return domain.Church{}, domain.ErrChurchNotFound
	}
	if _, err := s.churches.InsertMember(ctx, domain.Membership{
		ChurchID: church.ID,
		UserID:   userID,
		Role:     domain.MemberRoleMember,
		JoinedAt: s.now().UTC(),
	}); err != nil {
		return domain.Church{}, fmt.Errorf("вступление в общину: %w", err)
	}

	s.enter(ctx, gen, userID, *church, domain.MemberRoleMember)
	return *church, nil
}

// LeaveChurch удаляет членство пользователя и очищает код в профиле.
func (s *Store) LeaveChurch(ctx context.Context) error {
	gen, userID, err := s.precondition(true)
	if err != nil {
		return err
	}
	churchID := s.churchID()
	if err := s.churches.DeleteMember(ctx, churchID, userID); err != nil {
		return fmt.Errorf("выход из общины: %w", err)
	}

	s.mu.Lock()
	if gen == s.gen {
		s.clearLocked()
		s.profileCode = ""
	}
	s.mu.Unlock()
	s.submitCode(userID, "")
	return nil
}

// RemoveMember исключает участника и очищает код в его профиле.
// Право лидера проверяет вызывающая сторона.
func (s *Store) RemoveMember(ctx context.Context, memberID string) error {
	gen, userID, err := s.precondition(true)
	if err != nil {
		return err
	}
	if memberID == userID {
		return s.LeaveChurch(ctx)
	}
	churchID := s.churchID()
	if err := s.churches.DeleteMember(ctx, churchID, memberID); err != nil {
		return fmt.Errorf("исключение участника: %w", err)
	}

	s.mu.Lock()
	if gen == s.gen {
		kept := s.members[:0]
		for _, m := range s.members {
			if m.UserID != memberID {
				kept = append(kept, m)
			}
		}
		s.members = kept
	}
	s.mu.Unlock()
	s.submitCode(memberID, "")
	return nil
}

// UpdateChurch меняет название и описание общины.
func (s *Store) UpdateChurch(ctx context.Context, name, description string) error {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return &domain.ValidationError{Messages: []string{"Church name is required"}}
	}
	gen, _, err := s.precondition(true)
	if err != nil {
		return err
	}
	churchID := s.churchID()
	if err := s.churches.UpdateChurch(ctx, churchID, name, description); err != nil {
		return fmt.Errorf("обновление общины: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen && s.church != nil {
		s.church.Name = name
		s.church.Description = description
	}
	return nil
}

// RefreshMembers перечитывает список участников.
func (s *Store) RefreshMembers(ctx context.Context) error {
	gen, _, err := s.precondition(true)
	if err != nil {
		return err
	}
	members, err := s.roster(ctx, s.churchID())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen {
		s.members = members
	}
	return nil
}

// Reconcile перезаписывает код в профиле, если он разошёлся с кодом общины.
func (s *Store) Reconcile() bool {
	s.mu.Lock()
	if s.church == nil || s.userID == "" || s.profileCode == s.church.InviteCode {
		s.mu.Unlock()
		return false
	}
	userID, code, stale := s.userID, s.church.InviteCode, s.profileCode
	s.profileCode = code
	s.mu.Unlock()

	s.log.Info().Str("cached", stale).Str("actual", code).Msg("код общины в профиле исправлен")
	s.submitCode(userID, code)
	return true
}

// precondition проверяет наличие пользователя и нужное состояние членства.
func (s *Store) precondition(needChurch bool) (uint64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return 0, "", domain.ErrNotSignedIn
	}
	if needChurch && s.church == nil {
		return 0, "", domain.ErrNoChurch
	}
	if !needChurch && s.church != nil {
		return 0, "", domain.ErrAlreadyMember
	}
	return s.gen, s.userID, nil
}

func (s *Store) churchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.church == nil {
		return ""
	}
	return s.church.ID
}

// enter применяет вступление в общину локально и подтягивает участников.
func (s *Store) enter(ctx context.Context, gen uint64, userID string, church domain.Church, role domain.MemberRole) {
	members, err := s.roster(ctx, church.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("church_id", church.ID).Msg("не удалось загрузить список участников")
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	c := church
	s.church = &c
	s.role = role
	s.members = members
	s.profileCode = church.InviteCode
	s.mu.Unlock()

	s.submitCode(userID, church.InviteCode)
}

func (s *Store) submitCode(userID, code string) {
	s.bg.Submit(worker.Task{Op: "profile_church_code", Key: worker.Key(userID, "profile"), Run: func(ctx context.Context) error {
		return s.profiles.SetChurchCode(ctx, userID, code)
	}})
}
