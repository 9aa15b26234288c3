package domain

import (
	"context"
	"time"
)

// CompletionRepo хранит отметки о прочтении.
type CompletionRepo interface {
	ListCompletions(ctx context.Context, userID string) ([]Completion, error)
	InsertCompletion(ctx context.Context, c Completion) error
	DeleteCompletion(ctx context.Context, userID, devotionalID string) error
}

// PlanRepo управляет планами чтения и прогрессом по ним.
type PlanRepo interface {
	ListPlans(ctx context.Context) ([]ReadingPlan, error)
	ListFollowedPlanIDs(ctx context.Context, userID string) ([]string, error)
	FollowPlan(ctx context.Context, userID, planID string) error
	UnfollowPlan(ctx context.Context, userID, planID string) error
	ListPlanCompletions(ctx context.Context, userID string) ([]PlanDayCompletion, error)
	InsertPlanCompletion(ctx context.Context, userID string, c PlanDayCompletion) error
	DeletePlanCompletion(ctx context.Context, userID, planID string, day int) error
}

// AnswerRepo хранит ответы и их публикацию.
type AnswerRepo interface {
	ListAnswers(ctx context.Context, userID string) ([]Answer, error)
	// UpsertAnswer сохраняет текст и флаг, не трогая shared_at.
	UpsertAnswer(ctx context.Context, a Answer) error
	ShareAnswer(ctx context.Context, a SharedAnswer) error
	// ListCommunity возвращает опубликованные ответы в общине пользователя.
	ListCommunity(ctx context.Context, userID string) ([]CommunityEntry, error)
}

// ChurchRepo управляет общинами и участниками.
type ChurchRepo interface {
	GetMembershipByUser(ctx context.Context, userID string) (*Membership, error)
	GetChurch(ctx context.Context, churchID string) (*Church, error)
	FindChurchByInviteCode(ctx context.Context, code string) (*Church, error)
	InsertChurch(ctx context.Context, church Church) (Church, error)
	UpdateChurch(ctx context.Context, churchID, name, description string) error
	InsertMember(ctx context.Context, m Membership) (Membership, error)
	DeleteMember(ctx context.Context, churchID, userID string) error
	ListMembers(ctx context.Context, churchID string) ([]Membership, error)
	ListDisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// ProfileRepo хранит профиль и кэш кода общины.
type ProfileRepo interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpdatePreferences(ctx context.Context, userID string, prefs Preferences) error
	SetChurchCode(ctx context.Context, userID, code string) error
}

// DevotionalRepo хранит девоционалы.
type DevotionalRepo interface {
	ListPublished(ctx context.Context, today string, limit int) ([]Devotional, error)
	GetDevotional(ctx context.Context, id string) (*Devotional, error)
	InsertDevotional(ctx context.Context, d Devotional) (Devotional, error)
	UpdateDevotional(ctx context.Context, d Devotional) error
	PublishDue(ctx context.Context, now time.Time) (int64, error)
}

// ChangeFeed доставляет изменения строк таблицы.
type ChangeFeed interface {
	// Subscribe открывает подписку; канал закрывается после отмены ctx.
	Subscribe(ctx context.Context, table string) (<-chan ChangeEvent, error)
}

// LocalStore — локальное key-value хранилище устройства.
type LocalStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
