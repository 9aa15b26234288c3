package domain

import "time"

// Completion фиксирует прочтение девоционала пользователем.
type Completion struct {
	UserID       string
	DevotionalID string
	CompletedAt  time.Time
}

// ReadingPlanDay описывает один день плана чтения.
type ReadingPlanDay struct {
	DayNumber int    `json:"day_number"`
	Title     string `json:"title"`
	Passage   string `json:"passage"`
}

// ReadingPlan описывает многодневный план чтения.
type ReadingPlan struct {
	ID          string
	Title       string
	Description string
	TotalDays   int
	Days        []ReadingPlanDay
	CreatedAt   time.Time
}

// PlanDayCompletion фиксирует выполненный день плана.
type PlanDayCompletion struct {
	PlanID      string
	DayNumber   int
	CompletedAt time.Time
}

// Answer хранит ответ пользователя на вопрос для размышления.
type Answer struct {
	UserID        string
	DevotionalID  string
	QuestionIndex int
	Text          string
	Share         bool
	SharedAt      *time.Time
	UpdatedAt     time.Time
}

// ShareMeta содержит денормализованные поля автора и контента, сохраняемые при публикации.
type ShareMeta struct {
	AuthorName      string
	AuthorInitials  string
	DevotionalTitle string
	Question        string
}

// SharedAnswer — запись для публикации ответа в ленту общины.
type SharedAnswer struct {
	Answer
	Meta ShareMeta
}

// CommunityEntry — опубликованный ответ участника общины.
type CommunityEntry struct {
	AuthorID        string    `json:"author_id"`
	AuthorName      string    `json:"author_name"`
	AuthorInitials  string    `json:"author_initials"`
	DevotionalID    string    `json:"devotional_id"`
	DevotionalTitle string    `json:"devotional_title"`
	QuestionIndex   int       `json:"question_index"`
	Question        string    `json:"question"`
	Text            string    `json:"text"`
	SharedAt        time.Time `json:"shared_at"`
}

// CommunityGroup объединяет ответы одного автора на один девоционал.
type CommunityGroup struct {
	DevotionalID    string           `json:"devotional_id"`
	DevotionalTitle string           `json:"devotional_title"`
	AuthorID        string           `json:"author_id"`
	AuthorName      string           `json:"author_name"`
	AuthorInitials  string           `json:"author_initials"`
	LatestSharedAt  time.Time        `json:"latest_shared_at"`
	Entries         []CommunityEntry `json:"entries"`
}

// MemberRole описывает роль участника общины.
type MemberRole string

const (
	MemberRoleLeader MemberRole = "leader"
	MemberRoleMember MemberRole = "member"
)

// Church описывает общину.
type Church struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	InviteCode  string    `json:"invite_code"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership — строка church_members.
type Membership struct {
	ChurchID string
	UserID   string
	Role     MemberRole
	JoinedAt time.Time
}

// Member — участник общины для отображения в списке.
type Member struct {
	UserID   string     `json:"user_id"`
	Name     string     `json:"name"`
	Initials string     `json:"initials"`
	Role     MemberRole `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
}

// ProfileRole описывает роль пользователя в приложении.
type ProfileRole string

const (
	ProfileRoleReader ProfileRole = "reader"
	ProfileRoleAuthor ProfileRole = "author"
)

// Preferences — поля онбординга и настройки уведомлений.
type Preferences struct {
	DisplayName   string `json:"display_name"`
	ReadingGoal   string `json:"reading_goal"`
	NotifyEnabled bool   `json:"notify_enabled"`
	NotifyTime    string `json:"notify_time"`
}

// Empty сообщает, что ни одно поле не заполнено.
func (p Preferences) Empty() bool {
	return p.DisplayName == "" && p.ReadingGoal == "" && !p.NotifyEnabled && p.NotifyTime == ""
}

// Profile описывает профиль пользователя.
type Profile struct {
	UserID      string      `json:"user_id"`
	Role        ProfileRole `json:"role"`
	ChurchCode  string      `json:"church_code"`
	Preferences Preferences `json:"preferences"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ChangeOp — тип изменения строки.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"
)

// ChangeEvent — событие изменения строки из realtime-ленты.
type ChangeEvent struct {
	Table string         `json:"table"`
	Op    ChangeOp       `json:"type"`
	Old   map[string]any `json:"old,omitempty"`
	New   map[string]any `json:"new,omitempty"`
}

// Touches сообщает, что старая или новая версия строки содержит непустое значение column.
func (e ChangeEvent) Touches(column string) bool {
	return hasValue(e.Old, column) || hasValue(e.New, column)
}

func hasValue(row map[string]any, column string) bool {
	if row == nil {
		return false
	}
	v, ok := row[column]
	return ok && v != nil
}
