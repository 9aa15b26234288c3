package domain

import (
	"errors"
	"strings"
)

var (
	// ErrNotSignedIn возвращается, если операция требует пользователя.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrChurchNotFound возвращается, если община с кодом не найдена.
	ErrChurchNotFound = errors.New("church not found")

	// ErrAlreadyMember возвращается при попытке вступить во вторую общину.
	ErrAlreadyMember = errors.New("already a member of a church")

	// ErrNoChurch возвращается, если пользователь не состоит в общине.
	ErrNoChurch = errors.New("not a member of any church")

	// ErrInviteCodeTaken сигнализирует о коллизии кода приглашения.
	ErrInviteCodeTaken = errors.New("invite code already taken")

	// ErrInviteCodeExhausted возвращается, если не удалось подобрать уникальный код.
	ErrInviteCodeExhausted = errors.New("could not generate unique invite code")

	// ErrNotLeader возвращается, если действие доступно только лидеру общины.
	ErrNotLeader = errors.New("only a church leader can do this")

	// ErrNotAuthor возвращается, если редактировать девоционалы может только автор.
	ErrNotAuthor = errors.New("only authors can edit devotionals")

	// ErrDevotionalNotFound возвращается, когда девоционал не найден.
	ErrDevotionalNotFound = errors.New("devotional not found")

	// ErrPlanNotFound возвращается, когда плана чтения нет в каталоге.
	ErrPlanNotFound = errors.New("reading plan not found")
)

// ValidationError собирает сообщения валидации формы.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}
