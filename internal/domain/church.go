package domain

import (
	crand "crypto/rand"
	"strings"
	"unicode/utf8"
)

const (
	// InviteAlphabet не содержит легко путаемых символов (I, O, 0, 1).
	InviteAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	InviteCodeLength = 6
)

// GenerateInviteCode создаёт код приглашения из InviteAlphabet.
func GenerateInviteCode() (string, error) {
	buf := make([]byte, InviteCodeLength)
	if _, err := crand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(InviteCodeLength)
	for _, raw := range buf {
		b.WriteByte(InviteAlphabet[int(raw)%len(InviteAlphabet)])
	}
	return b.String(), nil
}

// NormalizeInviteCode приводит ввод пользователя к каноничному виду.
func NormalizeInviteCode(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// Initials строит инициалы: первая буква имени и фамилии либо первые два символа одного слова.
func Initials(name string) string {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "?"
	case 1:
		word := []rune(parts[0])
		if len(word) > 2 {
			word = word[:2]
		}
		return strings.ToUpper(string(word))
	default:
		first, _ := utf8.DecodeRuneInString(parts[0])
		last, _ := utf8.DecodeRuneInString(parts[len(parts)-1])
		return strings.ToUpper(string([]rune{first, last}))
	}
}
