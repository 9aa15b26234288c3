package realtime

import (
	"encoding/json"
	"fmt"

	"devotional-sync/internal/domain"
)

const (
	// Channel — канал NOTIFY, в который пишет триггер notify_row_change.
	Channel = "row_changes"
	// MembersTable — таблица участников общин; тоже публикует изменения.
	MembersTable = "church_members"
)

// decode разбирает полезную нагрузку уведомления.
func decode(payload string) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if ev.Table == "" {
		return domain.ChangeEvent{}, fmt.Errorf("decode change event: table is empty")
	}
	return ev, nil
}
