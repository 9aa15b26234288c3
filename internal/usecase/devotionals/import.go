package devotionals

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"devotional-sync/internal/domain"
)

// RowError — ошибки одной строки импорта. Row считается с 1 без учёта заголовка.
type RowError struct {
	Row      int      `json:"row"`
	Messages []string `json:"messages"`
}

// ImportReport — результат проверки CSV перед импортом.
type ImportReport struct {
	Valid  []Input    `json:"valid"`
	Errors []RowError `json:"errors"`
}

// ValidCount — число строк, готовых к импорту.
func (r ImportReport) ValidCount() int { return len(r.Valid) }

// ErrorCount — число строк с ошибками.
func (r ImportReport) ErrorCount() int { return len(r.Errors) }

var errNoHeader = errors.New("csv: header row is missing")

// ValidateImport разбирает CSV с заголовком и проверяет каждую строку как форму.
// Вопросы берутся из колонок question_1..question_5 либо из колонки questions через «|».
func (s *Service) ValidateImport(r io.Reader) (ImportReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return ImportReport{}, errNoHeader
	}
	if err != nil {
		return ImportReport{}, fmt.Errorf("чтение заголовка: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	now := s.now()
	var report ImportReport
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("строка %d: %w", row, err)
		}
		get := func(name string) string {
			if i, ok := cols[name]; ok && i < len(record) {
				return record[i]
			}
			return ""
		}

		in := Input{
			Title:              get("title"),
			ScriptureReference: get("scripture_reference"),
			ScriptureText:      get("scripture_text"),
			Body:               get("body"),
			Prayer:             get("prayer"),
			Date:               get("date"),
			Status:             domain.DevotionalStatus(strings.ToLower(strings.TrimSpace(get("status")))),
			AuthorName:         get("author_name"),
		}
		if joined := get("questions"); joined != "" {
			in.Questions = strings.Split(joined, "|")
		}
		for i := 1; i <= domain.MaxQuestions+1; i++ {
			if q := get(fmt.Sprintf("question_%d", i)); q != "" {
				in.Questions = append(in.Questions, q)
			}
		}

		var msgs []string
		if raw := strings.TrimSpace(get("scheduled_at")); raw != "" {
			at, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				msgs = append(msgs, "Scheduled date must be an RFC 3339 timestamp")
			} else {
				in.ScheduledAt = &at
			}
		}

		in = normalize(in)
		msgs = append(s.validateAt(in, now), msgs...)
		if len(msgs) > 0 {
			report.Errors = append(report.Errors, RowError{Row: row, Messages: msgs})
			continue
		}
		report.Valid = append(report.Valid, in)
	}
	return report, nil
}
