package reflections

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"devotional-sync/internal/domain"
	"devotional-sync/internal/infra/debounce"
	"devotional-sync/internal/infra/metrics"
	"devotional-sync/internal/infra/worker"
)

const (
	storeName = "reflections"
	// AnswersTable — таблица, изменения которой обновляют ленту общины.
	AnswersTable = "user_answers"
	// DefaultDelay — задержка отложенной записи ответа.
	DefaultDelay = 500 * time.Millisecond
)

type answerState struct {
	text     string
	share    bool
	sharedAt *time.Time
}

// SharePayload описывает публикацию одного ответа.
type SharePayload struct {
	DevotionalID  string
	QuestionIndex int
	// Text заменяет локальный текст ответа, если не пуст.
	Text string
	Meta domain.ShareMeta
}

// Store хранит ответы пользователя и ленту общины.
type Store struct {
	repo     domain.AnswerRepo
	feed     domain.ChangeFeed
	bg       worker.Submitter
	debounce *debounce.Keyed
	delay    time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	userID    string
	gen       uint64
	loading   bool
	items     map[string]map[int]*answerState
	community []domain.CommunityEntry
	subCancel context.CancelFunc
}

// NewStore создаёт хранилище без пользователя. feed может быть nil, тогда лента не обновляется в реальном времени.
func NewStore(repo domain.AnswerRepo, feed domain.ChangeFeed, bg worker.Submitter, delay time.Duration, logger zerolog.Logger) *Store {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Store{
		repo:     repo,
		feed:     feed,
		bg:       bg,
		debounce: debounce.New(),
		delay:    delay,
		log:      logger.With().Str("component", storeName).Logger(),
		now:      time.Now,
		items:    make(map[string]map[int]*answerState),
	}
}

// Name возвращает имя хранилища для логов и метрик.
func (s *Store) Name() string { return storeName }

// Reset отменяет отложенные записи и подписку, очищает кэш и переводит хранилище в загрузку.
func (s *Store) Reset(userID string) {
	s.debounce.CancelAll()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.subCancel != nil {
		s.subCancel()
		s.subCancel = nil
	}
	s.userID = userID
	s.loading = userID != ""
	s.items = make(map[string]map[int]*answerState)
	s.community = nil
	metrics.StoreResets.WithLabelValues(storeName).Inc()
}

// Close отменяет отложенные записи и подписку без сброса кэша.
func (s *Store) Close() {
	s.debounce.CancelAll()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subCancel != nil {
		s.subCancel()
		s.subCancel = nil
	}
}

// Load загружает ответы, ленту общины и открывает подписку на изменения.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	gen, userID := s.gen, s.userID
	s.mu.Unlock()
	if userID == "" {
		return nil
	}

	start := time.Now()
	answers, err := s.repo.ListAnswers(ctx, userID)
	var community []domain.CommunityEntry
	if err == nil {
		community, err = s.repo.ListCommunity(ctx, userID)
	}
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
		return fmt.Errorf("загрузка ответов: %w", err)
	}
	for _, a := range answers {
		st := s.stateLocked(a.DevotionalID, a.QuestionIndex)
		st.text = a.Text
		st.share = a.Share
		st.sharedAt = a.SharedAt
	}
	s.community = community
	s.mu.Unlock()

	s.subscribe(gen, userID)
	return nil
}

// Loading сообщает, что первая загрузка для пользователя ещё не завершилась.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) stateLocked(devotionalID string, q int) *answerState {
	byQ, ok := s.items[devotionalID]
	if !ok {
		byQ = make(map[int]*answerState)
		s.items[devotionalID] = byQ
	}
	st, ok := byQ[q]
	if !ok {
		st = &answerState{share: true}
		byQ[q] = st
	}
	return st
}

func (s *Store) lookupLocked(devotionalID string, q int) *answerState {
	if byQ, ok := s.items[devotionalID]; ok {
		return byQ[q]
	}
	return nil
}

func textKey(devotionalID string, q int) string {
	return devotionalID + ":" + strconv.Itoa(q) + ":text"
}

func answerKey(userID, devotionalID string, q int) string {
	return worker.Key(userID, devotionalID, strconv.Itoa(q))
}

func shareKey(devotionalID string, q int) string {
	return devotionalID + ":" + strconv.Itoa(q) + ":share"
}

// UpdateAnswer сразу меняет текст локально и откладывает запись в удалённое хранилище.
func (s *Store) UpdateAnswer(devotionalID string, q int, text string) {
	s.mu.Lock()
	gen := s.gen
	s.stateLocked(devotionalID, q).text = text
	s.mu.Unlock()

	s.debounce.Schedule(textKey(devotionalID, q), s.delay, func() {
		s.flush(gen, devotionalID, q, "text")
	})
}

// Answer возвращает текущий текст ответа.
func (s *Store) Answer(devotionalID string, q int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.lookupLocked(devotionalID, q); st != nil {
		return st.text
	}
	return ""
}

// SetShareFlag меняет разрешение на автоматическую публикацию ответа.
func (s *Store) SetShareFlag(devotionalID string, q int, share bool) {
	s.mu.Lock()
	gen := s.gen
	s.stateLocked(devotionalID, q).share = share
	s.mu.Unlock()

	s.debounce.Schedule(shareKey(devotionalID, q), s.delay, func() {
		s.flush(gen, devotionalID, q, "share")
	})
}

// ShareFlag возвращает разрешение на публикацию; по умолчанию true.
func (s *Store) ShareFlag(devotionalID string, q int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.lookupLocked(devotionalID, q); st != nil {
		return st.share
	}
	return true
}

// IsShared сообщает, опубликован ли ответ.
func (s *Store) IsShared(devotionalID string, q int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.lookupLocked(devotionalID, q)
	return st != nil && st.sharedAt != nil
}

// SharedAt возвращает время публикации ответа.
func (s *Store) SharedAt(devotionalID string, q int) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.lookupLocked(devotionalID, q)
	if st == nil || st.sharedAt == nil {
		return time.Time{}, false
	}
	return *st.sharedAt, true
}

// flush пишет последнее значение из памяти на момент срабатывания таймера.
func (s *Store) flush(gen uint64, devotionalID string, q int, field string) {
	s.mu.Lock()
	if gen != s.gen || s.userID == "" {
		s.mu.Unlock()
		return
	}
	st := s.lookupLocked(devotionalID, q)
	if st == nil {
		s.mu.Unlock()
		return
	}
	a := domain.Answer{
		UserID:        s.userID,
		DevotionalID:  devotionalID,
		QuestionIndex: q,
		Text:          st.text,
		Share:         st.share,
		UpdatedAt:     s.now().UTC(),
	}
	s.mu.Unlock()

	metrics.DebounceFlushes.WithLabelValues(field).Inc()
	s.bg.Submit(worker.Task{Op: "answer_upsert", Key: answerKey(a.UserID, devotionalID, q), Run: func(ctx context.Context) error {
		return s.repo.UpsertAnswer(ctx, a)
	}})
}

// ShareReflection публикует ответ сейчас. Отложенные записи по этому ответу отменяются,
// чтобы они не перезаписали публикацию; запись сразу появляется в ленте общины.
// Для уже опубликованного ответа время публикации не меняется, обновляется только текст.
func (s *Store) ShareReflection(p SharePayload) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return domain.ErrNotSignedIn
	}
	st := s.stateLocked(p.DevotionalID, p.QuestionIndex)
	if st.sharedAt != nil {
		task, ok := s.editSharedLocked(p, st)
		s.mu.Unlock()
		if ok {
			s.bg.Submit(task)
		}
		return nil
	}
	s.debounce.Cancel(textKey(p.DevotionalID, p.QuestionIndex))
	s.debounce.Cancel(shareKey(p.DevotionalID, p.QuestionIndex))
	if p.Text != "" {
		st.text = p.Text
	}
	task := s.shareLocked(p.DevotionalID, p.QuestionIndex, st, p.Meta)
	s.mu.Unlock()

	s.bg.Submit(task)
	return nil
}

// editSharedLocked меняет текст опубликованного ответа и его записи в ленте.
// Если текст не изменился, записывать нечего.
func (s *Store) editSharedLocked(p SharePayload, st *answerState) (worker.Task, bool) {
	if p.Text == "" || p.Text == st.text {
		return worker.Task{}, false
	}
	s.debounce.Cancel(textKey(p.DevotionalID, p.QuestionIndex))
	st.text = p.Text
	for i := range s.community {
		e := &s.community[i]
		if e.AuthorID == s.userID && e.DevotionalID == p.DevotionalID && e.QuestionIndex == p.QuestionIndex {
			e.Text = p.Text
		}
	}
	sharedAt := *st.sharedAt
	a := domain.Answer{
		UserID:        s.userID,
		DevotionalID:  p.DevotionalID,
		QuestionIndex: p.QuestionIndex,
		Text:          st.text,
		Share:         st.share,
		SharedAt:      &sharedAt,
		UpdatedAt:     s.now().UTC(),
	}
	return worker.Task{Op: "answer_upsert", Key: answerKey(a.UserID, p.DevotionalID, p.QuestionIndex), Run: func(ctx context.Context) error {
		return s.repo.UpsertAnswer(ctx, a)
	}}, true
}

// ShareToggledAnswers публикует все ответы девоционала с непустым текстом,
// ещё не опубликованные и не запрещённые флагом. questions задаёт текст вопросов по индексу.
// Возвращает число опубликованных ответов.
func (s *Store) ShareToggledAnswers(devotionalID string, meta domain.ShareMeta, questions []string) int {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return 0
	}
	byQ := s.items[devotionalID]
	indexes := make([]int, 0, len(byQ))
	for q := range byQ {
		indexes = append(indexes, q)
	}
	sort.Ints(indexes)

	var tasks []worker.Task
	for _, q := range indexes {
		st := byQ[q]
		if strings.TrimSpace(st.text) == "" || st.sharedAt != nil || !st.share {
			continue
		}
		m := meta
		if q >= 0 && q < len(questions) {
			m.Question = questions[q]
		}
		s.debounce.Cancel(textKey(devotionalID, q))
		s.debounce.Cancel(shareKey(devotionalID, q))
		tasks = append(tasks, s.shareLocked(devotionalID, q, st, m))
	}
	s.mu.Unlock()

	for _, task := range tasks {
		s.bg.Submit(task)
	}
	return len(tasks)
}

func (s *Store) shareLocked(devotionalID string, q int, st *answerState, meta domain.ShareMeta) worker.Task {
	now := s.now().UTC()
	st.sharedAt = &now
	entry := domain.CommunityEntry{
		AuthorID:        s.userID,
		AuthorName:      meta.AuthorName,
		AuthorInitials:  meta.AuthorInitials,
		DevotionalID:    devotionalID,
		DevotionalTitle: meta.DevotionalTitle,
		QuestionIndex:   q,
		Question:        meta.Question,
		Text:            st.text,
		SharedAt:        now,
	}
	s.community = append([]domain.CommunityEntry{entry}, s.community...)

	shared := domain.SharedAnswer{
		Answer: domain.Answer{
			UserID:        s.userID,
			DevotionalID:  devotionalID,
			QuestionIndex: q,
			Text:          st.text,
			Share:         st.share,
			SharedAt:      &now,
			UpdatedAt:     now,
		},
		Meta: meta,
	}
	return worker.Task{Op: "answer_share", Key: answerKey(s.userID, devotionalID, q), Run: func(ctx context.Context) error {
		return s.repo.ShareAnswer(ctx, shared)
	}}
}

// CommunityEntries возвращает плоскую ленту общины.
func (s *Store) CommunityEntries() []domain.CommunityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CommunityEntry(nil), s.community...)
}

// Community возвращает ленту, сгруппированную по автору и девоционалу.
func (s *Store) Community() []domain.CommunityGroup {
	return GroupCommunity(s.CommunityEntries())
}

func (s *Store) subscribe(gen uint64, userID string) {
	if s.feed == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		cancel()
		return
	}
	if s.subCancel != nil {
		s.subCancel()
	}
	s.subCancel = cancel
	s.mu.Unlock()

	events, err := s.feed.Subscribe(ctx, AnswersTable)
	if err != nil {
		s.log.Warn().Err(err).Msg("не удалось подписаться на ленту общины")
		return
	}
	go func() {
		for ev := range events {
			if !ev.Touches("shared_at") {
				continue
			}
			s.refresh(ctx, gen, userID)
		}
	}()
}

// refresh полностью перечитывает ленту общины.
func (s *Store) refresh(ctx context.Context, gen uint64, userID string) {
	entries, err := s.repo.ListCommunity(ctx, userID)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Msg("не удалось обновить ленту общины")
		}
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.community = entries
	metrics.FeedRefreshes.Inc()
}

// GroupCommunity группирует ленту по (девоционал, автор): внутри группы по номеру вопроса,
// группы по убыванию времени последней публикации.
func GroupCommunity(entries []domain.CommunityEntry) []domain.CommunityGroup {
	type groupKey struct{ devotionalID, authorID string }
	index := make(map[groupKey]int)
	var groups []domain.CommunityGroup
	for _, e := range entries {
		k := groupKey{e.DevotionalID, e.AuthorID}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, domain.CommunityGroup{
				DevotionalID:    e.DevotionalID,
				DevotionalTitle: e.DevotionalTitle,
				AuthorID:        e.AuthorID,
				AuthorName:      e.AuthorName,
				AuthorInitials:  e.AuthorInitials,
			})
		}
		g := &groups[i]
		g.Entries = append(g.Entries, e)
		if e.SharedAt.After(g.LatestSharedAt) {
			g.LatestSharedAt = e.SharedAt
		}
	}
	for i := range groups {
		sort.SliceStable(groups[i].Entries, func(a, b int) bool {
			return groups[i].Entries[a].QuestionIndex < groups[i].Entries[b].QuestionIndex
		})
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].LatestSharedAt.After(groups[b].LatestSharedAt)
	})
	return groups
}
