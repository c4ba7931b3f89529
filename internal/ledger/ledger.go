// Package ledger records questions and appends answers to them.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inquire/internal/hooks"
	"github.com/eldtechnologies/inquire/internal/metrics"
	"github.com/eldtechnologies/inquire/internal/models"
	"github.com/eldtechnologies/inquire/internal/store"
)

// AnswerHook runs after an answer has been appended. Hooks must not fail
// the write that triggered them.
type AnswerHook interface {
	AfterAnswer(ctx context.Context, q *models.Question)
}

// Ledger is the question log.
type Ledger struct {
	questions store.QuestionStore
	logger    zerolog.Logger
	now       func() time.Time

	mu    sync.RWMutex
	hooks []AnswerHook
}

// New creates a ledger over questions.
func New(questions store.QuestionStore, logger zerolog.Logger) *Ledger {
	return &Ledger{
		questions: questions,
		logger:    logger.With().Str("component", "ledger").Logger(),
		now:       time.Now,
	}
}

// OnAnswer registers a hook run after every successful RecordAnswer.
func (l *Ledger) OnAnswer(h AnswerHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, h)
}

// Create logs q under the sequence the caller already reserved. It fills
// in the id and creation time when they are unset.
func (l *Ledger) Create(ctx context.Context, q *models.Question) error {
	defer metrics.ObserveStore("create_question", time.Now())

	if q.ID == "" {
		q.ID = ulid.Make().String()
	}
	if q.CreatedOn.IsZero() {
		q.CreatedOn = l.now().UTC()
	}
	q.HTML = hooks.AutoLink(q.HTML)
	q.Answered = false
	q.Answers = []models.Answer{}

	if err := l.questions.CreateQuestion(ctx, q); err != nil {
		return fmt.Errorf("creating question %d in room %s: %w", q.Sequence, q.RoomID, err)
	}
	metrics.QuestionsLogged.Inc()
	l.logger.Debug().Str("room_id", q.RoomID).Int64("sequence", q.Sequence).Msg("question logged")
	return nil
}

// RecordAnswer appends answer to the question numbered sequence in the room
// and marks it answered. It never creates a question: an unknown sequence
// returns store.ErrNotFound.
func (l *Ledger) RecordAnswer(ctx context.Context, roomID string, sequence int64, answer models.Answer) (*models.Question, error) {
	start := time.Now()
	if answer.CreatedOn.IsZero() {
		answer.CreatedOn = l.now().UTC()
	}
	answer.HTML = hooks.AutoLink(answer.HTML)

	q, err := l.questions.AppendAnswer(ctx, roomID, sequence, answer)
	metrics.ObserveStore("append_answer", start)
	if err != nil {
		return nil, fmt.Errorf("appending answer to question %d in room %s: %w", sequence, roomID, err)
	}
	metrics.AnswersLogged.Inc()

	l.mu.RLock()
	registered := l.hooks
	l.mu.RUnlock()
	for _, h := range registered {
		h.AfterAnswer(ctx, q)
	}
	return q, nil
}

// Find returns the question or store.ErrNotFound.
func (l *Ledger) Find(ctx context.Context, roomID string, sequence int64) (*models.Question, error) {
	defer metrics.ObserveStore("find_question", time.Now())
	return l.questions.FindQuestion(ctx, roomID, sequence)
}

// List returns one window of a room's questions and the size of the full
// filtered set.
func (l *Ledger) List(ctx context.Context, q store.QuestionQuery) (*store.QuestionPage, error) {
	defer metrics.ObserveStore("list_questions", time.Now())
	if q.Sort.Field == "" {
		q.Sort = store.DefaultSort
	}
	return l.questions.ListQuestions(ctx, q)
}

// AnswerCount counts the room's answered questions.
func (l *Ledger) AnswerCount(ctx context.Context, roomID string) (int64, error) {
	defer metrics.ObserveStore("count_answered", time.Now())
	return l.questions.CountAnswered(ctx, roomID)
}
