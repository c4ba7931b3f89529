package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/inquire/internal/models"
	"github.com/eldtechnologies/inquire/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, store.DataStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	_, err = s.CreateRoom(context.Background(), &models.Room{ID: "room-1", Active: true, CreatedOn: time.Now()})
	require.NoError(t, err)
	return New(s, zerolog.Nop()), s
}

type hookRecorder struct {
	mu   sync.Mutex
	seen []int64
}

func (h *hookRecorder) AfterAnswer(_ context.Context, q *models.Question) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, q.Sequence)
}

func TestCreateFillsDefaults(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	q := &models.Question{
		RoomID:   "room-1",
		Sequence: 1,
		Text:     "where are the docs? https://docs.example.com",
		HTML:     "<p>where are the docs? https://docs.example.com</p>",
	}
	require.NoError(t, l.Create(ctx, q))
	assert.NotEmpty(t, q.ID)
	assert.False(t, q.CreatedOn.IsZero())
	assert.Contains(t, q.HTML, `target="_blank"`)

	got, err := l.Find(ctx, "room-1", 1)
	require.NoError(t, err)
	assert.Equal(t, q.ID, got.ID)
	assert.False(t, got.Answered)
	assert.Empty(t, got.Answers)
}

func TestCreateDuplicateSequence(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	require.NoError(t, l.Create(ctx, &models.Question{RoomID: "room-1", Sequence: 1, Text: "a"}))
	err := l.Create(ctx, &models.Question{RoomID: "room-1", Sequence: 1, Text: "b"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestRecordAnswer(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	hook := &hookRecorder{}
	l.OnAnswer(hook)

	require.NoError(t, l.Create(ctx, &models.Question{RoomID: "room-1", Sequence: 1, Text: "a"}))

	q, err := l.RecordAnswer(ctx, "room-1", 1, models.Answer{AuthorID: "p-2", Text: "first"})
	require.NoError(t, err)
	assert.True(t, q.Answered)
	require.Len(t, q.Answers, 1)
	assert.False(t, q.Answers[0].CreatedOn.IsZero())

	q, err = l.RecordAnswer(ctx, "room-1", 1, models.Answer{AuthorID: "p-3", Text: "second"})
	require.NoError(t, err)
	require.Len(t, q.Answers, 2)
	assert.Equal(t, "first", q.Answers[0].Text)
	assert.Equal(t, "second", q.Answers[1].Text)

	n, err := l.AnswerCount(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []int64{1, 1}, hook.seen)
}

func TestRecordAnswerUnknownSequence(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	hook := &hookRecorder{}
	l.OnAnswer(hook)

	_, err := l.RecordAnswer(ctx, "room-1", 42, models.Answer{Text: "orphan"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, hook.seen)

	_, err = l.Find(ctx, "room-1", 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListDefaultsSort(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	base := time.Now().UTC()
	for i := 1; i <= 3; i++ {
		require.NoError(t, l.Create(ctx, &models.Question{
			RoomID:    "room-1",
			Sequence:  int64(i),
			Text:      "q",
			CreatedOn: base.Add(time.Duration(i) * time.Second),
		}))
	}

	page, err := l.List(ctx, store.QuestionQuery{RoomID: "room-1", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, int64(3), page.Items[0].Sequence)
}

// ambiguousQuestions finds more than one question for every key.
type ambiguousQuestions struct {
	store.QuestionStore
}

func (ambiguousQuestions) AppendAnswer(context.Context, string, int64, models.Answer) (*models.Question, error) {
	return nil, store.ErrAmbiguous
}

func (ambiguousQuestions) FindQuestion(context.Context, string, int64) (*models.Question, error) {
	return nil, store.ErrAmbiguous
}

func TestRecordAnswerAmbiguous(t *testing.T) {
	ctx := context.Background()
	l := New(ambiguousQuestions{}, zerolog.Nop())
	rec := &hookRecorder{}
	l.OnAnswer(rec)

	q, err := l.RecordAnswer(ctx, "room-1", 1, models.Answer{Text: "see the wiki"})
	require.ErrorIs(t, err, store.ErrAmbiguous)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.Nil(t, q)
	assert.Empty(t, rec.seen)

	_, err = l.Find(ctx, "room-1", 1)
	require.ErrorIs(t, err, store.ErrAmbiguous)
}
