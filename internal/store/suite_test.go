package store

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/inquire/internal/models"
)

// runStoreSuite exercises a DataStore implementation. Every test uses
// fresh room ids so backends that persist between runs stay isolated.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) DataStore) {
	t.Run("RoomLifecycle", func(t *testing.T) { testRoomLifecycle(t, newStore(t)) })
	t.Run("DuplicateRoom", func(t *testing.T) { testDuplicateRoom(t, newStore(t)) })
	t.Run("PatchRoom", func(t *testing.T) { testPatchRoom(t, newStore(t)) })
	t.Run("NextSequenceConcurrent", func(t *testing.T) { testNextSequenceConcurrent(t, newStore(t)) })
	t.Run("AppendAnswer", func(t *testing.T) { testAppendAnswer(t, newStore(t)) })
	t.Run("AppendAnswerConcurrent", func(t *testing.T) { testAppendAnswerConcurrent(t, newStore(t)) })
	t.Run("DuplicateQuestion", func(t *testing.T) { testDuplicateQuestion(t, newStore(t)) })
	t.Run("ListQuestions", func(t *testing.T) { testListQuestions(t, newStore(t)) })
	t.Run("ListActiveRooms", func(t *testing.T) { testListActiveRooms(t, newStore(t)) })
}

func newRoomID() string {
	return "room-" + ulid.Make().String()
}

func seedRoom(t *testing.T, s DataStore) *models.Room {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	room, err := s.CreateRoom(context.Background(), &models.Room{
		ID:           newRoomID(),
		DisplayName:  "Platform Team",
		Active:       true,
		LastActivity: now,
		CreatedOn:    now,
	})
	require.NoError(t, err)
	return room
}

func seedQuestion(t *testing.T, s DataStore, roomID string, seq int64, text string, at time.Time) *models.Question {
	t.Helper()
	q := &models.Question{
		ID:          ulid.Make().String(),
		RoomID:      roomID,
		Sequence:    seq,
		AuthorEmail: "ada@example.com",
		AuthorID:    "p-ada",
		DisplayName: fmt.Sprintf("Asker %02d", seq),
		Text:        text,
		CreatedOn:   at,
	}
	require.NoError(t, s.CreateQuestion(context.Background(), q))
	return q
}

func testRoomLifecycle(t *testing.T, s DataStore) {
	ctx := context.Background()
	room := seedRoom(t, s)

	n, err := s.CountRooms(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountRooms(ctx, newRoomID())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Platform Team", got.DisplayName)
	assert.True(t, got.Active)
	assert.Equal(t, int64(0), got.Sequence)
	assert.Empty(t, got.Memberships)

	_, err = s.GetRoom(ctx, newRoomID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func testDuplicateRoom(t *testing.T, s DataStore) {
	ctx := context.Background()
	room := seedRoom(t, s)

	_, err := s.CreateRoom(ctx, &models.Room{ID: room.ID, DisplayName: "Again"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	n, err := s.CountRooms(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testPatchRoom(t *testing.T, s DataStore) {
	ctx := context.Background()
	room := seedRoom(t, s)

	title := "Renamed"
	count := int64(3)
	members := models.Members{Memberships: []string{"p-1", "p-2"}, Moderators: []string{"p-1"}}
	patched, err := s.PatchRoom(ctx, room.ID, models.RoomPatch{
		DisplayName: &title,
		AnswerCount: &count,
		Members:     &members,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", patched.DisplayName)
	assert.Equal(t, int64(3), patched.AnswerCount)
	assert.Equal(t, []string{"p-1", "p-2"}, patched.Memberships)
	assert.Equal(t, []string{"p-1"}, patched.Moderators)
	assert.True(t, patched.Active)

	_, err = s.PatchRoom(ctx, newRoomID(), models.RoomPatch{DisplayName: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func testNextSequenceConcurrent(t *testing.T, s DataStore) {
	ctx := context.Background()
	room := seedRoom(t, s)

	const workers = 20
	seqs := make([]int64, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			seq, err := s.NextSequence(ctx, room.ID, time.Now())
			seqs[i] = seq
			return err
		})
	}
	require.NoError(t, g.Wait())

	sort.Slice(seqs, func(a, b int) bool { return seqs[a] < seqs[b] })
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), got.Sequence)

	_, err = s.NextSequence(ctx, newRoomID(), time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func testAppendAnswer(t *testing.T, s DataStore) {
	ctx := context.Background()
	room := seedRoom(t, s)
	seedQuestion(t, s, room.ID, 1, "How do I deploy?", time.Now().UTC())

	q, err := s.FindQuestion(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.False(t, q.Answered)
	assert.Empty(t, q.Answers)

	updated, err := s.AppendAnswer(ctx, room.ID, 1, models.Answer{
		AuthorID:    "p-2",
		DisplayName: "Grace",
		Text:        "Run make deploy",
		CreatedOn:   time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, updated.Answered)
	require.Len(t, updated.Answers, 1)
	last, ok := updated.LastAnswer()
	require.True(t, ok)
	assert.Equal(t, "Run make deploy", last.Text)

	_, err = s.AppendAnswer(ctx, room.ID, 99, models.Answer{Text: "nobody asked"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindQuestion(ctx, room.ID, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	answered, err := s.CountAnswered(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), answered)
}

func testAppendAnswerConcurrent(t *testing.T, s DataStore) {
	ctx := context.Background()
	room := seedRoom(t, s)
	seedQuestion(t, s, room.ID, 1, "Which region?", time.Now().UTC())

	const workers = 10
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := s.AppendAnswer(ctx, room.ID, 1, models.Answer{
				AuthorID:  fmt.Sprintf("p-%d", i),
				Text:      fmt.Sprintf("answer %d", i),
				CreatedOn: time.Now(),
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	q, err := s.FindQuestion(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.True(t, q.Answered)
	assert.Len(t, q.Answers, workers)
}

func testDuplicateQuestion(t *testing.T, s DataStore) {
	room := seedRoom(t, s)
	seedQuestion(t, s, room.ID, 1, "first", time.Now().UTC())

	err := s.CreateQuestion(context.Background(), &models.Question{
		ID:        ulid.Make().String(),
		RoomID:    room.ID,
		Sequence:  1,
		Text:      "same number",
		CreatedOn: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func testListQuestions(t *testing.T, s DataStore) {
	ctx := context.Background()
	room := seedRoom(t, s)
	base := time.Now().UTC().Truncate(time.Millisecond)
	texts := []string{
		"how do I rotate keys",
		"where is the runbook",
		"who owns billing",
		"how do I rotate logs",
		"where are the dashboards",
	}
	for i, text := range texts {
		seedQuestion(t, s, room.ID, int64(i+1), text, base.Add(time.Duration(i)*time.Second))
	}
	_, err := s.AppendAnswer(ctx, room.ID, 2, models.Answer{Text: "wiki", CreatedOn: base})
	require.NoError(t, err)

	page, err := s.ListQuestions(ctx, QuestionQuery{RoomID: room.ID, Sort: DefaultSort, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(5), page.Items[0].Sequence)
	assert.Equal(t, int64(4), page.Items[1].Sequence)

	page, err = s.ListQuestions(ctx, QuestionQuery{
		RoomID: room.ID,
		Sort:   Sort{Field: SortSequence},
		Limit:  2,
		Skip:   4,
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(5), page.Items[0].Sequence)

	page, err = s.ListQuestions(ctx, QuestionQuery{RoomID: room.ID, Sort: Sort{Field: SortSequence, Desc: true}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 5)
	for i, q := range page.Items {
		assert.Equal(t, int64(5-i), q.Sequence)
	}

	page, err = s.ListQuestions(ctx, QuestionQuery{RoomID: room.ID, Filter: FilterAnswered, Sort: DefaultSort, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(2), page.Items[0].Sequence)

	page, err = s.ListQuestions(ctx, QuestionQuery{RoomID: room.ID, Filter: FilterUnanswered, Sort: DefaultSort, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)

	page, err = s.ListQuestions(ctx, QuestionQuery{RoomID: room.ID, Search: "rotate", Sort: Sort{Field: SortSequence}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(1), page.Items[0].Sequence)
	assert.Equal(t, int64(4), page.Items[1].Sequence)

	page, err = s.ListQuestions(ctx, QuestionQuery{RoomID: room.ID, Sort: DefaultSort, Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

func testListActiveRooms(t *testing.T, s DataStore) {
	ctx := context.Background()
	active := seedRoom(t, s)
	inactive := seedRoom(t, s)
	off := false
	_, err := s.PatchRoom(ctx, inactive.ID, models.RoomPatch{Active: &off})
	require.NoError(t, err)

	rooms, err := s.ListActiveRooms(ctx)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, r := range rooms {
		ids[r.ID] = true
	}
	assert.True(t, ids[active.ID])
	assert.False(t, ids[inactive.ID])
}
