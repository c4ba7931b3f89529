package spaces

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/inquire/internal/directory"
	"github.com/eldtechnologies/inquire/internal/store"
)

type fakeDirectory struct {
	profile    *directory.RoomProfile
	profileErr error
	pages      map[string]*directory.MembershipPage
	pageErr    error
	loop       bool
}

func (f *fakeDirectory) GetPerson(context.Context, string) (*directory.Person, error) {
	return nil, errors.New("not used")
}

func (f *fakeDirectory) GetRoomProfile(context.Context, string) (*directory.RoomProfile, error) {
	return f.profile, f.profileErr
}

func (f *fakeDirectory) GetMembershipsPage(_ context.Context, pageURL, _ string) (*directory.MembershipPage, error) {
	if f.pageErr != nil && pageURL != "" {
		return nil, f.pageErr
	}
	if f.loop {
		return &directory.MembershipPage{NextPageURL: "again"}, nil
	}
	return f.pages[pageURL], nil
}

func newTestService(t *testing.T, dir directory.Directory) (*Service, store.DataStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "spaces.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return NewService(s, dir, zerolog.Nop()), s
}

func TestCreateAndExists(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeDirectory{})

	ok, err := svc.Exists(ctx, "room-1")
	require.NoError(t, err)
	assert.False(t, ok)

	room, err := svc.Create(ctx, NewRoom{ID: "room-1", DisplayName: "Support"})
	require.NoError(t, err)
	assert.True(t, room.Active)
	assert.Equal(t, int64(0), room.Sequence)

	ok, err = svc.Exists(ctx, "room-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Create(ctx, NewRoom{ID: "room-1"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	_, err = svc.Get(ctx, "room-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncMemberships(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{pages: map[string]*directory.MembershipPage{
		"": {
			Items:       []directory.Membership{{PersonID: "p-1", IsModerator: true}, {PersonID: "p-2"}},
			NextPageURL: "page-2",
		},
		"page-2": {
			Items: []directory.Membership{{PersonID: "p-3", IsModerator: true}},
		},
	}}
	svc, _ := newTestService(t, dir)
	_, err := svc.Create(ctx, NewRoom{ID: "room-1"})
	require.NoError(t, err)

	assert.Nil(t, svc.SyncMemberships(ctx, "room-1"))

	room, err := svc.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p-1", "p-2", "p-3"}, room.Memberships)
	assert.Equal(t, []string{"p-1", "p-3"}, room.Moderators)
}

func TestSyncMembershipsPartialFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		pages: map[string]*directory.MembershipPage{
			"": {Items: []directory.Membership{{PersonID: "p-1"}}, NextPageURL: "page-2"},
		},
		pageErr: directory.ErrUnavailable,
	}
	svc, _ := newTestService(t, dir)
	_, err := svc.Create(ctx, NewRoom{ID: "room-1"})
	require.NoError(t, err)

	w := svc.SyncMemberships(ctx, "room-1")
	require.NotNil(t, w)
	assert.Equal(t, OpSyncMemberships, w.Op)
	assert.ErrorIs(t, w, directory.ErrUnavailable)

	room, err := svc.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, room.Memberships)
}

func TestMembershipsPageCap(t *testing.T) {
	svc, _ := newTestService(t, &fakeDirectory{loop: true})
	_, err := svc.Memberships(context.Background(), "room-1")
	assert.ErrorIs(t, err, ErrTooManyPages)
}

func TestRefreshProfile(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{profile: &directory.RoomProfile{ID: "room-1", Title: "New Title", TeamID: "team-9"}}
	svc, _ := newTestService(t, dir)
	_, err := svc.Create(ctx, NewRoom{ID: "room-1", DisplayName: "Old"})
	require.NoError(t, err)

	assert.Nil(t, svc.RefreshProfile(ctx, "room-1"))

	room, err := svc.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "New Title", room.DisplayName)
	assert.Equal(t, "team-9", room.TeamID)

	dir.profileErr = fmt.Errorf("lookup: %w", directory.ErrUnavailable)
	w := svc.RefreshProfile(ctx, "room-1")
	require.NotNil(t, w)
	assert.Equal(t, OpRefreshProfile, w.Op)
}

func TestBestEffortSettersOnMissingRoom(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeDirectory{})

	for _, w := range []error{
		svc.TouchActivity(ctx, "ghost"),
		svc.SetActive(ctx, "ghost", false),
		svc.SetMode(ctx, "ghost", "strict"),
		svc.SetAnswerCount(ctx, "ghost", 4),
	} {
		assert.ErrorIs(t, w, store.ErrNotFound)
	}

	assert.ErrorIs(t, svc.SetSticky(ctx, "ghost", "read the FAQ"), store.ErrNotFound)
}

func TestSetters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeDirectory{})
	_, err := svc.Create(ctx, NewRoom{ID: "room-1"})
	require.NoError(t, err)

	assert.Nil(t, svc.SetActive(ctx, "room-1", false))
	assert.Nil(t, svc.SetMode(ctx, "room-1", "strict"))
	assert.Nil(t, svc.SetAnswerCount(ctx, "room-1", 7))
	require.NoError(t, svc.SetSticky(ctx, "room-1", "read the FAQ"))

	room, err := svc.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.False(t, room.Active)
	assert.Equal(t, "strict", room.Mode)
	assert.Equal(t, int64(7), room.AnswerCount)
	assert.Equal(t, "read the FAQ", room.Sticky)
}

func TestIsModerator(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{pages: map[string]*directory.MembershipPage{
		"": {Items: []directory.Membership{{PersonID: "p-1", IsModerator: true}, {PersonID: "p-2"}}},
	}}
	svc, _ := newTestService(t, dir)
	_, err := svc.Create(ctx, NewRoom{ID: "room-1"})
	require.NoError(t, err)

	// no moderators yet: everyone may moderate
	assert.True(t, svc.IsModerator(ctx, "room-1", "p-2"))

	require.Nil(t, svc.SyncMemberships(ctx, "room-1"))
	assert.True(t, svc.IsModerator(ctx, "room-1", "p-1"))
	assert.False(t, svc.IsModerator(ctx, "room-1", "p-2"))

	// lookup failure fails open
	assert.True(t, svc.IsModerator(ctx, "ghost", "p-2"))
}

// duplicateRooms reports two records for every id.
type duplicateRooms struct {
	store.RoomStore
}

func (duplicateRooms) CountRooms(context.Context, string) (int, error) {
	return 2, nil
}

func TestExistsAmbiguous(t *testing.T) {
	svc := NewService(duplicateRooms{}, &fakeDirectory{}, zerolog.Nop())

	ok, err := svc.Exists(context.Background(), "room-1")
	require.ErrorIs(t, err, store.ErrAmbiguous)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.False(t, ok)
}
