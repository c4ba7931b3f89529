package resync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/eldtechnologies/inquire/internal/fault"
	"github.com/eldtechnologies/inquire/internal/models"
)

type fakeRooms struct {
	rooms []models.Room
	err   error
}

func (f fakeRooms) ListActiveRooms(ctx context.Context) ([]models.Room, error) {
	return f.rooms, f.err
}

type fakeSyncer struct {
	mu        sync.Mutex
	refreshed []string
	synced    []string
	failOn    string

	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeSyncer) enter() func() {
	n := f.inFlight.Add(1)
	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeSyncer) RefreshProfile(ctx context.Context, id string) *fault.Warning {
	defer f.enter()()
	f.mu.Lock()
	f.refreshed = append(f.refreshed, id)
	f.mu.Unlock()
	if id == f.failOn {
		return fault.Warn("refresh_profile", id, errors.New("directory down"))
	}
	return nil
}

func (f *fakeSyncer) SyncMemberships(ctx context.Context, id string) *fault.Warning {
	f.mu.Lock()
	f.synced = append(f.synced, id)
	f.mu.Unlock()
	return nil
}

type fakeCounter struct {
	calls atomic.Int32
}

func (f *fakeCounter) Sync(ctx context.Context, roomID string) *fault.Warning {
	f.calls.Add(1)
	return nil
}

func newRooms(n int) []models.Room {
	rooms := make([]models.Room, n)
	for i := range rooms {
		rooms[i] = models.Room{ID: fmt.Sprintf("room-%d", i)}
	}
	return rooms
}

func TestNewRejectsInvalidCron(t *testing.T) {
	_, err := New(fakeRooms{}, &fakeSyncer{}, &fakeCounter{}, "not a cron", zerolog.Nop())
	assert.Error(t, err)
}

func TestRunOnceVisitsEveryRoom(t *testing.T) {
	syncer := &fakeSyncer{}
	counter := &fakeCounter{}
	s, err := New(fakeRooms{rooms: newRooms(12)}, syncer, counter, "0 */6 * * *", zerolog.Nop())
	require.NoError(t, err)

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 12, res.Rooms)
	assert.Zero(t, res.Warnings)
	assert.Len(t, syncer.refreshed, 12)
	assert.Len(t, syncer.synced, 12)
	assert.EqualValues(t, 12, counter.calls.Load())
	assert.LessOrEqual(t, syncer.maxSeen.Load(), int32(Concurrency))
}

func TestRunOnceCountsWarnings(t *testing.T) {
	syncer := &fakeSyncer{failOn: "room-1"}
	s, err := New(fakeRooms{rooms: newRooms(3)}, syncer, &fakeCounter{}, "0 */6 * * *", zerolog.Nop())
	require.NoError(t, err)

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Warnings)
	// A failed refresh does not skip the rest of the room.
	assert.Len(t, syncer.synced, 3)
}

func TestRunOnceListFailure(t *testing.T) {
	s, err := New(fakeRooms{err: errors.New("db down")}, &fakeSyncer{}, &fakeCounter{}, "0 */6 * * *", zerolog.Nop())
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := New(fakeRooms{}, &fakeSyncer{}, &fakeCounter{}, "0 0 1 1 *", zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
