// Package resync periodically brings active rooms back in line with the
// chat platform: profile, memberships and the denormalized answer count.
package resync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/inquire/internal/fault"
	"github.com/eldtechnologies/inquire/internal/metrics"
	"github.com/eldtechnologies/inquire/internal/models"
)

// Concurrency bounds how many rooms are resynced at once.
const Concurrency = 4

// retryDelay is how long the loop waits after a bad next-tick computation.
const retryDelay = 30 * time.Second

// Rooms lists the rooms a run visits.
type Rooms interface {
	ListActiveRooms(ctx context.Context) ([]models.Room, error)
}

// Syncer refreshes a room from the platform.
type Syncer interface {
	RefreshProfile(ctx context.Context, id string) *fault.Warning
	SyncMemberships(ctx context.Context, id string) *fault.Warning
}

// Counter recomputes a room's answer count.
type Counter interface {
	Sync(ctx context.Context, roomID string) *fault.Warning
}

// Result summarizes one run.
type Result struct {
	RunID    string
	Rooms    int
	Warnings int
}

// Scheduler runs resyncs on a cron schedule.
type Scheduler struct {
	rooms  Rooms
	syncer Syncer
	counts Counter
	cron   string
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Scheduler. The cron expression must already be valid.
func New(rooms Rooms, syncer Syncer, counts Counter, cron string, logger zerolog.Logger) (*Scheduler, error) {
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid resync cron expression: %s", cron)
	}
	return &Scheduler{
		rooms:  rooms,
		syncer: syncer,
		counts: counts,
		cron:   cron,
		logger: logger.With().Str("component", "resync").Logger(),
		now:    time.Now,
	}, nil
}

// RunOnce resyncs every active room. Per-room failures are counted as
// warnings; only a failure to list rooms is returned.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := s.logger.With().Str("run_id", res.RunID).Logger()

	rooms, err := s.rooms.ListActiveRooms(ctx)
	if err != nil {
		metrics.ResyncRuns.WithLabelValues("error").Inc()
		return res, fmt.Errorf("listing active rooms: %w", err)
	}
	res.Rooms = len(rooms)

	var warnings atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Concurrency)
	for _, room := range rooms {
		id := room.ID
		g.Go(func() error {
			warnings.Add(int64(s.syncRoom(gctx, id)))
			return nil
		})
	}
	_ = g.Wait()
	res.Warnings = int(warnings.Load())

	result := "ok"
	if res.Warnings > 0 {
		result = "partial"
	}
	metrics.ResyncRuns.WithLabelValues(result).Inc()

	log.Info().
		Int("rooms", res.Rooms).
		Int("warnings", res.Warnings).
		Msg("resync completed")
	return res, nil
}

func (s *Scheduler) syncRoom(ctx context.Context, id string) int {
	n := 0
	for _, w := range []*fault.Warning{
		s.syncer.RefreshProfile(ctx, id),
		s.syncer.SyncMemberships(ctx, id),
		s.counts.Sync(ctx, id),
	} {
		if w != nil {
			n++
		}
	}
	return n
}

// Run blocks until ctx is cancelled, resyncing at every cron tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Str("cron", s.cron).Msg("resync scheduler started")
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now(), false)
		wait := time.Until(next)
		if err != nil {
			s.logger.Error().Err(err).Msg("computing next resync tick")
			wait = retryDelay
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("resync scheduler stopped")
			return
		case <-timer.C:
		}

		if err != nil {
			continue
		}
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("resync run failed")
		}
	}
}
