// Package spaces keeps the per-room record: membership, moderators, the
// question sequence, activity, mode, sticky text and answer count.
package spaces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inquire/internal/directory"
	"github.com/eldtechnologies/inquire/internal/fault"
	"github.com/eldtechnologies/inquire/internal/metrics"
	"github.com/eldtechnologies/inquire/internal/models"
	"github.com/eldtechnologies/inquire/internal/store"
)

// maxMembershipPages bounds the membership walk so a collaborator that
// keeps returning a next link cannot spin forever.
const maxMembershipPages = 1000

// ErrTooManyPages is returned when the membership walk hits the page cap.
var ErrTooManyPages = errors.New("spaces: membership pagination exceeded page cap")

// Best-effort operation names, used in warnings and metrics.
const (
	OpRefreshProfile  = "refresh_profile"
	OpSyncMemberships = "sync_memberships"
	OpTouchActivity   = "touch_activity"
	OpSetActive       = "set_active"
	OpSetMode         = "set_mode"
	OpSetAnswerCount  = "set_answer_count"
)

// NewRoom carries the fields needed to create a room.
type NewRoom struct {
	ID          string
	DisplayName string
	TeamID      string
	OrgID       string
}

// Service manages room records.
type Service struct {
	rooms  store.RoomStore
	dir    directory.Directory
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a room service.
func NewService(rooms store.RoomStore, dir directory.Directory, logger zerolog.Logger) *Service {
	return &Service{
		rooms:  rooms,
		dir:    dir,
		logger: logger.With().Str("component", "spaces").Logger(),
		now:    time.Now,
	}
}

// Exists reports whether exactly one room carries id. More than one is a
// consistency fault and returns store.ErrAmbiguous.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	defer metrics.ObserveStore("count_rooms", time.Now())

	n, err := s.rooms.CountRooms(ctx, id)
	if err != nil {
		return false, fmt.Errorf("counting room %s: %w", id, err)
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("room %s: %w", id, store.ErrAmbiguous)
	}
}

// Get returns the room or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*models.Room, error) {
	defer metrics.ObserveStore("get_room", time.Now())
	return s.rooms.GetRoom(ctx, id)
}

// Create persists a fresh room with sequence 0. Duplicates are rejected
// by the store with store.ErrAlreadyExists.
func (s *Service) Create(ctx context.Context, in NewRoom) (*models.Room, error) {
	defer metrics.ObserveStore("create_room", time.Now())

	now := s.now()
	room, err := s.rooms.CreateRoom(ctx, &models.Room{
		ID:           in.ID,
		DisplayName:  in.DisplayName,
		TeamID:       in.TeamID,
		OrgID:        in.OrgID,
		Active:       true,
		Sequence:     0,
		Memberships:  []string{},
		Moderators:   []string{},
		LastActivity: now,
		CreatedOn:    now,
	})
	if err != nil {
		return nil, err
	}
	metrics.RoomsCreated.Inc()
	s.logger.Info().Str("room_id", room.ID).Str("display_name", room.DisplayName).Msg("room created")
	return room, nil
}

// NextSequence reserves the room's next question number and stamps its
// activity. The increment is a single storage operation.
func (s *Service) NextSequence(ctx context.Context, id string) (int64, error) {
	defer metrics.ObserveStore("next_sequence", time.Now())
	seq, err := s.rooms.NextSequence(ctx, id, s.now())
	if err != nil {
		return 0, fmt.Errorf("reserving sequence in room %s: %w", id, err)
	}
	return seq, nil
}

// warn logs w and returns it.
func (s *Service) warn(w *fault.Warning) *fault.Warning {
	w.Log(s.logger)
	return w
}

func (s *Service) patch(ctx context.Context, op, id string, patch models.RoomPatch) *fault.Warning {
	defer metrics.ObserveStore("patch_room", time.Now())
	_, err := s.rooms.PatchRoom(ctx, id, patch)
	return s.warn(fault.Warn(op, id, err))
}

// RefreshProfile copies the platform's title and team onto the room.
func (s *Service) RefreshProfile(ctx context.Context, id string) *fault.Warning {
	profile, err := s.dir.GetRoomProfile(ctx, id)
	if err != nil {
		return s.warn(fault.Warn(OpRefreshProfile, id, err))
	}
	patch := models.RoomPatch{DisplayName: &profile.Title}
	if profile.TeamID != "" {
		patch.TeamID = &profile.TeamID
	}
	return s.patch(ctx, OpRefreshProfile, id, patch)
}

// Memberships walks every membership page for the room.
func (s *Service) Memberships(ctx context.Context, id string) ([]directory.Membership, error) {
	var all []directory.Membership
	next := ""
	for pages := 0; ; pages++ {
		if pages >= maxMembershipPages {
			return nil, ErrTooManyPages
		}
		page, err := s.dir.GetMembershipsPage(ctx, next, id)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextPageURL == "" {
			return all, nil
		}
		next = page.NextPageURL
	}
}

// SyncMemberships replaces the room's memberships and moderators with the
// platform's current list. A failed walk persists nothing.
func (s *Service) SyncMemberships(ctx context.Context, id string) *fault.Warning {
	all, err := s.Memberships(ctx, id)
	if err != nil {
		return s.warn(fault.Warn(OpSyncMemberships, id, err))
	}

	members := models.Members{
		Memberships: make([]string, 0, len(all)),
		Moderators:  []string{},
	}
	for _, m := range all {
		members.Memberships = append(members.Memberships, m.PersonID)
		if m.IsModerator {
			members.Moderators = append(members.Moderators, m.PersonID)
		}
	}
	return s.patch(ctx, OpSyncMemberships, id, models.RoomPatch{Members: &members})
}

// TouchActivity stamps the room's last activity with the current time.
func (s *Service) TouchActivity(ctx context.Context, id string) *fault.Warning {
	now := s.now()
	return s.patch(ctx, OpTouchActivity, id, models.RoomPatch{LastActivity: &now})
}

// SetActive records whether the bot is still a member of the room.
func (s *Service) SetActive(ctx context.Context, id string, active bool) *fault.Warning {
	return s.patch(ctx, OpSetActive, id, models.RoomPatch{Active: &active})
}

// SetMode switches the room's mode.
func (s *Service) SetMode(ctx context.Context, id, mode string) *fault.Warning {
	return s.patch(ctx, OpSetMode, id, models.RoomPatch{Mode: &mode})
}

// SetSticky replaces the room's sticky text. Unlike the other setters a
// failure here is returned to the caller.
func (s *Service) SetSticky(ctx context.Context, id, text string) error {
	defer metrics.ObserveStore("patch_room", time.Now())
	if _, err := s.rooms.PatchRoom(ctx, id, models.RoomPatch{Sticky: &text}); err != nil {
		return fmt.Errorf("setting sticky on room %s: %w", id, err)
	}
	return nil
}

// SetAnswerCount overwrites the room's answered-question count.
func (s *Service) SetAnswerCount(ctx context.Context, id string, n int64) *fault.Warning {
	return s.patch(ctx, OpSetAnswerCount, id, models.RoomPatch{AnswerCount: &n})
}

// IsModerator reports whether personID may moderate the room. A failed
// lookup allows the action.
func (s *Service) IsModerator(ctx context.Context, id, personID string) bool {
	room, err := s.Get(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", id).Str("person_id", personID).
			Msg("moderator lookup failed, allowing")
		return true
	}
	return room.HasModerator(personID)
}
