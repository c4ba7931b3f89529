package qna

import (
	"context"
	"errors"
	"fmt"

	"github.com/eldtechnologies/inquire/internal/fault"
	"github.com/eldtechnologies/inquire/internal/models"
	"github.com/eldtechnologies/inquire/internal/spaces"
	"github.com/eldtechnologies/inquire/internal/store"
)

// HandleSpaceJoin records the bot joining a conversation. Direct
// conversations, and those whose profile cannot be fetched, are not tracked
// and return a nil room.
func (r *Resolver) HandleSpaceJoin(ctx context.Context, ev models.SpaceEvent) (*models.Room, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	exists, err := r.spaces.Exists(ctx, ev.Channel)
	if err != nil {
		return nil, err
	}
	if exists {
		r.spaces.SyncMemberships(ctx, ev.Channel)
		r.spaces.SetActive(ctx, ev.Channel, true)
		return r.spaces.Get(ctx, ev.Channel)
	}

	// Without a profile the room type is unknown; the first question
	// creates the room instead.
	profile, err := r.people.GetRoomProfile(ctx, ev.Channel)
	if err != nil {
		fault.Warn("space_join_profile", ev.Channel, err).Log(r.logger)
		return nil, nil
	}
	if profile.Type == models.RoomTypeDirect {
		r.logger.Debug().Str("room_id", ev.Channel).Msg("ignoring direct conversation")
		return nil, nil
	}

	title := profile.Title
	if title == "" {
		title = models.UnknownDisplayName
	}
	_, err = r.spaces.Create(ctx, spaces.NewRoom{
		ID:          ev.Channel,
		DisplayName: title,
		TeamID:      profile.TeamID,
		OrgID:       ev.OrgID,
	})
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return nil, fmt.Errorf("creating room %s: %w", ev.Channel, err)
	}
	r.spaces.SyncMemberships(ctx, ev.Channel)
	return r.spaces.Get(ctx, ev.Channel)
}

// HandleSpaceLeave marks the room inactive.
func (r *Resolver) HandleSpaceLeave(ctx context.Context, ev models.SpaceEvent) *fault.Warning {
	return r.spaces.SetActive(ctx, ev.Channel, false)
}
