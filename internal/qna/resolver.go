// Package qna decides whether an inbound message is a question or an
// answer and records it.
package qna

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inquire/internal/directory"
	"github.com/eldtechnologies/inquire/internal/fault"
	"github.com/eldtechnologies/inquire/internal/ledger"
	"github.com/eldtechnologies/inquire/internal/matcher"
	"github.com/eldtechnologies/inquire/internal/metrics"
	"github.com/eldtechnologies/inquire/internal/models"
	"github.com/eldtechnologies/inquire/internal/spaces"
	"github.com/eldtechnologies/inquire/internal/store"
)

// Resolver coordinates rooms, the ledger and the directory.
type Resolver struct {
	spaces *spaces.Service
	ledger *ledger.Ledger
	people directory.Directory
	logger zerolog.Logger
	now    func() time.Time
}

// NewResolver creates a resolver.
func NewResolver(sp *spaces.Service, l *ledger.Ledger, people directory.Directory, logger zerolog.Logger) *Resolver {
	return &Resolver{
		spaces: sp,
		ledger: l,
		people: people,
		logger: logger.With().Str("component", "qna").Logger(),
		now:    time.Now,
	}
}

// AnswerResult is the question after an answer was appended.
type AnswerResult struct {
	Question *models.Question
	Answer   models.Answer
}

// QuestionResult is a freshly logged question.
type QuestionResult struct {
	Question *models.Question
	// RoomCreated is set when this message created the room.
	RoomCreated bool
}

// HandleAnswer appends the message to the question it references.
func (r *Resolver) HandleAnswer(ctx context.Context, msg *models.InboundMessage) (*AnswerResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	ref, ok := matcher.Match(msg.Text, msg.HTML)
	if !ok {
		metrics.ResolutionFailures.WithLabelValues("malformed").Inc()
		return nil, ErrMalformedAnswerReference
	}

	r.spaces.TouchActivity(ctx, msg.Channel)
	r.enrichAuthor(ctx, msg)

	answer := models.Answer{
		AuthorEmail: msg.User,
		AuthorID:    msg.Data.PersonID,
		DisplayName: msg.PersonDisplayName,
		Text:        ref.Body,
		HTML:        ref.HTML,
		Files:       msg.Data.Files,
		CreatedOn:   r.now().UTC(),
	}
	q, err := r.ledger.RecordAnswer(ctx, msg.Channel, ref.Sequence, answer)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.ResolutionFailures.WithLabelValues("not_found").Inc()
			return nil, fmt.Errorf("%w: #%d in room %s", ErrQuestionNotFound, ref.Sequence, msg.Channel)
		}
		metrics.ResolutionFailures.WithLabelValues("internal").Inc()
		return nil, err
	}

	r.logger.Info().
		Str("room_id", msg.Channel).
		Int64("sequence", ref.Sequence).
		Str("person_id", msg.Data.PersonID).
		Msg("answer logged")
	last, _ := q.LastAnswer()
	return &AnswerResult{Question: q, Answer: last}, nil
}

// HandleQuestion logs the message as the room's next question, creating
// the room on first contact.
func (r *Resolver) HandleQuestion(ctx context.Context, msg *models.InboundMessage) (*QuestionResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	created := false
	for attempt := 0; attempt < 2; attempt++ {
		room, err := r.spaces.Get(ctx, msg.Channel)
		if err == nil {
			q, err := r.logQuestion(ctx, room, msg)
			if err != nil {
				metrics.ResolutionFailures.WithLabelValues("internal").Inc()
				return nil, err
			}
			return &QuestionResult{Question: q, RoomCreated: created}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			metrics.ResolutionFailures.WithLabelValues("internal").Inc()
			return nil, fmt.Errorf("loading room %s: %w", msg.Channel, err)
		}
		if attempt > 0 {
			break
		}

		created, err = r.createRoom(ctx, msg)
		if err != nil {
			metrics.ResolutionFailures.WithLabelValues("internal").Inc()
			return nil, err
		}
	}

	metrics.ResolutionFailures.WithLabelValues("room_unavailable").Inc()
	return nil, fmt.Errorf("%w: %s", ErrRoomUnavailable, msg.Channel)
}

func (r *Resolver) logQuestion(ctx context.Context, room *models.Room, msg *models.InboundMessage) (*models.Question, error) {
	r.enrichAuthor(ctx, msg)

	// A failed create below leaves this number unused; numbers may skip
	// but are never reused.
	seq, err := r.spaces.NextSequence(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	q := &models.Question{
		RoomID:      room.ID,
		Sequence:    seq,
		AuthorEmail: msg.User,
		AuthorID:    msg.Data.PersonID,
		DisplayName: msg.PersonDisplayName,
		Text:        msg.Text,
		HTML:        msg.HTML,
		Files:       msg.Data.Files,
		CreatedOn:   r.now().UTC(),
	}
	if err := r.ledger.Create(ctx, q); err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("room_id", room.ID).
		Int64("sequence", seq).
		Str("person_id", msg.Data.PersonID).
		Msg("question logged")
	return q, nil
}

// createRoom creates the message's room. It reports false without error
// when a concurrent request created the room first.
func (r *Resolver) createRoom(ctx context.Context, msg *models.InboundMessage) (bool, error) {
	r.enrichRoom(ctx, msg)

	_, err := r.spaces.Create(ctx, spaces.NewRoom{
		ID:          msg.Channel,
		DisplayName: msg.RoomTitle,
		TeamID:      msg.RoomTeamID,
		OrgID:       msg.OrgID,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		r.logger.Debug().Str("room_id", msg.Channel).Msg("room created concurrently")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating room %s: %w", msg.Channel, err)
	}

	r.spaces.SyncMemberships(ctx, msg.Channel)
	return true, nil
}

// enrichAuthor fills the sender's display name and email from the
// directory. On failure the message keeps what it already carried.
func (r *Resolver) enrichAuthor(ctx context.Context, msg *models.InboundMessage) {
	person, err := r.people.GetPerson(ctx, msg.Data.PersonID)
	if err != nil {
		fault.Warn("enrich_author", msg.Channel, err).Log(r.logger)
	} else {
		if person.DisplayName != "" {
			msg.PersonDisplayName = person.DisplayName
		}
		if email := person.Email(); email != "" {
			msg.User = email
		}
	}
	if msg.PersonDisplayName == "" {
		msg.PersonDisplayName = models.UnknownDisplayName
	}
}

// enrichRoom fills the room title, team and type from the directory.
func (r *Resolver) enrichRoom(ctx context.Context, msg *models.InboundMessage) {
	profile, err := r.people.GetRoomProfile(ctx, msg.Channel)
	if err != nil {
		fault.Warn("enrich_room", msg.Channel, err).Log(r.logger)
	} else {
		msg.RoomTitle = profile.Title
		msg.RoomTeamID = profile.TeamID
		msg.RoomType = profile.Type
	}
	if msg.RoomTitle == "" {
		msg.RoomTitle = models.UnknownDisplayName
	}
}
