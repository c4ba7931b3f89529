package qna

import (
	"context"

	"github.com/eldtechnologies/inquire/internal/models"
	"github.com/eldtechnologies/inquire/internal/store"
)

// ListQuestions returns a window of the room's questions.
func (r *Resolver) ListQuestions(ctx context.Context, q store.QuestionQuery) (*store.QuestionPage, error) {
	return r.ledger.List(ctx, q)
}

// OpenQuestions returns the room's n most recent unanswered questions.
func (r *Resolver) OpenQuestions(ctx context.Context, roomID string, n int) (*store.QuestionPage, error) {
	return r.ledger.List(ctx, store.QuestionQuery{
		RoomID: roomID,
		Filter: store.FilterUnanswered,
		Sort:   store.DefaultSort,
		Limit:  n,
	})
}

// Room returns the room record.
func (r *Resolver) Room(ctx context.Context, id string) (*models.Room, error) {
	return r.spaces.Get(ctx, id)
}

// SetSticky replaces the room's sticky text on behalf of the sender.
func (r *Resolver) SetSticky(ctx context.Context, msg *models.InboundMessage, text string) error {
	if !r.spaces.IsModerator(ctx, msg.Channel, msg.Data.PersonID) {
		return ErrNotModerator
	}
	return r.spaces.SetSticky(ctx, msg.Channel, text)
}

// SetMode switches the room's mode on behalf of the sender.
func (r *Resolver) SetMode(ctx context.Context, msg *models.InboundMessage, mode string) error {
	if !r.spaces.IsModerator(ctx, msg.Channel, msg.Data.PersonID) {
		return ErrNotModerator
	}
	if w := r.spaces.SetMode(ctx, msg.Channel, mode); w != nil {
		return w
	}
	return nil
}

// Question returns one question by its sequence number.
func (r *Resolver) Question(ctx context.Context, roomID string, sequence int64) (*models.Question, error) {
	return r.ledger.Find(ctx, roomID, sequence)
}
