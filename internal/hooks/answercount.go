// Package hooks holds the side effects that run around ledger writes.
package hooks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inquire/internal/fault"
	"github.com/eldtechnologies/inquire/internal/models"
)

// Counter counts a room's answered questions.
type Counter interface {
	AnswerCount(ctx context.Context, roomID string) (int64, error)
}

// Patcher stores a room's answered-question count.
type Patcher interface {
	SetAnswerCount(ctx context.Context, roomID string, n int64) *fault.Warning
}

// AnswerCount recomputes the room's answer count after an answer lands.
// The count is denormalized; a failed sync leaves it stale until the next
// successful one.
type AnswerCount struct {
	Counter Counter
	Patcher Patcher
	Log     zerolog.Logger
}

// OpCountAnswers labels a failed recount.
const OpCountAnswers = "count_answers"

// AfterAnswer implements ledger.AnswerHook.
func (h *AnswerCount) AfterAnswer(ctx context.Context, q *models.Question) {
	h.Sync(ctx, q.RoomID)
}

// Sync recounts and stores the room's answer count. Failures are already
// logged when returned.
func (h *AnswerCount) Sync(ctx context.Context, roomID string) *fault.Warning {
	n, err := h.Counter.AnswerCount(ctx, roomID)
	if err != nil {
		w := fault.Warn(OpCountAnswers, roomID, err)
		w.Log(h.Log)
		return w
	}
	return h.Patcher.SetAnswerCount(ctx, roomID, n)
}
