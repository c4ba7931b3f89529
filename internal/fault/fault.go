// Package fault classifies failures of operations whose errors must not
// abort the caller.
//
// Fatal operations return a plain error. Best-effort operations return a
// *Warning instead, so a call site cannot propagate the failure by
// accident: the type says it is informational.
package fault

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inquire/internal/metrics"
)

// Warning records a best-effort operation that failed.
type Warning struct {
	Op     string
	RoomID string
	Err    error
}

// Warn builds a Warning, or returns nil when err is nil.
func Warn(op, roomID string, err error) *Warning {
	if err == nil {
		return nil
	}
	return &Warning{Op: op, RoomID: roomID, Err: err}
}

func (w *Warning) Error() string {
	return fmt.Sprintf("%s %s: %v", w.Op, w.RoomID, w.Err)
}

func (w *Warning) Unwrap() error {
	return w.Err
}

// Log writes the warning at warn level and counts it. Safe to call on a nil Warning.
func (w *Warning) Log(logger zerolog.Logger) {
	if w == nil {
		return
	}
	metrics.Warnings.WithLabelValues(w.Op).Inc()
	logger.Warn().
		Err(w.Err).
		Str("op", w.Op).
		Str("room_id", w.RoomID).
		Msg("best-effort operation failed")
}
