package handlers

import (
	"net/http"

	"github.com/eldtechnologies/inquire/internal/metrics"
	"github.com/eldtechnologies/inquire/internal/models"
)

// DuplicateResponse acknowledges a delivery that was already processed.
type DuplicateResponse struct {
	Duplicate bool `json:"duplicate"`
}

// Messages handles an inbound chat message and returns the bot's reply.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	var msg models.InboundMessage
	if !h.decodeJSON(w, r, &msg) {
		return
	}
	if err := msg.Validate(); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	msg.User = normalizeEmail(msg.User)
	msg.Text = sanitizeText(msg.Text)
	msg.HTML = sanitizeText(msg.HTML)

	if h.isDuplicate(r, msg.ID) {
		metrics.DuplicateDeliveries.Inc()
		h.JSON(w, http.StatusOK, DuplicateResponse{Duplicate: true})
		return
	}

	reply := h.bot.Handle(r.Context(), msg)
	if reply.Failed {
		h.forgetDelivery(r, msg.ID)
	}
	h.JSON(w, http.StatusOK, reply)
}

// isDuplicate records the delivery id and reports whether it was seen
// before. Without Redis, or when Redis fails, every delivery is processed.
func (h *Handler) isDuplicate(r *http.Request, id string) bool {
	if h.redis == nil || id == "" {
		return false
	}
	first, err := h.redis.MarkDelivered(r.Context(), id)
	if err != nil {
		h.logger.Warn().Err(err).Str("message_id", id).Msg("delivery dedupe unavailable")
		return false
	}
	return !first
}

// forgetDelivery releases a delivery id whose processing failed, so the
// platform's retry is not suppressed.
func (h *Handler) forgetDelivery(r *http.Request, id string) {
	if h.redis == nil || id == "" {
		return
	}
	if err := h.redis.ForgetDelivery(r.Context(), id); err != nil {
		h.logger.Warn().Err(err).Str("message_id", id).Msg("failed to release delivery id")
	}
}

// SpaceEventResponse reports the room after a membership event.
type SpaceEventResponse struct {
	Room    *models.Room `json:"room,omitempty"`
	Ignored bool         `json:"ignored,omitempty"`
}

// Spaces handles the bot joining or leaving a conversation.
func (h *Handler) Spaces(w http.ResponseWriter, r *http.Request) {
	var ev models.SpaceEvent
	if !h.decodeJSON(w, r, &ev) {
		return
	}
	if err := ev.Validate(); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	switch ev.Event {
	case models.SpaceJoin:
		room, err := h.resolver.HandleSpaceJoin(r.Context(), ev)
		if err != nil {
			h.logger.Error().Err(err).Str("room_id", ev.Channel).Msg("space join failed")
			h.Error(w, http.StatusInternalServerError, "failed to record space")
			return
		}
		h.JSON(w, http.StatusOK, SpaceEventResponse{Room: room, Ignored: room == nil})
	default:
		// Leave is best-effort; the resolver has already logged any warning.
		h.resolver.HandleSpaceLeave(r.Context(), ev)
		h.JSON(w, http.StatusOK, SpaceEventResponse{})
	}
}
