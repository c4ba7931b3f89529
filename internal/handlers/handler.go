package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inquire/internal/bot"
	"github.com/eldtechnologies/inquire/internal/qna"
	"github.com/eldtechnologies/inquire/internal/store"
)

// maxTextLength caps the text and html of an inbound message.
const maxTextLength = 7439

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store    store.DataStore
	driver   string
	redis    *store.RedisStore
	bot      *bot.Bot
	resolver *qna.Resolver
	logger   zerolog.Logger
}

// Deps lists what the handlers need. Redis is optional.
type Deps struct {
	Store    store.DataStore
	Driver   string
	Redis    *store.RedisStore
	Bot      *bot.Bot
	Resolver *qna.Resolver
	Logger   zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		store:    d.Store,
		driver:   d.Driver,
		redis:    d.Redis,
		bot:      d.Bot,
		resolver: d.Resolver,
		logger:   d.Logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug().Err(err).Msg("writing response failed")
	}
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads the request body into v, answering the request itself
// when that fails.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	h.Error(w, http.StatusBadRequest, "invalid JSON")
	return false
}

// sanitizeText removes control characters other than newlines and tabs
// and caps the length.
func sanitizeText(text string) string {
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, text)

	if len(text) > maxTextLength {
		text = strings.ToValidUTF8(text[:maxTextLength], "")
	}
	return text
}

// normalizeEmail returns the bare address, or "" when s is not one. The
// directory lookup fills it in later.
func normalizeEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 254 {
		return ""
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return ""
	}
	return addr.Address
}
