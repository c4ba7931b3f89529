package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/inquire/internal/pagination"
	"github.com/eldtechnologies/inquire/internal/store"
)

// GetSpace returns a room record.
func (h *Handler) GetSpace(w http.ResponseWriter, r *http.Request) {
	room, err := h.resolver.Room(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err, "space not found")
		return
	}
	h.JSON(w, http.StatusOK, room)
}

// ListQuestions lists a room's questions. Query parameters: filter
// (answered|unanswered), sort (field|asc or field|dsc), limit, page or
// skip, and search.
func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := store.DefaultLimit
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = store.ClampLimit(n)
	}

	skip := 0
	if v := query.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.Error(w, http.StatusBadRequest, "skip must be a non-negative integer")
			return
		}
		skip = n
	} else if v := query.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.Error(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		skip = store.PageToSkip(n, limit)
	}

	roomID := chi.URLParam(r, "id")
	page, err := h.resolver.ListQuestions(r.Context(), store.QuestionQuery{
		RoomID: roomID,
		Filter: store.ParseFilter(query.Get("filter")),
		Sort:   store.ParseSort(query.Get("sort")),
		Limit:  limit,
		Skip:   skip,
		Search: query.Get("search"),
	})
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("listing questions failed")
		h.Error(w, http.StatusInternalServerError, "failed to list questions")
		return
	}

	h.JSON(w, http.StatusOK, pagination.Decorate(page.Items, page.Total, page.Limit, page.Skip, requestBase(r), query))
}

// GetQuestion returns one question by its sequence number.
func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "sequence"), 10, 64)
	if err != nil || seq < 1 {
		h.Error(w, http.StatusBadRequest, "invalid sequence")
		return
	}

	q, err := h.resolver.Question(r.Context(), chi.URLParam(r, "id"), seq)
	if err != nil {
		h.storeError(w, err, "question not found")
		return
	}
	h.JSON(w, http.StatusOK, q)
}

// storeError maps a store error to a response.
func (h *Handler) storeError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		h.Error(w, http.StatusNotFound, notFound)
		return
	}
	h.logger.Error().Err(err).Msg("store lookup failed")
	h.Error(w, http.StatusInternalServerError, "internal error")
}

// requestBase returns the absolute URL of the request without its query.
func requestBase(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return &url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path}
}
