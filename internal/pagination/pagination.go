// Package pagination derives page metadata and links from an offset window.
package pagination

import (
	"errors"
	"net/url"
	"strconv"
)

// ErrZeroLimit is returned for count-only windows, which have no pages.
var ErrZeroLimit = errors.New("pagination: limit must be positive")

// Meta describes where a result window sits in the full result set.
type Meta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	From        int `json:"from"`
	To          int `json:"to"`
	PerPage     int `json:"per_page"`
	Limit       int `json:"-"`
	Skip        int `json:"-"`
	Total       int `json:"-"`
}

// Format computes page metadata for a window of limit items starting
// after skip, out of total.
func Format(limit, skip, total int) (Meta, error) {
	if limit <= 0 {
		return Meta{}, ErrZeroLimit
	}
	if skip < 0 {
		skip = 0
	}
	m := Meta{
		CurrentPage: skip/limit + 1,
		LastPage:    (total + limit - 1) / limit,
		From:        skip + 1,
		PerPage:     limit,
		Limit:       limit,
		Skip:        skip,
		Total:       total,
	}
	// A partial last page ends at skip plus what remains of it.
	remaining := total - skip
	switch {
	case remaining/limit >= 1:
		m.To = skip + limit
	case remaining > 0:
		m.To = skip + remaining%limit
	default:
		m.To = skip
	}
	return m, nil
}

// HasNext reports whether a page follows this one.
func (m Meta) HasNext() bool {
	return m.Skip+m.Limit < m.Total
}

// HasPrev reports whether a page precedes this one.
func (m Meta) HasPrev() bool {
	return m.Skip > 0
}

// Links builds next/prev URLs from the request's base URL and query. Either
// is empty when there is no such page.
func Links(base *url.URL, query url.Values, m Meta) (next, prev string) {
	if base == nil {
		return "", ""
	}
	if m.HasNext() {
		next = pageURL(base, query, m.Limit, m.Skip+m.Limit)
	}
	if m.HasPrev() {
		skip := m.Skip - m.Limit
		if skip < 0 {
			skip = 0
		}
		prev = pageURL(base, query, m.Limit, skip)
	}
	return next, prev
}

func pageURL(base *url.URL, query url.Values, limit, skip int) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	// page and skip both address the window; the link speaks in skip.
	q.Del("page")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("skip", strconv.Itoa(skip))
	u := *base
	u.RawQuery = q.Encode()
	return u.String()
}

// Envelope is a list result decorated with page metadata.
type Envelope[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
	Limit int `json:"limit"`
	Skip  int `json:"skip"`

	*Meta
	NextPageURL string `json:"next_page_url,omitempty"`
	PrevPageURL string `json:"prev_page_url,omitempty"`
}

// Decorate wraps a result window. Page metadata and links are attached
// only for a positive limit; base may be nil when the request has no
// usable origin.
func Decorate[T any](data []T, total, limit, skip int, base *url.URL, query url.Values) Envelope[T] {
	env := Envelope[T]{Data: data, Total: total, Limit: limit, Skip: skip}
	if env.Data == nil {
		env.Data = []T{}
	}
	m, err := Format(limit, skip, total)
	if err != nil {
		return env
	}
	env.Meta = &m
	env.NextPageURL, env.PrevPageURL = Links(base, query, m)
	return env
}
