package store

import (
	"regexp"
	"strings"

	"github.com/eldtechnologies/inquire/internal/models"
)

const (
	// DefaultLimit is the page size when the caller gives none.
	DefaultLimit = 10
	// MaxLimit caps the page size.
	MaxLimit = 100
)

// Filter restricts a listing by answered state.
type Filter string

const (
	FilterNone       Filter = ""
	FilterAnswered   Filter = "answered"
	FilterUnanswered Filter = "unanswered"
)

// ParseFilter maps caller input to a Filter; anything unknown means none.
func ParseFilter(s string) Filter {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterAnswered:
		return FilterAnswered
	case FilterUnanswered:
		return FilterUnanswered
	default:
		return FilterNone
	}
}

// SortField names a sortable question attribute.
type SortField string

const (
	SortCreatedOn   SortField = "createdOn"
	SortSequence    SortField = "sequence"
	SortDisplayName SortField = "displayName"
)

// Sort orders a listing.
type Sort struct {
	Field SortField
	Desc  bool
}

// DefaultSort is newest first.
var DefaultSort = Sort{Field: SortCreatedOn, Desc: true}

var sortRegex = regexp.MustCompile(`(?i)^(createdOn|sequence|displayName)\|(asc|dsc)$`)

// ParseSort reads a "field|direction" expression. Malformed input yields
// DefaultSort; it never fails.
func ParseSort(expr string) Sort {
	m := sortRegex.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return DefaultSort
	}
	var field SortField
	switch strings.ToLower(m[1]) {
	case "createdon":
		field = SortCreatedOn
	case "sequence":
		field = SortSequence
	default:
		field = SortDisplayName
	}
	return Sort{Field: field, Desc: strings.EqualFold(m[2], "dsc")}
}

// Column returns the SQL column for the field.
func (s Sort) Column() string {
	switch s.Field {
	case SortSequence:
		return "sequence"
	case SortDisplayName:
		return "display_name"
	default:
		return "created_on"
	}
}

// OrderBy returns the SQL ORDER BY list. Ties break on sequence.
func (s Sort) OrderBy() string {
	order := s.Column() + " " + s.Direction()
	if s.Field != SortSequence {
		order += ", sequence " + s.Direction()
	}
	return order
}

// Direction returns ASC or DESC.
func (s Sort) Direction() string {
	if s.Desc {
		return "DESC"
	}
	return "ASC"
}

// QuestionQuery selects a window of a room's questions.
type QuestionQuery struct {
	RoomID string
	Filter Filter
	Sort   Sort
	// Limit of zero asks for the total only.
	Limit  int
	Skip   int
	Search string
}

// QuestionPage is one window of a listing plus the size of the full set.
type QuestionPage struct {
	Items []models.Question `json:"data"`
	Total int               `json:"total"`
	Limit int               `json:"limit"`
	Skip  int               `json:"skip"`
}

// ClampLimit applies the default and maximum page size. A zero limit is
// kept for count-only queries; negative means "unspecified".
func ClampLimit(limit int) int {
	switch {
	case limit < 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// PageToSkip converts a 1-based page number to an offset.
func PageToSkip(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
