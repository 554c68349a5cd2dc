package pagination

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/caldercommerce/storefront/pkg/errors"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 20
	// MaxLimit caps how many rows any list query can request.
	MaxLimit = 100
)

// Params holds offset pagination inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Meta describes the page returned alongside list data.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// Page wraps list data with its pagination metadata.
type Page[T any] struct {
	Data       []T  `json:"data"`
	Pagination Meta `json:"pagination"`
}

// Normalize clamps the params to the allowed ranges.
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset returns the row offset for the normalized page.
func (p Params) Offset() int {
	normalized := p.Normalize()
	return (normalized.Page - 1) * normalized.Limit
}

// NewMeta computes pagination metadata for a total row count.
func NewMeta(params Params, total int64) Meta {
	normalized := params.Normalize()
	totalPages := int((total + int64(normalized.Limit) - 1) / int64(normalized.Limit))
	if totalPages < 1 && total == 0 {
		totalPages = 0
	}
	return Meta{
		Page:       normalized.Page,
		Limit:      normalized.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    normalized.Page < totalPages,
		HasPrev:    normalized.Page > 1 && total > 0,
	}
}

// NewPage assembles a page response, never serializing data as null.
func NewPage[T any](data []T, params Params, total int64) Page[T] {
	if data == nil {
		data = []T{}
	}
	return Page[T]{Data: data, Pagination: NewMeta(params, total)}
}

// FromRequest parses and validates page/limit query parameters.
func FromRequest(r *http.Request) (Params, error) {
	params := Params{Page: 1, Limit: DefaultLimit}

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Params{}, pkgerrors.New(pkgerrors.CodeValidation, "page must be a positive integer").
				WithDetails(map[string]any{"field": "page"})
		}
		params.Page = page
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > MaxLimit {
			return Params{}, pkgerrors.New(pkgerrors.CodeValidation, "limit must be between 1 and 100").
				WithDetails(map[string]any{"field": "limit", "min": 1, "max": MaxLimit})
		}
		params.Limit = limit
	}

	return params, nil
}
