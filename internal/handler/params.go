package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// uuidParam parses a UUID path parameter.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: must be a UUID", name)
	}
	return id, nil
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// filterParams holds the query parameters shared by /rows and /export.
type filterParams struct {
	Client *string
	From   *openapi_types.Date
	To     *openapi_types.Date
	Sort   *string
	Order  *string
}

func bindFilter(r *http.Request) (domain.RowFilter, error) {
	q := r.URL.Query()
	var p filterParams
	for name, dst := range map[string]any{
		"client": &p.Client,
		"from":   &p.From,
		"to":     &p.To,
		"sort":   &p.Sort,
		"order":  &p.Order,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, q, dst); err != nil {
			return domain.RowFilter{}, fmt.Errorf("invalid %s parameter", name)
		}
	}

	f := domain.RowFilter{}
	if p.Client != nil {
		f.Client = *p.Client
	}
	if p.From != nil {
		t := p.From.Time
		f.From = &t
	}
	if p.To != nil {
		t := p.To.Time
		f.To = &t
	}
	if p.Sort != nil {
		f.SortBy = *p.Sort
	}
	if p.Order != nil {
		switch strings.ToLower(*p.Order) {
		case "asc":
		case "desc":
			f.Desc = true
		default:
			return domain.RowFilter{}, fmt.Errorf("invalid order parameter: must be asc or desc")
		}
	}
	return f, nil
}

func bindPagination(r *http.Request) (domain.PaginationParams, error) {
	q := r.URL.Query()
	var page, limit *int
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &page); err != nil {
		return domain.PaginationParams{}, fmt.Errorf("invalid page parameter")
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		return domain.PaginationParams{}, fmt.Errorf("invalid limit parameter")
	}
	return domain.NewPaginationParams(page, limit), nil
}
