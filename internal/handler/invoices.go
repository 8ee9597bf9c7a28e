package handler

import (
	"net/http"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// Pagination describes the page returned by a list endpoint.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type rowsResponse struct {
	Columns    []string     `json:"columns"`
	Data       []domain.Row `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// GetInvoices handles GET /invoices: the combined table of every stored file.
func (s *Server) GetInvoices(w http.ResponseWriter, r *http.Request) {
	agg, err := s.invoices.Aggregate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// ListFiles handles GET /files.
func (s *Server) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.invoices.ListFiles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": files})
}

// DeleteFile handles DELETE /files/{fileId}.
func (s *Server) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "fileId")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	if err := s.invoices.DeleteFile(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRows handles GET /rows.
// Supports ?page= and ?limit= (defaults: page=1, limit=20, max=100) plus the
// client, from, to, sort and order filters.
func (s *Server) ListRows(w http.ResponseWriter, r *http.Request) {
	f, err := bindFilter(r)
	if err != nil {
		requestError(w, err.Error())
		return
	}
	p, err := bindPagination(r)
	if err != nil {
		requestError(w, err.Error())
		return
	}

	page, err := s.invoices.ListRows(r.Context(), f, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rowsResponse{
		Columns:    page.Columns,
		Data:       page.Rows,
		Pagination: Pagination{Page: p.Page, Limit: p.Limit, Total: page.Total},
	})
}
