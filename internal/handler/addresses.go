package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type addressRequest struct {
	Address string `json:"address"`
}

// ListAddresses handles GET /addresses.
func (s *Server) ListAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := s.addresses.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

// PutHomeAddress handles PUT /addresses/home.
func (s *Server) PutHomeAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		requestError(w, err.Error())
		return
	}
	if err := s.addresses.SetHome(r.Context(), req.Address); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutClientAddress handles PUT /addresses/clients/{name}.
func (s *Server) PutClientAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		requestError(w, err.Error())
		return
	}
	if err := s.addresses.SetClient(r.Context(), chi.URLParam(r, "name"), req.Address); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteClientAddress handles DELETE /addresses/clients/{name}.
func (s *Server) DeleteClientAddress(w http.ResponseWriter, r *http.Request) {
	if err := s.addresses.DeleteClient(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
