package handler

import "net/http"

// ComputeRoutes handles POST /routes/compute.
// Runs the day-route calculator over every stored row and reports warnings.
func (s *Server) ComputeRoutes(w http.ResponseWriter, r *http.Request) {
	sum, err := s.routes.ComputeAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// RefreshRow handles POST /rows/{rowId}/refresh.
func (s *Server) RefreshRow(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "rowId")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	row, err := s.routes.RefreshRow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// ClearDistanceCache handles DELETE /distance-cache.
func (s *Server) ClearDistanceCache(w http.ResponseWriter, r *http.Request) {
	if err := s.routes.ClearCache(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
