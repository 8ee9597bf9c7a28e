package handler

import (
	"fmt"
	"net/http"
	"strconv"
)

// GetExport handles GET /export.
// Returns the filtered combined table as a spreadsheet download.
// Use ?format=csv for CSV; the default is xlsx.
func (s *Server) GetExport(w http.ResponseWriter, r *http.Request) {
	f, err := bindFilter(r)
	if err != nil {
		requestError(w, err.Error())
		return
	}

	file, err := s.invoices.Export(r.Context(), f, r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}
