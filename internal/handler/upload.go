package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/internal/service"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// uploadResponse is the body of POST /uploads.
type uploadResponse struct {
	Results []domain.UploadOutcome `json:"results"`
}

// PostUploads handles POST /uploads.
// Accepts one or more spreadsheets in the multipart field "files" and reports
// an outcome per file. Files that cannot be read are reported individually.
func (s *Server) PostUploads(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorBody(w, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds the size limit")
			return
		}
		requestError(w, "expected multipart/form-data with field \"files\"")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		requestError(w, "no files uploaded")
		return
	}

	// Outcomes follow the order the files were sent in.
	results := make([]domain.UploadOutcome, len(headers))
	var (
		files []service.UploadFile
		slots []int
	)
	for i, fh := range headers {
		name := filepath.Base(fh.Filename)
		data, err := readPart(fh)
		if err != nil {
			results[i] = failed(name, err.Error())
			continue
		}
		files = append(files, service.UploadFile{Filename: name, Data: data})
		slots = append(slots, i)
	}
	if len(files) > 0 {
		for j, o := range s.uploads.UploadAll(r.Context(), files) {
			if j < len(slots) {
				results[slots[j]] = o
			}
		}
	}

	writeJSON(w, http.StatusOK, uploadResponse{Results: results})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(fh.Filename)) {
	case ".xlsx", ".xlsm":
	default:
		return nil, fmt.Errorf("unsupported file type %q: %w", filepath.Ext(fh.Filename), domain.ErrParse)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func failed(name, msg string) domain.UploadOutcome {
	return domain.UploadOutcome{Filename: name, Status: domain.UploadFailed, Error: msg}
}

type resolveRequest struct {
	Decision domain.Decision `json:"decision"`
}

// ResolveUpload handles POST /uploads/{pendingId}/resolve.
func (s *Server) ResolveUpload(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "pendingId")
	if err != nil {
		requestError(w, err.Error())
		return
	}
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		requestError(w, err.Error())
		return
	}

	out, err := s.uploads.Resolve(r.Context(), id, req.Decision)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
