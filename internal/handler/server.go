// Package handler implements the HTTP handlers for the invoice tracker API.
// All handlers are methods on Server. Methods are split into resource-specific
// files (upload.go, invoices.go, etc.) but share the same Server struct so they
// can access its dependencies.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/internal/service"
	"github.com/pkordes/lesson-invoices/backend/spec"
)

// Uploader defines the upload operations the upload handlers depend on.
// Defining the interface here (in the consumer package) lets handler tests
// inject a mock without touching the database or service layer.
type Uploader interface {
	UploadAll(ctx context.Context, files []service.UploadFile) []domain.UploadOutcome
	Resolve(ctx context.Context, pendingID uuid.UUID, decision domain.Decision) (domain.UploadOutcome, error)
}

// InvoiceServicer defines the read, delete and export operations on stored invoices.
type InvoiceServicer interface {
	Aggregate(ctx context.Context) (domain.Aggregate, error)
	ListFiles(ctx context.Context) ([]domain.StoredFile, error)
	DeleteFile(ctx context.Context, id uuid.UUID) error
	ListRows(ctx context.Context, f domain.RowFilter, p domain.PaginationParams) (service.RowPage, error)
	Export(ctx context.Context, f domain.RowFilter, format string) (service.ExportFile, error)
}

// RouteServicer defines the distance operations.
type RouteServicer interface {
	ComputeAll(ctx context.Context) (service.RouteSummary, error)
	RefreshRow(ctx context.Context, id uuid.UUID) (domain.Row, error)
	ClearCache(ctx context.Context) error
}

// AddressServicer defines the address book operations.
type AddressServicer interface {
	List(ctx context.Context) ([]domain.Address, error)
	SetHome(ctx context.Context, address string) error
	SetClient(ctx context.Context, client, address string) error
	DeleteClient(ctx context.Context, client string) error
}

// Server holds the dependencies of every endpoint.
type Server struct {
	uploads   Uploader
	invoices  InvoiceServicer
	routes    RouteServicer
	addresses AddressServicer
}

// NewServer constructs the Server with all its dependencies.
func NewServer(uploads Uploader, invoices InvoiceServicer, routes RouteServicer, addresses AddressServicer) *Server {
	return &Server{uploads: uploads, invoices: invoices, routes: routes, addresses: addresses}
}

// Routes registers every endpoint on a new chi router.
// Global middleware (logging, CORS, recovery) is applied by the caller.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", serveOpenAPI)

	r.Post("/uploads", s.PostUploads)
	r.Post("/uploads/{pendingId}/resolve", s.ResolveUpload)

	r.Get("/files", s.ListFiles)
	r.Delete("/files/{fileId}", s.DeleteFile)

	r.Get("/invoices", s.GetInvoices)
	r.Get("/rows", s.ListRows)
	r.Post("/rows/{rowId}/refresh", s.RefreshRow)
	r.Get("/export", s.GetExport)

	r.Post("/routes/compute", s.ComputeRoutes)
	r.Delete("/distance-cache", s.ClearDistanceCache)

	r.Get("/addresses", s.ListAddresses)
	r.Put("/addresses/home", s.PutHomeAddress)
	r.Put("/addresses/clients/{name}", s.PutClientAddress)
	r.Delete("/addresses/clients/{name}", s.DeleteClientAddress)

	return r
}

// GetHealth handles GET /healthz.
// It returns HTTP 200 with {"status":"ok"} when the server is running.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(spec.OpenAPI)
}
