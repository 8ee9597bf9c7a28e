package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/internal/handler"
	"github.com/pkordes/lesson-invoices/backend/internal/service"
)

// Test doubles for the handler interfaces. Set only the method fields your
// test needs; an unset field panics, flagging an unexpected call.

type mockUploader struct {
	uploadAll func(ctx context.Context, files []service.UploadFile) []domain.UploadOutcome
	resolve   func(ctx context.Context, id uuid.UUID, d domain.Decision) (domain.UploadOutcome, error)
}

func (m *mockUploader) UploadAll(ctx context.Context, files []service.UploadFile) []domain.UploadOutcome {
	return m.uploadAll(ctx, files)
}
func (m *mockUploader) Resolve(ctx context.Context, id uuid.UUID, d domain.Decision) (domain.UploadOutcome, error) {
	return m.resolve(ctx, id, d)
}

type mockInvoices struct {
	aggregate  func(ctx context.Context) (domain.Aggregate, error)
	listFiles  func(ctx context.Context) ([]domain.StoredFile, error)
	deleteFile func(ctx context.Context, id uuid.UUID) error
	listRows   func(ctx context.Context, f domain.RowFilter, p domain.PaginationParams) (service.RowPage, error)
	export     func(ctx context.Context, f domain.RowFilter, format string) (service.ExportFile, error)
}

func (m *mockInvoices) Aggregate(ctx context.Context) (domain.Aggregate, error) {
	return m.aggregate(ctx)
}
func (m *mockInvoices) ListFiles(ctx context.Context) ([]domain.StoredFile, error) {
	return m.listFiles(ctx)
}
func (m *mockInvoices) DeleteFile(ctx context.Context, id uuid.UUID) error {
	return m.deleteFile(ctx, id)
}
func (m *mockInvoices) ListRows(ctx context.Context, f domain.RowFilter, p domain.PaginationParams) (service.RowPage, error) {
	return m.listRows(ctx, f, p)
}
func (m *mockInvoices) Export(ctx context.Context, f domain.RowFilter, format string) (service.ExportFile, error) {
	return m.export(ctx, f, format)
}

type mockRoutes struct {
	computeAll func(ctx context.Context) (service.RouteSummary, error)
	refreshRow func(ctx context.Context, id uuid.UUID) (domain.Row, error)
	clearCache func(ctx context.Context) error
}

func (m *mockRoutes) ComputeAll(ctx context.Context) (service.RouteSummary, error) {
	return m.computeAll(ctx)
}
func (m *mockRoutes) RefreshRow(ctx context.Context, id uuid.UUID) (domain.Row, error) {
	return m.refreshRow(ctx, id)
}
func (m *mockRoutes) ClearCache(ctx context.Context) error { return m.clearCache(ctx) }

type mockAddresses struct {
	list         func(ctx context.Context) ([]domain.Address, error)
	setHome      func(ctx context.Context, address string) error
	setClient    func(ctx context.Context, client, address string) error
	deleteClient func(ctx context.Context, client string) error
}

func (m *mockAddresses) List(ctx context.Context) ([]domain.Address, error) { return m.list(ctx) }
func (m *mockAddresses) SetHome(ctx context.Context, address string) error {
	return m.setHome(ctx, address)
}
func (m *mockAddresses) SetClient(ctx context.Context, client, address string) error {
	return m.setClient(ctx, client, address)
}
func (m *mockAddresses) DeleteClient(ctx context.Context, client string) error {
	return m.deleteClient(ctx, client)
}

var (
	_ handler.Uploader        = (*mockUploader)(nil)
	_ handler.InvoiceServicer = (*mockInvoices)(nil)
	_ handler.RouteServicer   = (*mockRoutes)(nil)
	_ handler.AddressServicer = (*mockAddresses)(nil)
)

// ---- helpers ---------------------------------------------------------------

// deps bundles the mocks; nil fields are replaced by empty mocks.
type deps struct {
	uploads   *mockUploader
	invoices  *mockInvoices
	routes    *mockRoutes
	addresses *mockAddresses
}

func newHTTPHandler(d deps) http.Handler {
	if d.uploads == nil {
		d.uploads = &mockUploader{}
	}
	if d.invoices == nil {
		d.invoices = &mockInvoices{}
	}
	if d.routes == nil {
		d.routes = &mockRoutes{}
	}
	if d.addresses == nil {
		d.addresses = &mockAddresses{}
	}
	return handler.NewServer(d.uploads, d.invoices, d.routes, d.addresses).Routes()
}

func serve(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorDetail {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func lessonRow(client string, amount float64) domain.Row {
	r := domain.NewRow()
	r.ID = uuid.New()
	r.FileID = uuid.New()
	r.Set("Client", domain.StringValue(client))
	r.Set("Amount", domain.NumberValue(amount))
	return r
}
