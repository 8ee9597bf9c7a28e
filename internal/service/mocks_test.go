package service_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/internal/repo"
	"github.com/pkordes/lesson-invoices/backend/internal/service"
)

// mockInvoiceRepo is a hand-written test double for repo.InvoiceRepo.
// Each method is a function field; set only the ones your test needs.
type mockInvoiceRepo struct {
	findByHash         func(ctx context.Context, hash string) (domain.StoredFile, error)
	findByFilename     func(ctx context.Context, filename string) (domain.StoredFile, error)
	save               func(ctx context.Context, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error)
	delete             func(ctx context.Context, id uuid.UUID) error
	replace            func(ctx context.Context, id uuid.UUID, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error)
	merge              func(ctx context.Context, id uuid.UUID, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error)
	listFiles          func(ctx context.Context) ([]domain.StoredFile, error)
	rowsByFile         func(ctx context.Context, id uuid.UUID) ([]domain.Row, error)
	allRows            func(ctx context.Context) (domain.Aggregate, error)
	getRow             func(ctx context.Context, id uuid.UUID) (domain.Row, error)
	setKilometers      func(ctx context.Context, id uuid.UUID, km float64) error
	setKilometersBatch func(ctx context.Context, updates []domain.KilometerUpdate) error
}

func (m *mockInvoiceRepo) FindByHash(ctx context.Context, hash string) (domain.StoredFile, error) {
	return m.findByHash(ctx, hash)
}
func (m *mockInvoiceRepo) FindByFilename(ctx context.Context, filename string) (domain.StoredFile, error) {
	return m.findByFilename(ctx, filename)
}
func (m *mockInvoiceRepo) Save(ctx context.Context, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error) {
	return m.save(ctx, filename, hash, pf)
}
func (m *mockInvoiceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.delete(ctx, id)
}
func (m *mockInvoiceRepo) Replace(ctx context.Context, id uuid.UUID, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error) {
	return m.replace(ctx, id, filename, hash, pf)
}
func (m *mockInvoiceRepo) Merge(ctx context.Context, id uuid.UUID, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error) {
	return m.merge(ctx, id, filename, hash, pf)
}
func (m *mockInvoiceRepo) ListFiles(ctx context.Context) ([]domain.StoredFile, error) {
	return m.listFiles(ctx)
}
func (m *mockInvoiceRepo) RowsByFile(ctx context.Context, id uuid.UUID) ([]domain.Row, error) {
	return m.rowsByFile(ctx, id)
}
func (m *mockInvoiceRepo) AllRows(ctx context.Context) (domain.Aggregate, error) {
	return m.allRows(ctx)
}
func (m *mockInvoiceRepo) GetRow(ctx context.Context, id uuid.UUID) (domain.Row, error) {
	return m.getRow(ctx, id)
}
func (m *mockInvoiceRepo) SetKilometers(ctx context.Context, id uuid.UUID, km float64) error {
	return m.setKilometers(ctx, id, km)
}
func (m *mockInvoiceRepo) SetKilometersBatch(ctx context.Context, updates []domain.KilometerUpdate) error {
	return m.setKilometersBatch(ctx, updates)
}

// compile-time check: mockInvoiceRepo must satisfy repo.InvoiceRepo.
var _ repo.InvoiceRepo = (*mockInvoiceRepo)(nil)

type mockParser struct {
	parse func(filename string, data []byte) (domain.ParsedFile, error)
}

func (m *mockParser) Parse(filename string, data []byte) (domain.ParsedFile, error) {
	return m.parse(filename, data)
}

var _ service.Parser = (*mockParser)(nil)

type mockAddressRepo struct {
	homeAddress   func(ctx context.Context) (string, error)
	clientAddress func(ctx context.Context, client string) (string, error)
	setHome       func(ctx context.Context, address string) error
	setClient     func(ctx context.Context, client, address string) error
	deleteClient  func(ctx context.Context, client string) error
	list          func(ctx context.Context) ([]domain.Address, error)
}

func (m *mockAddressRepo) HomeAddress(ctx context.Context) (string, error) {
	return m.homeAddress(ctx)
}
func (m *mockAddressRepo) ClientAddress(ctx context.Context, client string) (string, error) {
	return m.clientAddress(ctx, client)
}
func (m *mockAddressRepo) SetHome(ctx context.Context, address string) error {
	return m.setHome(ctx, address)
}
func (m *mockAddressRepo) SetClient(ctx context.Context, client, address string) error {
	return m.setClient(ctx, client, address)
}
func (m *mockAddressRepo) DeleteClient(ctx context.Context, client string) error {
	return m.deleteClient(ctx, client)
}
func (m *mockAddressRepo) List(ctx context.Context) ([]domain.Address, error) {
	return m.list(ctx)
}

var _ repo.AddressRepo = (*mockAddressRepo)(nil)
