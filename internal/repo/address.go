package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// AddressRepo stores the home address and one address per client name.
// Client names are matched case-insensitively after trimming.
type AddressRepo interface {
	// HomeAddress returns the home address, or "" when none is set.
	HomeAddress(ctx context.Context) (string, error)

	// ClientAddress returns the address for a client, or "" when none is set.
	ClientAddress(ctx context.Context, client string) (string, error)

	// SetHome stores the home address, replacing any previous one.
	SetHome(ctx context.Context, address string) error

	// SetClient stores the address of one client, replacing any previous one.
	SetClient(ctx context.Context, client, address string) error

	// DeleteClient removes a client address.
	// Returns domain.ErrNotFound if the client has no stored address.
	DeleteClient(ctx context.Context, client string) error

	// List returns the home address (if set) followed by client addresses by name.
	List(ctx context.Context) ([]domain.Address, error)
}

// pgAddressRepo is the Postgres implementation of AddressRepo.
type pgAddressRepo struct {
	db db
}

// NewAddressRepo constructs an AddressRepo backed by the provided db connection.
func NewAddressRepo(db db) AddressRepo {
	return &pgAddressRepo{db: db}
}

func clientKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *pgAddressRepo) HomeAddress(ctx context.Context) (string, error) {
	a, err := r.lookup(ctx, domain.AddressHome, "")
	if err != nil {
		return "", fmt.Errorf("repo.AddressRepo.HomeAddress: %w", err)
	}
	return a, nil
}

func (r *pgAddressRepo) ClientAddress(ctx context.Context, client string) (string, error) {
	a, err := r.lookup(ctx, domain.AddressClient, clientKey(client))
	if err != nil {
		return "", fmt.Errorf("repo.AddressRepo.ClientAddress: %w", err)
	}
	return a, nil
}

func (r *pgAddressRepo) lookup(ctx context.Context, kind domain.AddressKind, key string) (string, error) {
	const q = `SELECT address FROM addresses WHERE kind = @kind AND client_key = @key`

	var addr string
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"kind": string(kind), "key": key}).Scan(&addr)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	return addr, nil
}

func (r *pgAddressRepo) SetHome(ctx context.Context, address string) error {
	if err := r.upsert(ctx, domain.AddressHome, "", address); err != nil {
		return fmt.Errorf("repo.AddressRepo.SetHome: %w", err)
	}
	return nil
}

func (r *pgAddressRepo) SetClient(ctx context.Context, client, address string) error {
	if err := r.upsert(ctx, domain.AddressClient, strings.TrimSpace(client), address); err != nil {
		return fmt.Errorf("repo.AddressRepo.SetClient: %w", err)
	}
	return nil
}

func (r *pgAddressRepo) upsert(ctx context.Context, kind domain.AddressKind, name, address string) error {
	const q = `
		INSERT INTO addresses (kind, client_name, client_key, address)
		VALUES (@kind, @name, @key, @address)
		ON CONFLICT (kind, client_key)
		DO UPDATE SET client_name = EXCLUDED.client_name, address = EXCLUDED.address, updated_at = now()`

	_, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"kind":    string(kind),
		"name":    name,
		"key":     clientKey(name),
		"address": strings.TrimSpace(address),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	return nil
}

func (r *pgAddressRepo) DeleteClient(ctx context.Context, client string) error {
	const q = `DELETE FROM addresses WHERE kind = 'client' AND client_key = @key`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"key": clientKey(client)})
	if err != nil {
		return fmt.Errorf("repo.AddressRepo.DeleteClient: %w: %w", domain.ErrStore, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.AddressRepo.DeleteClient: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *pgAddressRepo) List(ctx context.Context) ([]domain.Address, error) {
	const q = `
		SELECT kind, client_name, address FROM addresses
		ORDER BY kind = 'home' DESC, client_key`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.AddressRepo.List: %w: %w", domain.ErrStore, err)
	}
	defer rows.Close()

	out := []domain.Address{}
	for rows.Next() {
		var (
			a    domain.Address
			kind string
		)
		if err := rows.Scan(&kind, &a.ClientName, &a.Address); err != nil {
			return nil, fmt.Errorf("repo.AddressRepo.List: scan: %w", err)
		}
		a.Kind = domain.AddressKind(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.AddressRepo.List: rows: %w", err)
	}
	return out, nil
}
