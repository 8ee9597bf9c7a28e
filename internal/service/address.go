package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/internal/repo"
)

// AddressService validates and stores the home and client addresses.
type AddressService struct {
	repo repo.AddressRepo
}

// NewAddressService constructs an AddressService backed by the provided AddressRepo.
func NewAddressService(r repo.AddressRepo) *AddressService {
	return &AddressService{repo: r}
}

// List returns the home address first, then client addresses by name.
func (s *AddressService) List(ctx context.Context) ([]domain.Address, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.AddressService.List: %w", err)
	}
	return out, nil
}

// SetHome stores the home address.
func (s *AddressService) SetHome(ctx context.Context, address string) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("service.AddressService.SetHome: address is required: %w", domain.ErrValidation)
	}
	if err := s.repo.SetHome(ctx, address); err != nil {
		return fmt.Errorf("service.AddressService.SetHome: %w", err)
	}
	return nil
}

// SetClient stores the address of one client.
func (s *AddressService) SetClient(ctx context.Context, client, address string) error {
	if strings.TrimSpace(client) == "" {
		return fmt.Errorf("service.AddressService.SetClient: client name is required: %w", domain.ErrValidation)
	}
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("service.AddressService.SetClient: address is required: %w", domain.ErrValidation)
	}
	if err := s.repo.SetClient(ctx, client, address); err != nil {
		return fmt.Errorf("service.AddressService.SetClient: %w", err)
	}
	return nil
}

// DeleteClient removes a client address.
func (s *AddressService) DeleteClient(ctx context.Context, client string) error {
	if err := s.repo.DeleteClient(ctx, client); err != nil {
		return fmt.Errorf("service.AddressService.DeleteClient: %w", err)
	}
	return nil
}
