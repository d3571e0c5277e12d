// Package customers manages the counterparties of sales.
package customers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Customer buys products through sales.
type Customer struct {
	ID         int64     `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	DocumentID string    `json:"document_id"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Input creates or replaces a customer.
type Input struct {
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"max=100"`
	DocumentID string `json:"document_id" validate:"max=50"`
	Phone      string `json:"phone" validate:"max=50"`
	Email      string `json:"email" validate:"omitempty,email"`
	Address    string `json:"address" validate:"max=300"`
	City       string `json:"city" validate:"max=100"`
	State      string `json:"state" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
}

// ListFilter narrows customer listings.
type ListFilter struct {
	Search          string
	IncludeInactive bool
	Page            int
	PerPage         int
}

// minSearchLength is the shortest accepted search term.
const minSearchLength = 2

// RepositoryPort abstracts customer persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Customer, error)
	List(ctx context.Context, filter ListFilter) ([]Customer, int, error)
	Save(ctx context.Context, c Customer) (Customer, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Service coordinates customer operations.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Get returns a customer by id.
func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of customers. Search terms shorter than two characters are rejected.
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Page[Customer], error) {
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Search != "" && len([]rune(filter.Search)) < minSearchLength {
		return shared.Page[Customer]{}, shared.NewValidationError("search", "must be at least 2 characters")
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return shared.Page[Customer]{}, err
	}
	return shared.Page[Customer]{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// Create registers an active customer.
func (s *Service) Create(ctx context.Context, input Input) (Customer, error) {
	c, err := fromInput(input)
	if err != nil {
		return Customer{}, err
	}
	c.IsActive = true
	return s.repo.Save(ctx, c)
}

// Update replaces a customer's fields.
func (s *Service) Update(ctx context.Context, id int64, input Input) (Customer, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Customer{}, err
	}
	c, err := fromInput(input)
	if err != nil {
		return Customer{}, err
	}
	c.ID = id
	c.IsActive = current.IsActive
	return s.repo.Save(ctx, c)
}

// Deactivate soft-deletes a customer; existing sales keep referencing it.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.repo.SetActive(ctx, id, false)
}

func fromInput(input Input) (Customer, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := shared.ValidateStruct(input); err != nil {
		return Customer{}, err
	}
	return Customer{
		FirstName:  input.FirstName,
		LastName:   strings.TrimSpace(input.LastName),
		DocumentID: strings.TrimSpace(input.DocumentID),
		Phone:      strings.TrimSpace(input.Phone),
		Email:      input.Email,
		Address:    strings.TrimSpace(input.Address),
		City:       strings.TrimSpace(input.City),
		State:      strings.TrimSpace(input.State),
		PostalCode: strings.TrimSpace(input.PostalCode),
	}, nil
}
