package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts ledger persistence. *Queries satisfies it.
type RepositoryPort interface {
	Get(ctx context.Context, kind Kind, id int64) (Entry, error)
	List(ctx context.Context, kind Kind, filter ListFilter) ([]Entry, int, error)
	Insert(ctx context.Context, e Entry) (Entry, error)
	Update(ctx context.Context, e Entry) (Entry, error)
	Delete(ctx context.Context, kind Kind, id int64) error
	Totals(ctx context.Context, kind Kind, from, to *time.Time) ([]CategoryTotal, error)
	Sum(ctx context.Context, kind Kind, from, to *time.Time) (decimal.Decimal, error)
}

// Service manages manual ledger entries and reporting.
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

// Get returns one entry.
func (s *Service) Get(ctx context.Context, kind Kind, id int64) (Entry, error) {
	if !kind.Valid() {
		return Entry{}, fmt.Errorf("ledger: unknown kind %q", kind)
	}
	return s.repo.Get(ctx, kind, id)
}

// List returns a page of entries.
func (s *Service) List(ctx context.Context, kind Kind, filter ListFilter) (shared.Page[Entry], error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return shared.Page[Entry]{}, shared.NewValidationError("date_to", "must not be before date_from")
	}
	items, total, err := s.repo.List(ctx, kind, filter)
	if err != nil {
		return shared.Page[Entry]{}, err
	}
	return shared.Page[Entry]{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// Create records a manual entry.
func (s *Service) Create(ctx context.Context, kind Kind, input Input) (Entry, error) {
	e, err := fromInput(kind, input)
	if err != nil {
		return Entry{}, err
	}
	saved, err := s.repo.Insert(ctx, e)
	if err != nil {
		return Entry{}, err
	}
	s.logger.Info("ledger entry created", slog.String("kind", string(kind)), slog.Int64("id", saved.ID), slog.String("amount", saved.Amount.StringFixed(2)))
	return saved, nil
}

// Update edits a manual entry. Order-linked entries are read-only.
func (s *Service) Update(ctx context.Context, kind Kind, id int64, input Input) (Entry, error) {
	current, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return Entry{}, err
	}
	if current.Linked() {
		return Entry{}, &shared.InvalidStateError{Entity: "order-linked " + string(kind), Action: "update"}
	}
	e, err := fromInput(kind, input)
	if err != nil {
		return Entry{}, err
	}
	e.ID = id
	return s.repo.Update(ctx, e)
}

// Delete removes a manual entry. Order-linked entries are read-only.
func (s *Service) Delete(ctx context.Context, kind Kind, id int64) error {
	current, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if current.Linked() {
		return &shared.InvalidStateError{Entity: "order-linked " + string(kind), Action: "delete"}
	}
	return s.repo.Delete(ctx, kind, id)
}

// Totals groups a period's entries by category.
func (s *Service) Totals(ctx context.Context, kind Kind, from, to *time.Time) ([]CategoryTotal, error) {
	return s.repo.Totals(ctx, kind, from, to)
}

// Summary nets income against expenses, reading both books concurrently.
func (s *Service) Summary(ctx context.Context, from, to *time.Time) (Summary, error) {
	var income, expenses decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		income, err = s.repo.Sum(gctx, KindIncome, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.repo.Sum(gctx, KindExpense, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	out := Summary{Income: income, Expenses: expenses, Net: income.Sub(expenses)}
	if from != nil {
		d := shared.NewDate(*from)
		out.From = &d
	}
	if to != nil {
		d := shared.NewDate(*to)
		out.To = &d
	}
	return out, nil
}

func fromInput(kind Kind, input Input) (Entry, error) {
	input.Description = strings.TrimSpace(input.Description)
	input.Category = strings.TrimSpace(input.Category)
	if err := shared.ValidateStruct(input); err != nil {
		return Entry{}, err
	}
	if input.Date.IsZero() {
		return Entry{}, shared.NewValidationError("date", "is required")
	}
	if !input.Amount.IsPositive() {
		return Entry{}, shared.NewValidationError("amount", "must be greater than 0")
	}
	return Entry{
		Kind:        kind,
		Date:        shared.NewDate(input.Date.Time),
		Description: input.Description,
		Amount:      input.Amount.Round(2),
		Category:    input.Category,
	}, nil
}
