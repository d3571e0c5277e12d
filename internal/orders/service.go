package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, kind Kind, id int64) (Order, error)
	List(ctx context.Context, kind Kind, filter ListFilter) ([]Order, int, error)
	Stats(ctx context.Context, kind Kind, filter StatsFilter) (Stats, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards order creation against replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// LockPort serialises work on one order across processes.
type LockPort interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// LowStockNotifier is told about products a committed order left at or below threshold.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, levels []catalog.StockLevel) error
}

// TransitionObserver records status change outcomes and committed stock movements.
type TransitionObserver interface {
	ObserveTransition(kind, from, to, outcome string)
	ObserveStockMovement(kind string, delta int64)
}

// Invalidator drops derived views that include fulfilled order figures.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// ServiceOptions groups optional collaborators.
type ServiceOptions struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Locker      LockPort
	Notifier    LowStockNotifier
	Observer    TransitionObserver
	Invalidator Invalidator
	Logger      *slog.Logger
}

// Service coordinates purchase and sale operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	locker      LockPort
	notifier    LowStockNotifier
	observer    TransitionObserver
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       opts.Audit,
		idempotency: opts.Idempotency,
		locker:      opts.Locker,
		notifier:    opts.Notifier,
		observer:    opts.Observer,
		invalidator: opts.Invalidator,
		logger:      logger,
	}
}

// TransitionOutcome is the committed result of a status change.
type TransitionOutcome struct {
	Order          Order            `json:"order"`
	PreviousStatus Status           `json:"previous_status"`
	Transition     TransitionResult `json:"transition"`
}

// Get returns an order with its lines.
func (s *Service) Get(ctx context.Context, kind Kind, id int64) (Order, error) {
	if !kind.Valid() {
		return Order{}, fmt.Errorf("orders: unknown kind %q", kind)
	}
	return s.repo.Get(ctx, kind, id)
}

// List returns a page of order headers.
func (s *Service) List(ctx context.Context, kind Kind, filter ListFilter) (shared.Page[Order], error) {
	if filter.Status != "" && !kind.Allows(filter.Status) {
		return shared.Page[Order]{}, shared.NewValidationError("status", "is not a valid "+string(kind)+" status")
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return shared.Page[Order]{}, shared.NewValidationError("date_to", "must not be before date_from")
	}
	if filter.MinTotal != nil && filter.MaxTotal != nil && filter.MaxTotal.LessThan(*filter.MinTotal) {
		return shared.Page[Order]{}, shared.NewValidationError("max_total", "must not be less than min_total")
	}
	items, total, err := s.repo.List(ctx, kind, filter)
	if err != nil {
		return shared.Page[Order]{}, err
	}
	return shared.Page[Order]{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// Stats summarises fulfilled orders.
func (s *Service) Stats(ctx context.Context, kind Kind, filter StatsFilter) (Stats, error) {
	stats, err := s.repo.Stats(ctx, kind, filter)
	if err != nil {
		return Stats{}, err
	}
	if len(stats.ByCounterparty) > TopCounterparties {
		stats.ByCounterparty = stats.ByCounterparty[:TopCounterparties]
	}
	if len(stats.TopProducts) > TopProducts {
		stats.TopProducts = stats.TopProducts[:TopProducts]
	}
	return stats, nil
}

// Create validates and persists an order. When the initial status is the
// fulfilled one, stock and ledger effects are applied in the same transaction.
// A non-empty idempotencyKey rejects replays of the same request.
func (s *Service) Create(ctx context.Context, kind Kind, input CreateInput, idempotencyKey string) (Order, error) {
	if !kind.Valid() {
		return Order{}, fmt.Errorf("orders: unknown kind %q", kind)
	}
	if input.Status == "" {
		input.Status = StatusPending
	}
	if input.Status == StatusCancelled {
		return Order{}, &shared.InvalidStateError{Entity: string(kind), Action: "create cancelled"}
	}
	if !kind.Allows(input.Status) {
		return Order{}, &shared.InvalidStateError{Entity: string(kind), Action: "create " + string(input.Status)}
	}
	if err := validateCreate(input); err != nil {
		return Order{}, err
	}
	module := "orders:" + string(kind)
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	keyInserted := false
	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, module); err != nil {
			return Order{}, err
		}
		keyInserted = true
	}

	var created Order
	var result TransitionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkCounterparty(ctx, tx, kind, input.CounterpartyID); err != nil {
			return err
		}
		levels, err := checkProducts(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		lines, total := buildLines(kind, input.Lines, levels)
		order, err := tx.InsertOrder(ctx, Order{
			Kind:           kind,
			Date:           shared.NewDate(input.Date.Time),
			CounterpartyID: input.CounterpartyID,
			Status:         input.Status,
			Total:          total,
			Notes:          strings.TrimSpace(input.Notes),
		})
		if err != nil {
			return err
		}
		if order.Lines, err = tx.ReplaceLines(ctx, kind, order.ID, lines); err != nil {
			return err
		}
		if order.Fulfilled() {
			if result, err = ApplyTransition(ctx, tx, order, StatusPending, order.Status); err != nil {
				return err
			}
			order.LedgerEntryID = result.LedgerEntryID
		}
		created = order
		return nil
	})
	if err != nil {
		if keyInserted {
			_ = s.idempotency.Delete(ctx, idempotencyKey, module)
		}
		if input.Status != StatusPending {
			s.observe(kind, StatusPending, input.Status, err)
		}
		return Order{}, fmt.Errorf("orders: create %s: %w", kind, err)
	}

	if created.Fulfilled() {
		s.observe(kind, StatusPending, created.Status, nil)
		s.observeStock(kind, result.StockDeltas)
		s.invalidate(ctx)
	}
	s.record(ctx, "orders:"+string(kind)+"_create", created, map[string]any{
		"status": created.Status,
		"total":  created.Total.StringFixed(2),
		"lines":  len(created.Lines),
	})
	s.notify(ctx, result.LowStock)
	return created, nil
}

// Update changes header fields and, while the order is pending, its lines.
// Cancelled orders are read-only.
func (s *Service) Update(ctx context.Context, kind Kind, id int64, input UpdateInput) (Order, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Order{}, err
	}
	if input.Lines != nil {
		if len(input.Lines) == 0 {
			return Order{}, shared.NewValidationError("lines", "must contain at least 1 item(s)")
		}
		if err := validateLines(input.Lines); err != nil {
			return Order{}, err
		}
	}
	if input.Date != nil && input.Date.IsZero() {
		return Order{}, shared.NewValidationError("date", "is required")
	}

	release, err := s.acquire(ctx, kind, id)
	if err != nil {
		return Order{}, err
	}
	defer release()

	var updated Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, kind, id)
		if err != nil {
			return err
		}
		if order.Status == StatusCancelled {
			return &shared.InvalidStateError{Entity: string(kind), Status: string(order.Status), Action: "update"}
		}
		if input.Lines != nil && order.Status != StatusPending {
			return &shared.InvalidStateError{Entity: string(kind), Status: string(order.Status), Action: "replace lines of"}
		}
		if input.Date != nil {
			order.Date = shared.NewDate(input.Date.Time)
		}
		if input.CounterpartyID != nil && *input.CounterpartyID != order.CounterpartyID {
			if err := checkCounterparty(ctx, tx, kind, *input.CounterpartyID); err != nil {
				return err
			}
			order.CounterpartyID = *input.CounterpartyID
		}
		if input.Notes != nil {
			order.Notes = strings.TrimSpace(*input.Notes)
		}
		if input.Lines != nil {
			levels, err := checkProducts(ctx, tx, input.Lines)
			if err != nil {
				return err
			}
			lines, total := buildLines(kind, input.Lines, levels)
			if order.Lines, err = tx.ReplaceLines(ctx, kind, order.ID, lines); err != nil {
				return err
			}
			order.Total = total
		} else {
			if order.Lines, err = tx.ListLines(ctx, kind, order.ID); err != nil {
				return err
			}
			order.Total = linesTotal(order.Lines)
		}
		if err := tx.UpdateHeader(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("orders: update %s: %w", kind, err)
	}
	if updated.Fulfilled() {
		s.invalidate(ctx)
	}
	s.record(ctx, "orders:"+string(kind)+"_update", updated, map[string]any{
		"lines_replaced": input.Lines != nil,
		"total":          updated.Total.StringFixed(2),
	})
	return s.repo.Get(ctx, kind, id)
}

// ReplaceLines swaps every line of a pending order and recomputes its total.
func (s *Service) ReplaceLines(ctx context.Context, kind Kind, id int64, lines []LineInput) (Order, error) {
	if lines == nil {
		lines = []LineInput{}
	}
	return s.Update(ctx, kind, id, UpdateInput{Lines: lines})
}

// Transition moves an order to next, applying or reversing stock and ledger
// effects according to the status recorded under the order row lock.
func (s *Service) Transition(ctx context.Context, kind Kind, id int64, next Status) (TransitionOutcome, error) {
	if !kind.Valid() {
		return TransitionOutcome{}, fmt.Errorf("orders: unknown kind %q", kind)
	}
	if next == "" {
		return TransitionOutcome{}, shared.NewValidationError("status", "is required")
	}
	release, err := s.acquire(ctx, kind, id)
	if err != nil {
		s.observe(kind, "", next, err)
		return TransitionOutcome{}, err
	}
	defer release()

	var outcome TransitionOutcome
	var previous Status
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, kind, id)
		if err != nil {
			return err
		}
		if order.Lines, err = tx.ListLines(ctx, kind, order.ID); err != nil {
			return err
		}
		previous = order.Status
		result, err := ApplyTransition(ctx, tx, order, previous, next)
		if err != nil {
			return err
		}
		if previous != next {
			if err := tx.SetStatus(ctx, kind, order.ID, next); err != nil {
				return err
			}
		}
		outcome = TransitionOutcome{PreviousStatus: previous, Transition: result}
		return nil
	})
	s.observe(kind, previous, next, err)
	if err != nil {
		return TransitionOutcome{}, fmt.Errorf("orders: transition %s %d: %w", kind, id, err)
	}
	s.observeStock(kind, outcome.Transition.StockDeltas)
	if outcome.Transition.Effect != EffectNone {
		s.invalidate(ctx)
	}

	outcome.Order, err = s.repo.Get(ctx, kind, id)
	if err != nil {
		return TransitionOutcome{}, err
	}
	if outcome.PreviousStatus != next {
		s.record(ctx, "orders:"+string(kind)+"_transition", outcome.Order, map[string]any{
			"from":          outcome.PreviousStatus,
			"to":            next,
			"effect":        outcome.Transition.Effect,
			"ledger_action": outcome.Transition.LedgerAction,
		})
	}
	s.notify(ctx, outcome.Transition.LowStock)
	return outcome, nil
}

// Delete removes a non-fulfilled order, its lines and any linked ledger entry.
// Fulfilled orders must be cancelled first so their stock effect is reversed.
func (s *Service) Delete(ctx context.Context, kind Kind, id int64) error {
	if !kind.Valid() {
		return fmt.Errorf("orders: unknown kind %q", kind)
	}
	release, err := s.acquire(ctx, kind, id)
	if err != nil {
		return err
	}
	defer release()

	var deleted Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, kind, id)
		if err != nil {
			return err
		}
		if order.Fulfilled() {
			return &shared.InvalidStateError{Entity: string(kind), Status: string(order.Status), Action: "delete"}
		}
		if _, _, err := tx.DeleteLedgerEntry(ctx, kind.LedgerKind(), order.ID); err != nil {
			return err
		}
		if err := tx.DeleteOrder(ctx, kind, order.ID); err != nil {
			return err
		}
		deleted = order
		return nil
	})
	if err != nil {
		return fmt.Errorf("orders: delete %s %d: %w", kind, id, err)
	}
	s.record(ctx, "orders:"+string(kind)+"_delete", deleted, map[string]any{"status": deleted.Status})
	return nil
}

func (s *Service) acquire(ctx context.Context, kind Kind, id int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, shared.OrderLockKey(string(kind), id))
	if err == nil || errors.Is(err, shared.ErrConflict) {
		return release, err
	}
	// row locks still serialise the transition
	s.logger.Warn("order lock unavailable", slog.String("kind", string(kind)), slog.Int64("order_id", id), slog.Any("error", err))
	return func() {}, nil
}

func (s *Service) observe(kind Kind, from, to Status, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveTransition(string(kind), string(from), string(to), outcomeLabel(err))
}

func (s *Service) observeStock(kind Kind, deltas []StockDelta) {
	if s.observer == nil {
		return
	}
	for _, d := range deltas {
		s.observer.ObserveStockMovement(string(kind), d.Delta)
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	}
	return "error"
}

func (s *Service) record(ctx context.Context, action string, order Order, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   string(order.Kind),
		EntityID: strconv.FormatInt(order.ID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("dashboard invalidation failed", slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, levels []catalog.StockLevel) {
	if s.notifier == nil || len(levels) == 0 {
		return
	}
	if err := s.notifier.NotifyLowStock(ctx, levels); err != nil {
		s.logger.Warn("low stock notification failed", slog.Int("products", len(levels)), slog.Any("error", err))
	}
}

func validateCreate(input CreateInput) error {
	if err := shared.ValidateStruct(input); err != nil {
		return err
	}
	if input.Date.IsZero() {
		return shared.NewValidationError("date", "is required")
	}
	return validateLines(input.Lines)
}

func validateLines(lines []LineInput) error {
	for i, l := range lines {
		if err := shared.ValidateStruct(l); err != nil {
			var verr *shared.ValidationError
			if errors.As(err, &verr) {
				return shared.NewValidationError(fmt.Sprintf("lines[%d].%s", i, verr.Field), verr.Message)
			}
			return err
		}
		if l.UnitAmount == nil {
			continue
		}
		if l.UnitAmount.IsNegative() {
			return shared.NewValidationError(fmt.Sprintf("lines[%d].unit_amount", i), "must be at least 0")
		}
		if !l.UnitAmount.Equal(l.UnitAmount.Round(2)) {
			return shared.NewValidationError(fmt.Sprintf("lines[%d].unit_amount", i), "must have at most 2 decimal places")
		}
	}
	return nil
}

func checkCounterparty(ctx context.Context, tx TxRepository, kind Kind, id int64) error {
	ok, err := tx.CounterpartyExists(ctx, kind, id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NewNotFoundError(kind.Counterparty(), id)
	}
	return nil
}

// checkProducts loads the referenced products and reports the first line, in line
// order, whose product is missing.
func checkProducts(ctx context.Context, tx TxRepository, lines []LineInput) (map[int64]catalog.StockLevel, error) {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	levels, err := tx.ProductLevels(ctx, sorted)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := levels[id]; !ok {
			return nil, shared.NewNotFoundError("product", id)
		}
	}
	return levels, nil
}
