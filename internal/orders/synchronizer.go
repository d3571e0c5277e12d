package orders

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/ledger"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// EffectStore is the transactional surface the synchronizer mutates. All calls
// must run inside the same transaction as the order status change.
type EffectStore interface {
	LockProducts(ctx context.Context, ids []int64) (map[int64]catalog.StockLevel, error)
	AdjustStock(ctx context.Context, productID, delta int64) (catalog.StockLevel, error)
	FindLedgerEntry(ctx context.Context, kind ledger.Kind, orderID int64) (ledger.Entry, bool, error)
	InsertLedgerEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error)
	DeleteLedgerEntry(ctx context.Context, kind ledger.Kind, orderID int64) (int64, bool, error)
}

// Effect is what a status change does to stock and the ledger.
type Effect string

const (
	// EffectNone leaves stock and ledger untouched.
	EffectNone Effect = "none"
	// EffectApply moves stock and books the ledger entry.
	EffectApply Effect = "apply"
	// EffectReverse undoes a previous EffectApply.
	EffectReverse Effect = "reverse"
)

// LedgerAction reports what happened to the order's ledger entry.
type LedgerAction string

const (
	LedgerUntouched LedgerAction = ""
	LedgerCreated   LedgerAction = "created"
	LedgerExisting  LedgerAction = "existing"
	LedgerDeleted   LedgerAction = "deleted"
)

// StockDelta is the change applied to one product.
type StockDelta struct {
	ProductID int64 `json:"product_id"`
	Delta     int64 `json:"delta"`
	Stock     int64 `json:"stock"`
}

// TransitionResult describes the effects of ApplyTransition.
type TransitionResult struct {
	Effect        Effect               `json:"effect"`
	StockDeltas   []StockDelta         `json:"stock_deltas,omitempty"`
	LedgerEntryID *int64               `json:"ledger_entry_id,omitempty"`
	LedgerAction  LedgerAction         `json:"ledger_action,omitempty"`
	LowStock      []catalog.StockLevel `json:"low_stock,omitempty"`
}

// Plan validates a status change and reports its effect. Decisions depend on
// the previously recorded status, never on an assumed one.
func Plan(kind Kind, previous, next Status) (Effect, error) {
	if !kind.Valid() {
		return EffectNone, fmt.Errorf("orders: unknown kind %q", kind)
	}
	if !kind.Allows(previous) {
		return EffectNone, &shared.InvalidStateError{Entity: string(kind), Status: string(previous), Action: "transition"}
	}
	if !kind.Allows(next) {
		return EffectNone, &shared.InvalidStateError{Entity: string(kind), Status: string(previous), Action: "set status " + string(next) + " on"}
	}
	if previous == StatusCancelled && next != StatusCancelled {
		return EffectNone, &shared.InvalidStateError{Entity: string(kind), Status: string(previous), Action: "set status " + string(next) + " on"}
	}
	fulfilled := kind.FulfilledStatus()
	switch {
	case previous != fulfilled && next == fulfilled:
		return EffectApply, nil
	case previous == fulfilled && next != fulfilled:
		return EffectReverse, nil
	}
	return EffectNone, nil
}

// ApplyTransition moves stock and the ledger to match the change from previous
// to next. order must carry its lines and total. Every negative delta is checked
// against the locked stock before anything is written.
func ApplyTransition(ctx context.Context, store EffectStore, order Order, previous, next Status) (TransitionResult, error) {
	effect, err := Plan(order.Kind, previous, next)
	if err != nil {
		return TransitionResult{}, err
	}
	result := TransitionResult{Effect: effect}
	if effect == EffectNone {
		return result, nil
	}

	sign := order.Kind.stockSign()
	if effect == EffectReverse {
		sign = -sign
	}

	// Quantities per product, in first-seen line order.
	var seen []int64
	quantities := make(map[int64]int64)
	for _, line := range order.Lines {
		if _, ok := quantities[line.ProductID]; !ok {
			seen = append(seen, line.ProductID)
		}
		quantities[line.ProductID] += line.Quantity
	}
	ids := append([]int64(nil), seen...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	levels, err := store.LockProducts(ctx, ids)
	if err != nil {
		return TransitionResult{}, err
	}
	for _, id := range seen {
		level, ok := levels[id]
		if !ok {
			return TransitionResult{}, shared.NewNotFoundError("product", id)
		}
		qty := quantities[id]
		if sign < 0 && level.Stock < qty {
			return TransitionResult{}, &shared.InsufficientStockError{
				ProductID:   id,
				ProductName: level.Name,
				Available:   level.Stock,
				Requested:   qty,
			}
		}
	}

	for _, id := range ids {
		delta := sign * quantities[id]
		level, err := store.AdjustStock(ctx, id, delta)
		if err != nil {
			return TransitionResult{}, err
		}
		result.StockDeltas = append(result.StockDeltas, StockDelta{ProductID: id, Delta: delta, Stock: level.Stock})
		if delta < 0 && level.LowStock() {
			result.LowStock = append(result.LowStock, level)
		}
	}

	ledgerKind := order.Kind.LedgerKind()
	if effect == EffectApply {
		existing, found, err := store.FindLedgerEntry(ctx, ledgerKind, order.ID)
		if err != nil {
			return TransitionResult{}, err
		}
		if found {
			result.LedgerEntryID = &existing.ID
			result.LedgerAction = LedgerExisting
			return result, nil
		}
		orderID := order.ID
		ref := ledger.SourceRef(ledgerKind, order.ID)
		entry, err := store.InsertLedgerEntry(ctx, ledger.Entry{
			Kind:        ledgerKind,
			Date:        order.Date,
			Description: order.Kind.ledgerDescription(order.ID),
			Amount:      order.Total,
			Category:    order.Kind.ledgerCategory(),
			OrderID:     &orderID,
			SourceRef:   &ref,
		})
		if err != nil {
			return TransitionResult{}, err
		}
		result.LedgerEntryID = &entry.ID
		result.LedgerAction = LedgerCreated
		return result, nil
	}

	id, found, err := store.DeleteLedgerEntry(ctx, ledgerKind, order.ID)
	if err != nil {
		return TransitionResult{}, err
	}
	if found {
		result.LedgerEntryID = &id
		result.LedgerAction = LedgerDeleted
	}
	return result, nil
}
