// Package orders implements purchases and sales together with the synchronizer
// that keeps product stock and the ledger consistent with order status.
package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/ledger"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Kind distinguishes purchases from sales.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindSale     Kind = "sale"
)

// Status of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether k is a known order kind.
func (k Kind) Valid() bool {
	return k == KindPurchase || k == KindSale
}

// FulfilledStatus is the status at which stock and ledger effects apply.
func (k Kind) FulfilledStatus() Status {
	if k == KindSale {
		return StatusCompleted
	}
	return StatusReceived
}

// Allows reports whether s is a status an order of kind k can hold.
func (k Kind) Allows(s Status) bool {
	switch s {
	case StatusPending, StatusCancelled:
		return true
	case k.FulfilledStatus():
		return true
	}
	return false
}

// LedgerKind is the book that receives the order's entry.
func (k Kind) LedgerKind() ledger.Kind {
	if k == KindSale {
		return ledger.KindIncome
	}
	return ledger.KindExpense
}

// stockSign is the direction stock moves when the order is fulfilled.
func (k Kind) stockSign() int64 {
	if k == KindSale {
		return -1
	}
	return 1
}

// Counterparty names the entity on the other side of the order.
func (k Kind) Counterparty() string {
	if k == KindSale {
		return "customer"
	}
	return "supplier"
}

func (k Kind) table() string {
	if k == KindSale {
		return "sales"
	}
	return "purchases"
}

func (k Kind) itemsTable() string {
	if k == KindSale {
		return "sale_items"
	}
	return "purchase_items"
}

func (k Kind) itemsKey() string {
	if k == KindSale {
		return "sale_id"
	}
	return "purchase_id"
}

func (k Kind) counterpartyColumn() string {
	if k == KindSale {
		return "customer_id"
	}
	return "supplier_id"
}

func (k Kind) counterpartyTable() string {
	if k == KindSale {
		return "customers"
	}
	return "suppliers"
}

func (k Kind) ledgerDescription(orderID int64) string {
	if k == KindSale {
		return fmt.Sprintf("Sale #%d", orderID)
	}
	return fmt.Sprintf("Purchase #%d", orderID)
}

func (k Kind) ledgerCategory() string {
	if k == KindSale {
		return "Sales"
	}
	return "Inventory"
}

// Order is a purchase or sale header with its line items.
type Order struct {
	ID               int64           `json:"id"`
	Kind             Kind            `json:"kind"`
	Date             shared.Date     `json:"date"`
	CounterpartyID   int64           `json:"counterparty_id"`
	CounterpartyName string          `json:"counterparty_name,omitempty"`
	Status           Status          `json:"status"`
	Total            decimal.Decimal `json:"total"`
	Notes            string          `json:"notes"`
	Lines            []Line          `json:"lines,omitempty"`
	LedgerEntryID    *int64          `json:"ledger_entry_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Fulfilled reports whether the order currently carries stock and ledger effects.
func (o Order) Fulfilled() bool {
	return o.Status == o.Kind.FulfilledStatus()
}

// Line is one product entry of an order.
type Line struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	ProductID  int64           `json:"product_id"`
	Position   int             `json:"position"`
	Quantity   int64           `json:"quantity"`
	UnitAmount decimal.Decimal `json:"unit_amount"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// LineInput is a client-supplied line item. Subtotals and totals are always computed;
// an omitted UnitAmount is filled from the catalogue.
type LineInput struct {
	ProductID  int64            `json:"product_id" validate:"required,gt=0"`
	Quantity   int64            `json:"quantity" validate:"gt=0"`
	UnitAmount *decimal.Decimal `json:"unit_amount"`
}

// CreateInput creates an order.
type CreateInput struct {
	Date           shared.Date `json:"date"`
	CounterpartyID int64       `json:"counterparty_id" validate:"required,gt=0"`
	Status         Status      `json:"status"`
	Notes          string      `json:"notes" validate:"max=1000"`
	Lines          []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// UpdateInput patches an order. Nil fields are left unchanged; a non-nil Lines
// replaces every line item.
type UpdateInput struct {
	Date           *shared.Date `json:"date"`
	CounterpartyID *int64       `json:"counterparty_id" validate:"omitempty,gt=0"`
	Notes          *string      `json:"notes" validate:"omitempty,max=1000"`
	Lines          []LineInput  `json:"lines" validate:"omitempty,dive"`
}

// TransitionInput requests a status change.
type TransitionInput struct {
	Status Status `json:"status" validate:"required"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	From           *time.Time
	To             *time.Time
	Status         Status
	CounterpartyID *int64
	MinTotal       *decimal.Decimal
	MaxTotal       *decimal.Decimal
	Page           int
	PerPage        int
}

// StatsFilter bounds order statistics to a date range.
type StatsFilter struct {
	From *time.Time
	To   *time.Time
}

// CounterpartyStat aggregates fulfilled orders of one supplier or customer.
type CounterpartyStat struct {
	CounterpartyID int64           `json:"counterparty_id"`
	Name           string          `json:"name"`
	Count          int64           `json:"count"`
	Total          decimal.Decimal `json:"total"`
}

// MonthlyStat aggregates fulfilled orders of one calendar month.
type MonthlyStat struct {
	Month string          `json:"month"`
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// ProductStat aggregates the fulfilled lines of one product.
type ProductStat struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Quantity  int64           `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

const (
	// TopCounterparties bounds Stats.ByCounterparty, highest total first.
	TopCounterparties = 10
	// TopProducts bounds Stats.TopProducts, highest quantity first.
	TopProducts = 5
)

// Stats summarises fulfilled orders of one kind.
type Stats struct {
	Kind           Kind               `json:"kind"`
	Count          int64              `json:"count"`
	Total          decimal.Decimal    `json:"total"`
	ByCounterparty []CounterpartyStat `json:"by_counterparty"`
	Monthly        []MonthlyStat      `json:"monthly"`
	TopProducts    []ProductStat      `json:"top_products"`
}

// buildLines numbers the inputs and computes subtotals and the order total. A line
// without a unit amount takes the product's price on a sale and its cost on a purchase.
func buildLines(kind Kind, inputs []LineInput, levels map[int64]catalog.StockLevel) ([]Line, decimal.Decimal) {
	lines := make([]Line, 0, len(inputs))
	total := decimal.Zero
	for i, in := range inputs {
		var unit decimal.Decimal
		switch {
		case in.UnitAmount != nil:
			unit = *in.UnitAmount
		case kind == KindSale:
			unit = levels[in.ProductID].Price
		default:
			unit = levels[in.ProductID].Cost
		}
		subtotal := unit.Mul(decimal.NewFromInt(in.Quantity))
		lines = append(lines, Line{
			ProductID:  in.ProductID,
			Position:   i + 1,
			Quantity:   in.Quantity,
			UnitAmount: unit,
			Subtotal:   subtotal,
		})
		total = total.Add(subtotal)
	}
	return lines, total
}

// linesTotal recomputes the total of persisted lines.
func linesTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitAmount.Mul(decimal.NewFromInt(l.Quantity)))
	}
	return total
}
