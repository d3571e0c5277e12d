// Package ledger stores expense and income entries. Entries linked to an order
// are owned by the order synchronizer; the rest are managed manually.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Kind selects the expenses or income book.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// Valid reports whether k is a known book.
func (k Kind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

func (k Kind) table() string {
	if k == KindIncome {
		return "income"
	}
	return "expenses"
}

func (k Kind) orderColumn() string {
	if k == KindIncome {
		return "sale_id"
	}
	return "purchase_id"
}

func (k Kind) orderConstraint() string {
	if k == KindIncome {
		return "income_sale_key"
	}
	return "expenses_purchase_key"
}

// Entry is a single expense or income record.
type Entry struct {
	ID          int64           `json:"id"`
	Kind        Kind            `json:"kind"`
	Date        shared.Date     `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	OrderID     *int64          `json:"order_id,omitempty"`
	SourceRef   *uuid.UUID      `json:"source_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Linked reports whether the entry belongs to an order.
func (e Entry) Linked() bool {
	return e.OrderID != nil
}

// sourceNamespace scopes deterministic references of order-linked entries.
var sourceNamespace = uuid.MustParse("0b6f5f3e-7c61-4c4e-9d0a-5d8a2f3c9e41")

// SourceRef derives the stable reference of the entry generated for an order.
func SourceRef(kind Kind, orderID int64) uuid.UUID {
	return uuid.NewSHA1(sourceNamespace, []byte(fmt.Sprintf("%s:%d", kind, orderID)))
}

// Input creates or replaces a manual entry.
type Input struct {
	Date        shared.Date     `json:"date"`
	Description string          `json:"description" validate:"required,max=500"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category" validate:"max=100"`
}

// ListFilter narrows entry listings.
type ListFilter struct {
	From     *time.Time
	To       *time.Time
	Category string
	Page     int
	PerPage  int
}

// CategoryTotal sums entries of one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Count    int64           `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

// Summary nets income against expenses over a period.
type Summary struct {
	From     *shared.Date    `json:"from,omitempty"`
	To       *shared.Date    `json:"to,omitempty"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}
