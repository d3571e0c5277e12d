package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/ledger"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

var errInjected = errors.New("injected failure")

type memoryState struct {
	products       map[int64]catalog.StockLevel
	counterparties map[Kind]map[int64]string
	orders         map[Kind]map[int64]Order
	lines          map[Kind]map[int64][]Line
	entries        map[ledger.Kind]map[int64]ledger.Entry
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		products:       make(map[int64]catalog.StockLevel, len(s.products)),
		counterparties: map[Kind]map[int64]string{},
		orders:         map[Kind]map[int64]Order{},
		lines:          map[Kind]map[int64][]Line{},
		entries:        map[ledger.Kind]map[int64]ledger.Entry{},
	}
	for id, p := range s.products {
		out.products[id] = p
	}
	for k, m := range s.counterparties {
		out.counterparties[k] = make(map[int64]string, len(m))
		for id, v := range m {
			out.counterparties[k][id] = v
		}
	}
	for k, m := range s.orders {
		out.orders[k] = make(map[int64]Order, len(m))
		for id, v := range m {
			out.orders[k][id] = v
		}
	}
	for k, m := range s.lines {
		out.lines[k] = make(map[int64][]Line, len(m))
		for id, v := range m {
			out.lines[k][id] = append([]Line(nil), v...)
		}
	}
	for k, m := range s.entries {
		out.entries[k] = make(map[int64]ledger.Entry, len(m))
		for id, v := range m {
			out.entries[k][id] = v
		}
	}
	return out
}

// memoryRepo serialises transactions with one mutex and restores a snapshot when
// the callback fails, mirroring commit/rollback.
type memoryRepo struct {
	mu     sync.Mutex
	state  memoryState
	nextID int64
	failOn string
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		products:       map[int64]catalog.StockLevel{},
		counterparties: map[Kind]map[int64]string{KindPurchase: {}, KindSale: {}},
		orders:         map[Kind]map[int64]Order{KindPurchase: {}, KindSale: {}},
		lines:          map[Kind]map[int64][]Line{KindPurchase: {}, KindSale: {}},
		entries:        map[ledger.Kind]map[int64]ledger.Entry{ledger.KindExpense: {}, ledger.KindIncome: {}},
	}}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) addProduct(name string, stock, minStock int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.id()
	r.state.products[id] = catalog.StockLevel{ProductID: id, Name: name, SKU: fmt.Sprintf("SKU-%d", id), Stock: stock, MinStock: minStock}
	return id
}

func (r *memoryRepo) setPrices(id int64, price, cost string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.state.products[id]
	p.Price = decimal.RequireFromString(price)
	p.Cost = decimal.RequireFromString(cost)
	r.state.products[id] = p
}

func (r *memoryRepo) addCounterparty(kind Kind, name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.id()
	r.state.counterparties[kind][id] = name
	return id
}

func (r *memoryRepo) stock(id int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.products[id].Stock
}

func (r *memoryRepo) ledgerEntries(kind ledger.Kind) []ledger.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.Entry, 0, len(r.state.entries[kind]))
	for _, e := range r.state.entries[kind] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) orderCount(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.orders[kind])
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	nextID := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.state = snapshot
		r.nextID = nextID
		return err
	}
	return nil
}

func (r *memoryRepo) withLedger(kind Kind, o Order) Order {
	o.CounterpartyName = r.state.counterparties[kind][o.CounterpartyID]
	for _, e := range r.state.entries[kind.LedgerKind()] {
		if e.OrderID != nil && *e.OrderID == o.ID {
			id := e.ID
			o.LedgerEntryID = &id
		}
	}
	return o
}

func (r *memoryRepo) Get(ctx context.Context, kind Kind, id int64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.state.orders[kind][id]
	if !ok {
		return Order{}, shared.NewNotFoundError(string(kind), id)
	}
	o = r.withLedger(kind, o)
	o.Lines = append([]Line{}, r.state.lines[kind][id]...)
	return o, nil
}

func (r *memoryRepo) matching(kind Kind, keep func(Order) bool) []Order {
	var out []Order
	for _, o := range r.state.orders[kind] {
		if keep(o) {
			out = append(out, r.withLedger(kind, o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func inDateRange(d shared.Date, from, to *time.Time) bool {
	if from != nil && d.Before(*from) {
		return false
	}
	if to != nil && d.After(*to) {
		return false
	}
	return true
}

func (r *memoryRepo) List(ctx context.Context, kind Kind, filter ListFilter) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.matching(kind, func(o Order) bool {
		if !inDateRange(o.Date, filter.From, filter.To) {
			return false
		}
		if filter.Status != "" && o.Status != filter.Status {
			return false
		}
		if filter.CounterpartyID != nil && o.CounterpartyID != *filter.CounterpartyID {
			return false
		}
		if filter.MinTotal != nil && o.Total.LessThan(*filter.MinTotal) {
			return false
		}
		if filter.MaxTotal != nil && o.Total.GreaterThan(*filter.MaxTotal) {
			return false
		}
		return true
	})
	return out, len(out), nil
}

func (r *memoryRepo) Stats(ctx context.Context, kind Kind, filter StatsFilter) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{Kind: kind, Total: decimal.Zero, ByCounterparty: []CounterpartyStat{}, Monthly: []MonthlyStat{}, TopProducts: []ProductStat{}}
	byCounterparty := map[int64]*CounterpartyStat{}
	byMonth := map[string]*MonthlyStat{}
	byProduct := map[int64]*ProductStat{}
	for _, o := range r.matching(kind, func(o Order) bool {
		return o.Fulfilled() && inDateRange(o.Date, filter.From, filter.To)
	}) {
		stats.Count++
		stats.Total = stats.Total.Add(o.Total)
		c, ok := byCounterparty[o.CounterpartyID]
		if !ok {
			c = &CounterpartyStat{CounterpartyID: o.CounterpartyID, Name: o.CounterpartyName}
			byCounterparty[o.CounterpartyID] = c
		}
		c.Count++
		c.Total = c.Total.Add(o.Total)
		month := o.Date.Format("2006-01")
		m, ok := byMonth[month]
		if !ok {
			m = &MonthlyStat{Month: month}
			byMonth[month] = m
		}
		m.Count++
		m.Total = m.Total.Add(o.Total)
		for _, l := range r.state.lines[kind][o.ID] {
			p, ok := byProduct[l.ProductID]
			if !ok {
				lvl := r.state.products[l.ProductID]
				p = &ProductStat{ProductID: l.ProductID, Name: lvl.Name, SKU: lvl.SKU}
				byProduct[l.ProductID] = p
			}
			p.Quantity += l.Quantity
			p.Total = p.Total.Add(l.Subtotal)
		}
	}
	for _, c := range byCounterparty {
		stats.ByCounterparty = append(stats.ByCounterparty, *c)
	}
	sort.Slice(stats.ByCounterparty, func(i, j int) bool {
		return stats.ByCounterparty[i].Total.GreaterThan(stats.ByCounterparty[j].Total)
	})
	for _, m := range byMonth {
		stats.Monthly = append(stats.Monthly, *m)
	}
	sort.Slice(stats.Monthly, func(i, j int) bool { return stats.Monthly[i].Month < stats.Monthly[j].Month })
	for _, p := range byProduct {
		stats.TopProducts = append(stats.TopProducts, *p)
	}
	sort.Slice(stats.TopProducts, func(i, j int) bool {
		a, b := stats.TopProducts[i], stats.TopProducts[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		return a.ProductID < b.ProductID
	})
	return stats, nil
}

func (tx *memoryTx) fail(op string) error {
	if tx.repo.failOn == op {
		return errInjected
	}
	return nil
}

func (tx *memoryTx) LockProducts(ctx context.Context, ids []int64) (map[int64]catalog.StockLevel, error) {
	if err := tx.fail("LockProducts"); err != nil {
		return nil, err
	}
	return tx.ProductLevels(ctx, ids)
}

func (tx *memoryTx) ProductLevels(ctx context.Context, ids []int64) (map[int64]catalog.StockLevel, error) {
	out := map[int64]catalog.StockLevel{}
	for _, id := range ids {
		if p, ok := tx.repo.state.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (tx *memoryTx) AdjustStock(ctx context.Context, productID, delta int64) (catalog.StockLevel, error) {
	if err := tx.fail("AdjustStock"); err != nil {
		return catalog.StockLevel{}, err
	}
	p, ok := tx.repo.state.products[productID]
	if !ok {
		return catalog.StockLevel{}, shared.NewNotFoundError("product", productID)
	}
	if p.Stock+delta < 0 {
		return catalog.StockLevel{}, &shared.InsufficientStockError{ProductID: productID, ProductName: p.Name, Available: p.Stock, Requested: -delta}
	}
	p.Stock += delta
	tx.repo.state.products[productID] = p
	return p, nil
}

func (tx *memoryTx) FindLedgerEntry(ctx context.Context, kind ledger.Kind, orderID int64) (ledger.Entry, bool, error) {
	for _, e := range tx.repo.state.entries[kind] {
		if e.OrderID != nil && *e.OrderID == orderID {
			return e, true, nil
		}
	}
	return ledger.Entry{}, false, nil
}

func (tx *memoryTx) InsertLedgerEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	if err := tx.fail("InsertLedgerEntry"); err != nil {
		return ledger.Entry{}, err
	}
	if _, found, _ := tx.FindLedgerEntry(ctx, entry.Kind, *entry.OrderID); found {
		return ledger.Entry{}, &shared.DuplicateError{Entity: string(entry.Kind), Constraint: "order"}
	}
	entry.ID = tx.repo.id()
	tx.repo.state.entries[entry.Kind][entry.ID] = entry
	return entry, nil
}

func (tx *memoryTx) DeleteLedgerEntry(ctx context.Context, kind ledger.Kind, orderID int64) (int64, bool, error) {
	e, found, _ := tx.FindLedgerEntry(ctx, kind, orderID)
	if !found {
		return 0, false, nil
	}
	delete(tx.repo.state.entries[kind], e.ID)
	return e.ID, true, nil
}

func (tx *memoryTx) LockOrder(ctx context.Context, kind Kind, id int64) (Order, error) {
	o, ok := tx.repo.state.orders[kind][id]
	if !ok {
		return Order{}, shared.NewNotFoundError(string(kind), id)
	}
	return o, nil
}

func (tx *memoryTx) ListLines(ctx context.Context, kind Kind, orderID int64) ([]Line, error) {
	return append([]Line{}, tx.repo.state.lines[kind][orderID]...), nil
}

func (tx *memoryTx) CounterpartyExists(ctx context.Context, kind Kind, id int64) (bool, error) {
	_, ok := tx.repo.state.counterparties[kind][id]
	return ok, nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, order Order) (Order, error) {
	if err := tx.fail("InsertOrder"); err != nil {
		return Order{}, err
	}
	order.ID = tx.repo.id()
	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	tx.repo.state.orders[order.Kind][order.ID] = order
	return order, nil
}

func (tx *memoryTx) UpdateHeader(ctx context.Context, order Order) error {
	current, ok := tx.repo.state.orders[order.Kind][order.ID]
	if !ok {
		return shared.NewNotFoundError(string(order.Kind), order.ID)
	}
	current.Date, current.CounterpartyID, current.Total, current.Notes = order.Date, order.CounterpartyID, order.Total, order.Notes
	current.UpdatedAt = time.Now().UTC()
	tx.repo.state.orders[order.Kind][order.ID] = current
	return nil
}

func (tx *memoryTx) SetStatus(ctx context.Context, kind Kind, id int64, status Status) error {
	if err := tx.fail("SetStatus"); err != nil {
		return err
	}
	o := tx.repo.state.orders[kind][id]
	o.Status = status
	tx.repo.state.orders[kind][id] = o
	return nil
}

func (tx *memoryTx) ReplaceLines(ctx context.Context, kind Kind, orderID int64, lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if _, ok := tx.repo.state.products[l.ProductID]; !ok {
			return nil, shared.NewNotFoundError("product", l.ProductID)
		}
		l.ID = tx.repo.id()
		l.OrderID = orderID
		out = append(out, l)
	}
	tx.repo.state.lines[kind][orderID] = out
	return append([]Line(nil), out...), nil
}

func (tx *memoryTx) DeleteOrder(ctx context.Context, kind Kind, id int64) error {
	if _, ok := tx.repo.state.orders[kind][id]; !ok {
		return shared.NewNotFoundError(string(kind), id)
	}
	delete(tx.repo.state.orders[kind], id)
	delete(tx.repo.state.lines[kind], id)
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[module+"|"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"|"+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+"|"+key)
	return nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	levels []catalog.StockLevel
}

func (n *recordingNotifier) NotifyLowStock(ctx context.Context, levels []catalog.StockLevel) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.levels = append(n.levels, levels...)
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	moved    map[string]int64
}

func (o *recordingObserver) ObserveTransition(kind, from, to, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, fmt.Sprintf("%s:%s->%s:%s", kind, from, to, outcome))
}

func (o *recordingObserver) ObserveStockMovement(kind string, delta int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.moved == nil {
		o.moved = map[string]int64{}
	}
	o.moved[kind] += delta
}
