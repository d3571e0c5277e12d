package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/ledger"
	"github.com/odyssey-erp/odyssey-pos/internal/orders"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/migrations"
)

type seedProduct struct {
	sku      string
	name     string
	category string
	price    string
	cost     string
	minStock int64
}

var products = []seedProduct{
	{"COF-250", "Ground coffee 250g", "Groceries", "6.50", "4.10", 10},
	{"TEA-GRN", "Green tea 20 bags", "Groceries", "3.20", "1.90", 8},
	{"MLK-1L", "Whole milk 1L", "Dairy", "1.40", "0.85", 24},
	{"YOG-NAT", "Natural yoghurt 500g", "Dairy", "2.10", "1.30", 12},
	{"SOP-HND", "Hand soap 300ml", "Household", "2.80", "1.60", 6},
}

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 4})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying migrations...")
	if _, err := migrations.Apply(ctx, pool, logger); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	audit := shared.NewAuditLogger(pool)
	catalogService := catalog.NewService(catalog.NewRepository(pool), audit, nil, logger)
	customersService := customers.NewService(customers.NewRepository(pool), logger)
	ordersService := orders.NewService(orders.NewRepository(pool), orders.ServiceOptions{Audit: audit, Logger: logger})
	ledgerService := ledger.NewService(ledger.NewQueries(pool), logger)

	fmt.Println("→ Seeding catalog...")
	supplierID, productIDs, err := seedCatalog(ctx, catalogService)
	if err != nil {
		log.Fatalf("seed catalog: %v", err)
	}

	fmt.Println("→ Seeding customers...")
	customerID, err := seedCustomer(ctx, customersService)
	if err != nil {
		log.Fatalf("seed customers: %v", err)
	}

	if seeded, err := hasOrders(ctx, pool); err != nil {
		log.Fatalf("check orders: %v", err)
	} else if seeded {
		fmt.Println("✓ Orders already present, skipping order and ledger seed")
		return
	}

	fmt.Println("→ Seeding orders...")
	if err := seedOrders(ctx, ordersService, supplierID, customerID, productIDs); err != nil {
		log.Fatalf("seed orders: %v", err)
	}

	fmt.Println("→ Seeding manual ledger entries...")
	if err := seedLedger(ctx, ledgerService); err != nil {
		log.Fatalf("seed ledger: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedCatalog(ctx context.Context, svc *catalog.Service) (int64, map[string]int64, error) {
	categories := map[string]int64{}
	existing, err := svc.ListCategories(ctx)
	if err != nil {
		return 0, nil, err
	}
	for _, c := range existing {
		categories[c.Name] = c.ID
	}

	suppliers, err := svc.ListSuppliers(ctx, "Northwind")
	if err != nil {
		return 0, nil, err
	}
	var supplierID int64
	if len(suppliers) > 0 {
		supplierID = suppliers[0].ID
	} else {
		email := "orders@northwind.example"
		s, err := svc.CreateSupplier(ctx, catalog.SupplierInput{Name: "Northwind Wholesale", Contact: "Dana Reyes", Email: &email})
		if err != nil {
			return 0, nil, err
		}
		supplierID = s.ID
	}

	ids := map[string]int64{}
	for _, p := range products {
		if found, err := svc.FindBySKU(ctx, p.sku); err == nil {
			ids[p.sku] = found.ID
			continue
		} else if !errors.Is(err, shared.ErrNotFound) {
			return 0, nil, err
		}
		categoryID, ok := categories[p.category]
		if !ok {
			c, err := svc.CreateCategory(ctx, catalog.CategoryInput{Name: p.category})
			if err != nil {
				return 0, nil, err
			}
			categoryID = c.ID
			categories[p.category] = categoryID
		}
		created, err := svc.CreateProduct(ctx, catalog.CreateProductInput{
			Name:       p.name,
			SKU:        p.sku,
			Price:      decimal.RequireFromString(p.price),
			Cost:       decimal.RequireFromString(p.cost),
			MinStock:   p.minStock,
			CategoryID: &categoryID,
			SupplierID: &supplierID,
		})
		if err != nil {
			return 0, nil, fmt.Errorf("product %s: %w", p.sku, err)
		}
		ids[p.sku] = created.ID
	}
	return supplierID, ids, nil
}

func seedCustomer(ctx context.Context, svc *customers.Service) (int64, error) {
	page, err := svc.List(ctx, customers.ListFilter{Search: "Walk-in"})
	if err != nil {
		return 0, err
	}
	if len(page.Items) > 0 {
		return page.Items[0].ID, nil
	}
	c, err := svc.Create(ctx, customers.Input{FirstName: "Walk-in", LastName: "Customer"})
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

func hasOrders(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchases)`).Scan(&exists)
	return exists, err
}

func seedOrders(ctx context.Context, svc *orders.Service, supplierID, customerID int64, ids map[string]int64) error {
	today := shared.NewDate(time.Now())
	restock := orders.CreateInput{Date: today, CounterpartyID: supplierID, Status: orders.StatusReceived, Notes: "opening stock"}
	for _, p := range products {
		restock.Lines = append(restock.Lines, orders.LineInput{ProductID: ids[p.sku], Quantity: p.minStock * 3})
	}
	if _, err := svc.Create(ctx, orders.KindPurchase, restock, ""); err != nil {
		return fmt.Errorf("opening purchase: %w", err)
	}

	sale, err := svc.Create(ctx, orders.KindSale, orders.CreateInput{
		Date:           today,
		CounterpartyID: customerID,
		Status:         orders.StatusPending,
		Lines: []orders.LineInput{
			{ProductID: ids["COF-250"], Quantity: 2},
			{ProductID: ids["MLK-1L"], Quantity: 6},
		},
	}, "")
	if err != nil {
		return fmt.Errorf("sale: %w", err)
	}
	if _, err := svc.Transition(ctx, orders.KindSale, sale.ID, orders.StatusCompleted); err != nil {
		return fmt.Errorf("complete sale: %w", err)
	}
	return nil
}

func seedLedger(ctx context.Context, svc *ledger.Service) error {
	_, err := svc.Create(ctx, ledger.KindExpense, ledger.Input{
		Date:        shared.NewDate(time.Now()),
		Description: "Shop rent",
		Category:    "Rent",
		Amount:      decimal.RequireFromString("850.00"),
	})
	return err
}
