// Package seed loads demonstration customers and orders into an empty store.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/observability"
)

const dateLayout = "2006-01-02"

type Customer struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

type Order struct {
	// Customer is an index into Dataset.Customers.
	Customer    int
	DaysAgo     int
	TotalAmount float64
	Status      string
}

type Dataset struct {
	Name      string
	Customers []Customer
	Orders    []Order
}

func Sample() Dataset {
	return Dataset{
		Name: "sample",
		Customers: []Customer{
			{Name: "John Doe", Email: "john@example.com", Phone: "555-1234", Address: "123 Main St, Anytown USA"},
			{Name: "Jane Smith", Email: "jane@example.com", Phone: "555-5678", Address: "456 Elm St, Somewhere USA"},
			{Name: "Robert Johnson", Email: "robert@example.com", Phone: "555-9012", Address: "789 Oak St, Nowhere USA"},
			{Name: "Emily Davis", Email: "emily@example.com", Phone: "555-3456", Address: "101 Pine St, Elsewhere USA"},
			{Name: "Michael Wilson", Email: "michael@example.com", Phone: "555-7890", Address: "202 Maple St, Anywhere USA"},
		},
		Orders: []Order{
			{Customer: 0, DaysAgo: 10, TotalAmount: 125.99, Status: "delivered"},
			{Customer: 0, DaysAgo: 5, TotalAmount: 89.50, Status: "shipped"},
			{Customer: 1, DaysAgo: 7, TotalAmount: 45.00, Status: "delivered"},
			{Customer: 2, DaysAgo: 2, TotalAmount: 199.99, Status: "processing"},
			{Customer: 2, DaysAgo: 20, TotalAmount: 25.50, Status: "delivered"},
			{Customer: 3, DaysAgo: 15, TotalAmount: 75.25, Status: "delivered"},
			{Customer: 4, DaysAgo: 0, TotalAmount: 55.99, Status: "pending"},
		},
	}
}

// Minimal is a two-customer dataset for smoke tests.
func Minimal() Dataset {
	return Dataset{
		Name: "minimal",
		Customers: []Customer{
			{Name: "Test Customer", Email: "test@example.com", Phone: "555-0001", Address: "1 Test St"},
			{Name: "Another Customer", Email: "another@example.com", Phone: "555-0002", Address: "2 Test St"},
		},
		Orders: []Order{
			{Customer: 0, DaysAgo: 5, TotalAmount: 100.0, Status: "delivered"},
			{Customer: 0, DaysAgo: 2, TotalAmount: 75.50, Status: "shipped"},
			{Customer: 1, DaysAgo: 0, TotalAmount: 200.0, Status: "pending"},
		},
	}
}

func ByName(name string) (Dataset, error) {
	switch name {
	case "", "sample":
		return Sample(), nil
	case "minimal":
		return Minimal(), nil
	default:
		return Dataset{}, fmt.Errorf("unknown dataset %q", name)
	}
}

type Result struct {
	Skipped   bool
	Customers int
	Orders    int
}

type Seeder struct {
	DB     *sql.DB
	Logger *slog.Logger
	Now    func() time.Time
}

// Run loads dataset unless customers already has rows.
func (s Seeder) Run(ctx context.Context, dataset Dataset) (Result, error) {
	if s.DB == nil {
		return Result{}, fmt.Errorf("db is required")
	}
	logger := observability.LoggerOrDiscard(s.Logger).With(slog.String("component", "seed"), slog.String("dataset", dataset.Name))

	var existing int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&existing); err != nil {
		return Result{}, fmt.Errorf("count customers: %w", err)
	}
	if existing > 0 {
		logger.Info("store already contains data, skipping seed", slog.Int("customers", existing))
		return Result{Skipped: true}, nil
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	today := now().UTC().Truncate(24 * time.Hour)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, len(dataset.Customers))
	for i, customer := range dataset.Customers {
		err := tx.QueryRowContext(ctx, `
INSERT INTO customers (name, email, phone, address)
VALUES ($1, $2, $3, $4)
RETURNING id`, customer.Name, customer.Email, customer.Phone, customer.Address).Scan(&ids[i])
		if err != nil {
			return Result{}, fmt.Errorf("insert customer %q: %w", customer.Email, err)
		}
	}

	for i, order := range dataset.Orders {
		if order.Customer < 0 || order.Customer >= len(ids) {
			return Result{}, fmt.Errorf("order %d references unknown customer %d", i, order.Customer)
		}
		orderDate := today.AddDate(0, 0, -order.DaysAgo).Format(dateLayout)
		if _, err := tx.ExecContext(ctx, `
INSERT INTO orders (customer_id, order_date, total_amount, status)
VALUES ($1, $2, $3, $4)`, ids[order.Customer], orderDate, order.TotalAmount, order.Status); err != nil {
			return Result{}, fmt.Errorf("insert order %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit seed: %w", err)
	}

	result := Result{Customers: len(dataset.Customers), Orders: len(dataset.Orders)}
	logger.Info("seeded store", slog.Int("customers", result.Customers), slog.Int("orders", result.Orders))
	return result, nil
}
