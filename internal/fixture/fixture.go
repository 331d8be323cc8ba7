// Package fixture builds small SQLite databases for demos and tests.
//
// Ecommerce writes the users/orders shop database the CLI's seed command
// and the example walkthrough use; Exec builds ad-hoc databases from DDL.
package fixture

import (
	"context"
	"fmt"
	"os"

	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/database/sqlite"
	"github.com/koustreak/sqlscope/internal/errs"
)

// EcommerceTables lists the tables Ecommerce creates, sorted by name.
var EcommerceTables = []string{"orders", "users"}

const (
	EcommerceUsers  = 5
	EcommerceOrders = 8
)

var ecommerceSchema = []string{
	`CREATE TABLE users (
		id INTEGER NOT NULL PRIMARY KEY,
		name VARCHAR NOT NULL,
		email VARCHAR NOT NULL UNIQUE,
		age INTEGER,
		created_at DATETIME
	)`,
	`CREATE TABLE orders (
		id INTEGER NOT NULL PRIMARY KEY,
		user_id INTEGER REFERENCES users (id),
		product_name VARCHAR NOT NULL,
		quantity INTEGER DEFAULT 1,
		price DECIMAL(10, 2),
		order_date DATETIME
	)`,
}

var ecommerceData = []string{
	`INSERT INTO users (id, name, email, age, created_at) VALUES
		(1, 'Alice Johnson', 'alice@example.com', 28, '2024-01-15 10:30:00'),
		(2, 'Bob Smith', 'bob@example.com', 35, '2024-01-16 11:00:00'),
		(3, 'Charlie Brown', 'charlie@example.com', 22, '2024-01-17 09:15:00'),
		(4, 'Diana Prince', 'diana@example.com', 30, '2024-01-18 14:45:00'),
		(5, 'Edward Davis', 'edward@example.com', 45, '2024-01-19 16:20:00')`,
	`INSERT INTO orders (id, user_id, product_name, quantity, price, order_date) VALUES
		(1, 1, 'Laptop', 1, 999.99, '2024-02-01 10:00:00'),
		(2, 1, 'Mouse', 2, 29.99, '2024-02-01 10:05:00'),
		(3, 2, 'Keyboard', 1, 79.99, '2024-02-02 12:00:00'),
		(4, 3, 'Monitor', 1, 299.99, '2024-02-03 15:30:00'),
		(5, 3, 'Webcam', 1, 89.99, '2024-02-03 15:35:00'),
		(6, 4, 'Headphones', 1, 149.99, '2024-02-04 09:00:00'),
		(7, 5, 'Tablet', 1, 499.99, '2024-02-05 18:10:00'),
		(8, 5, 'Charger', 3, 24.99, '2024-02-05 18:12:00')`,
}

// Ecommerce creates the sample shop database at path, replacing any file
// already there.
func Ecommerce(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.ErrKindIOFailure, "failed to remove existing database", err)
	}
	stmts := append(append([]string{}, ecommerceSchema...), ecommerceData...)
	return Exec(ctx, path, stmts...)
}

// Exec opens (creating if needed) the database at path read-write and runs
// stmts in order.
func Exec(ctx context.Context, path string, stmts ...string) error {
	cfg := database.DefaultConfig(path)
	cfg.ReadOnly = false
	cfg.MaxOpenConns = 1

	db, err := sqlite.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	for i, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("fixture statement %d: %w", i+1, err)
		}
	}
	return nil
}
