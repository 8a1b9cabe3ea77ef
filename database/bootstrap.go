/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomoncle/cartstore/utils"
	"github.com/uptrace/bun"
)

// Table names shared with the repositories.
const (
	TableUsers       = "users"
	TableCarts       = "carts"
	TableMemberships = "user_cart"
	TableProducts    = "products"
	TableContainment = "cart_product"
	TableArchive     = "cart_product_archive"
)

type schema struct {
	// pragmas run outside the bootstrap transaction.
	pragmas    []string
	statements []string
}

var schemas = map[Kind]schema{
	KindSQLite: {
		pragmas: []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA foreign_keys = ON",
			"PRAGMA synchronous = NORMAL",
		},
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL UNIQUE,
				first_name TEXT,
				external_id INTEGER NOT NULL UNIQUE,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP,
				CHECK (length(username) >= 3),
				CHECK (first_name IS NULL OR length(first_name) >= 1),
				CHECK (external_id > 0)
			)`,
			`CREATE TABLE IF NOT EXISTS carts (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP,
				CHECK (length(name) >= 1)
			)`,
			`CREATE TABLE IF NOT EXISTS user_cart (
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
				role TEXT NOT NULL DEFAULT 'viewer',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (user_id, cart_id),
				CHECK (role IN ('owner', 'editor', 'viewer'))
			)`,
			`CREATE TABLE IF NOT EXISTS products (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				price REAL NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP,
				CHECK (length(name) >= 1),
				CHECK (price >= 0)
			)`,
			`CREATE TABLE IF NOT EXISTS cart_product (
				cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
				product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
				quantity INTEGER NOT NULL DEFAULT 1,
				added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (cart_id, product_id),
				CHECK (quantity > 0)
			)`,
			`CREATE TABLE IF NOT EXISTS cart_product_archive (
				cart_id TEXT NOT NULL,
				product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
				quantity INTEGER NOT NULL,
				added_at TIMESTAMP NOT NULL,
				removed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (cart_id, product_id, removed_at)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_users_external_id ON users(external_id)`,
			`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
			`CREATE INDEX IF NOT EXISTS idx_user_cart_user ON user_cart(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_user_cart_cart ON user_cart(cart_id)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_user_cart_single_owner ON user_cart(cart_id) WHERE role = 'owner'`,
			`CREATE INDEX IF NOT EXISTS idx_products_name ON products(name)`,
			`CREATE INDEX IF NOT EXISTS idx_cart_product_cart ON cart_product(cart_id)`,
			`CREATE INDEX IF NOT EXISTS idx_cart_product_product ON cart_product(product_id)`,
			`CREATE TRIGGER IF NOT EXISTS archive_detach_cart
				BEFORE DELETE ON carts
				FOR EACH ROW
				BEGIN
					UPDATE cart_product_archive SET cart_id = '---' WHERE cart_id = OLD.id;
				END`,
		},
	},
	KindPostgres: {
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL UNIQUE,
				first_name TEXT,
				external_id BIGINT NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ,
				CHECK (char_length(username) >= 3),
				CHECK (first_name IS NULL OR char_length(first_name) >= 1),
				CHECK (external_id > 0)
			)`,
			`CREATE TABLE IF NOT EXISTS carts (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ,
				CHECK (char_length(name) >= 1)
			)`,
			`CREATE TABLE IF NOT EXISTS user_cart (
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
				role TEXT NOT NULL DEFAULT 'viewer',
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (user_id, cart_id),
				CHECK (role IN ('owner', 'editor', 'viewer'))
			)`,
			`CREATE TABLE IF NOT EXISTS products (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				price DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ,
				CHECK (char_length(name) >= 1),
				CHECK (price >= 0)
			)`,
			`CREATE TABLE IF NOT EXISTS cart_product (
				cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
				product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
				quantity INTEGER NOT NULL DEFAULT 1,
				added_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (cart_id, product_id),
				CHECK (quantity > 0)
			)`,
			`CREATE TABLE IF NOT EXISTS cart_product_archive (
				cart_id TEXT NOT NULL,
				product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
				quantity INTEGER NOT NULL,
				added_at TIMESTAMPTZ NOT NULL,
				removed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (cart_id, product_id, removed_at)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_users_external_id ON users(external_id)`,
			`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
			`CREATE INDEX IF NOT EXISTS idx_user_cart_user ON user_cart(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_user_cart_cart ON user_cart(cart_id)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_user_cart_single_owner ON user_cart(cart_id) WHERE role = 'owner'`,
			`CREATE INDEX IF NOT EXISTS idx_products_name ON products(name)`,
			`CREATE INDEX IF NOT EXISTS idx_cart_product_cart ON cart_product(cart_id)`,
			`CREATE INDEX IF NOT EXISTS idx_cart_product_product ON cart_product(product_id)`,
			`CREATE OR REPLACE FUNCTION archive_detach_cart() RETURNS trigger AS $$
				BEGIN
					UPDATE cart_product_archive SET cart_id = '---' WHERE cart_id = OLD.id;
					RETURN OLD;
				END;
				$$ LANGUAGE plpgsql`,
			`DROP TRIGGER IF EXISTS archive_detach_cart ON carts`,
			`CREATE TRIGGER archive_detach_cart
				BEFORE DELETE ON carts
				FOR EACH ROW EXECUTE FUNCTION archive_detach_cart()`,
		},
	},
	KindMySQL: {
		// MySQL has no partial indexes; the single owner rule stays a convention.
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id VARCHAR(36) PRIMARY KEY,
				username VARCHAR(50) NOT NULL UNIQUE,
				first_name VARCHAR(100),
				external_id BIGINT NOT NULL UNIQUE,
				created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				updated_at DATETIME(6),
				INDEX idx_users_external_id (external_id),
				INDEX idx_users_username (username),
				CHECK (char_length(username) >= 3),
				CHECK (first_name IS NULL OR char_length(first_name) >= 1),
				CHECK (external_id > 0)
			)`,
			`CREATE TABLE IF NOT EXISTS carts (
				id VARCHAR(36) PRIMARY KEY,
				name VARCHAR(100) NOT NULL,
				created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				updated_at DATETIME(6),
				CHECK (char_length(name) >= 1)
			)`,
			`CREATE TABLE IF NOT EXISTS user_cart (
				user_id VARCHAR(36) NOT NULL,
				cart_id VARCHAR(36) NOT NULL,
				role VARCHAR(16) NOT NULL DEFAULT 'viewer',
				created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				PRIMARY KEY (user_id, cart_id),
				INDEX idx_user_cart_user (user_id),
				INDEX idx_user_cart_cart (cart_id),
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
				FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE,
				CHECK (role IN ('owner', 'editor', 'viewer'))
			)`,
			`CREATE TABLE IF NOT EXISTS products (
				id VARCHAR(36) PRIMARY KEY,
				name VARCHAR(100) NOT NULL,
				price DOUBLE NOT NULL DEFAULT 0,
				created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				updated_at DATETIME(6),
				INDEX idx_products_name (name),
				CHECK (char_length(name) >= 1),
				CHECK (price >= 0)
			)`,
			`CREATE TABLE IF NOT EXISTS cart_product (
				cart_id VARCHAR(36) NOT NULL,
				product_id VARCHAR(36) NOT NULL,
				quantity INT NOT NULL DEFAULT 1,
				added_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				PRIMARY KEY (cart_id, product_id),
				INDEX idx_cart_product_cart (cart_id),
				INDEX idx_cart_product_product (product_id),
				FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE,
				FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE,
				CHECK (quantity > 0)
			)`,
			`CREATE TABLE IF NOT EXISTS cart_product_archive (
				cart_id VARCHAR(36) NOT NULL,
				product_id VARCHAR(36) NOT NULL,
				quantity INT NOT NULL,
				added_at DATETIME(6) NOT NULL,
				removed_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				PRIMARY KEY (cart_id, product_id, removed_at),
				FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
			)`,
			`DROP TRIGGER IF EXISTS archive_detach_cart`,
			`CREATE TRIGGER archive_detach_cart
				BEFORE DELETE ON carts
				FOR EACH ROW
				UPDATE cart_product_archive SET cart_id = '---' WHERE cart_id = OLD.id`,
		},
	},
}

// sessionPragmas are per-connection SQLite settings that must be asserted on
// every connection handed out by the pool.
func sessionPragmas(kind Kind, busyTimeout time.Duration) []string {
	if kind != KindSQLite {
		return nil
	}
	return []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
	}
}

// bootstrap creates every relation, index and the archive trigger. All DDL is
// idempotent; it runs in one transaction where the backend allows it.
func bootstrap(ctx context.Context, conn bun.Conn, kind Kind, logger Logger) error {
	s, ok := schemas[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedBackend, kind)
	}
	for _, pragma := range s.pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start schema transaction: %w", err)
	}
	var committed bool
	defer func(tx bun.Tx) {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				logger.Error("Failed to rollback schema transaction", "error", rollbackErr)
			}
		}
	}(tx)

	start := time.Now()
	for i, stmt := range s.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i+1, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	committed = true

	logger.Info("Schema ready", "backend", kind, "statements", len(s.statements), "duration", utils.Elapsed(time.Since(start)))
	return nil
}
