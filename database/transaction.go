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
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/uptrace/bun"
)

// TxManager drives transactions on exactly one connection. It does not nest:
// Begin while a transaction is open returns ErrTransactionInProgress.
type TxManager struct {
	conn   bun.Conn
	logger Logger

	mu sync.Mutex
	tx *bun.Tx
}

func NewTxManager(conn bun.Conn, logger Logger) *TxManager {
	return &TxManager{conn: conn, logger: orDefault(logger)}
}

// Begin opens a transaction and returns it.
func (m *TxManager) Begin(ctx context.Context) (bun.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tx != nil {
		return bun.Tx{}, ErrTransactionInProgress
	}
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return bun.Tx{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	m.tx = &tx
	return tx, nil
}

func (m *TxManager) Commit() error {
	tx, err := m.take()
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (m *TxManager) Rollback() error {
	tx, err := m.take()
	if err != nil {
		return err
	}
	if err = tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Active reports whether a transaction is open.
func (m *TxManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx != nil
}

func (m *TxManager) take() (*bun.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tx == nil {
		return nil, ErrNoTransaction
	}
	tx := m.tx
	m.tx = nil
	return tx, nil
}

// Transaction runs fn inside a transaction. It commits when fn returns nil and
// rolls back when fn returns an error or panics; the error or panic
// is passed on to the caller.
func (m *TxManager) Transaction(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) (err error) {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	var done bool
	defer func() {
		if done {
			return
		}
		if rollbackErr := m.Rollback(); rollbackErr != nil {
			m.logger.Error("Failed to rollback transaction", "error", rollbackErr)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	done = true
	if err = m.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
