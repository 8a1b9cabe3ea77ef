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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

const insertCart = "INSERT INTO carts (id, name, created_at) VALUES (?, ?, '2024-01-01 00:00:00.000000+00:00')"

func countCarts(t *testing.T, m Manager) int {
	t.Helper()
	rows, err := m.ExecuteQuery(context.Background(), "SELECT id FROM carts")
	require.NoError(t, err)
	return len(rows)
}

func TestTransactionCommits(t *testing.T) {
	m := newInitializedManager(t)
	err := m.Acquire(context.Background(), func(ctx context.Context, conn bun.Conn) error {
		return m.Transactions(conn).Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
			_, err := tx.ExecContext(ctx, insertCart, "c1", "Weekly")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countCarts(t, m))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	m := newInitializedManager(t)
	boom := errors.New("boom")
	err := m.Acquire(context.Background(), func(ctx context.Context, conn bun.Conn) error {
		return m.Transactions(conn).Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.ExecContext(ctx, insertCart, "c1", "Weekly"); err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, countCarts(t, m))
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	m := newInitializedManager(t)
	assert.PanicsWithValue(t, "boom", func() {
		_ = m.Acquire(context.Background(), func(ctx context.Context, conn bun.Conn) error {
			return m.Transactions(conn).Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
				if _, err := tx.ExecContext(ctx, insertCart, "c1", "Weekly"); err != nil {
					return err
				}
				panic("boom")
			})
		})
	})
	assert.Zero(t, countCarts(t, m))
}

func TestTxManagerExplicitControl(t *testing.T) {
	m := newInitializedManager(t)
	err := m.Acquire(context.Background(), func(ctx context.Context, conn bun.Conn) error {
		txm := m.Transactions(conn)
		assert.False(t, txm.Active())
		assert.ErrorIs(t, txm.Commit(), ErrNoTransaction)
		assert.ErrorIs(t, txm.Rollback(), ErrNoTransaction)

		tx, err := txm.Begin(ctx)
		require.NoError(t, err)
		assert.True(t, txm.Active())

		_, err = txm.Begin(ctx)
		assert.ErrorIs(t, err, ErrTransactionInProgress)
		assert.ErrorIs(t, txm.Transaction(ctx, func(context.Context, bun.Tx) error { return nil }), ErrTransactionInProgress)

		_, err = tx.ExecContext(ctx, insertCart, "c1", "Weekly")
		require.NoError(t, err)
		require.NoError(t, txm.Rollback())
		assert.False(t, txm.Active())

		tx, err = txm.Begin(ctx)
		require.NoError(t, err)
		_, err = tx.ExecContext(ctx, insertCart, "c2", "Monthly")
		require.NoError(t, err)
		return txm.Commit()
	})
	require.NoError(t, err)

	rows, err := m.ExecuteQuery(context.Background(), "SELECT id FROM carts")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, "c2", asString(rows[0]["id"]))
}

func asString(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	s, _ := v.(string)
	return s
}

func TestTransactionsSharedWithinAcquire(t *testing.T) {
	m := newInitializedManager(t)
	err := m.Acquire(context.Background(), func(ctx context.Context, conn bun.Conn) error {
		first := m.Transactions(conn)
		assert.Same(t, first, m.Transactions(conn))

		tx, err := first.Begin(ctx)
		require.NoError(t, err)
		_, err = m.Transactions(conn).Begin(ctx)
		assert.ErrorIs(t, err, ErrTransactionInProgress)

		// Left open on purpose: releasing the connection rolls it back.
		_, err = tx.ExecContext(ctx, insertCart, "c1", "Weekly")
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, countCarts(t, m))

	err = m.Acquire(context.Background(), func(ctx context.Context, conn bun.Conn) error {
		assert.False(t, m.Transactions(conn).Active())
		return nil
	})
	require.NoError(t, err)
}
