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
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bundebug"
)

func newSQLiteConfig(t *testing.T) *ConnectionConfig {
	t.Helper()
	cfg := DefaultConnectionConfig()
	cfg.Location = filepath.Join(t.TempDir(), "nested", "cart.db")
	cfg.SlowQueryTime = 0
	return cfg
}

func newInitializedManager(t *testing.T) Manager {
	t.Helper()
	m, err := NewManager(newSQLiteConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, m.Initialize(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func tableNames(t *testing.T, m Manager) []string {
	t.Helper()
	rows, err := m.ExecuteQuery(context.Background(), "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	require.NoError(t, err)
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		switch v := row["name"].(type) {
		case string:
			names = append(names, v)
		case []byte:
			names = append(names, string(v))
		}
	}
	return names
}

func TestInitializeCreatesSchema(t *testing.T) {
	m := newInitializedManager(t)

	assert.FileExists(t, m.Location())
	assert.Subset(t, tableNames(t, m), []string{
		TableUsers, TableCarts, TableMemberships, TableProducts, TableContainment, TableArchive,
	})

	rows, err := m.ExecuteQuery(context.Background(), "SELECT name FROM sqlite_master WHERE type = 'trigger'")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestInitializeIsIdempotent(t *testing.T) {
	cfg := newSQLiteConfig(t)
	m, err := NewManager(cfg, nil)
	require.NoError(t, err)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Initialize(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, m.(*defaultDatabaseManager).bootstraps)

	// Bootstrapping an existing file is harmless.
	again, err := NewManager(cfg, nil)
	require.NoError(t, err)
	defer again.Close()
	require.NoError(t, again.Initialize(context.Background()))
	assert.True(t, again.HealthCheck(context.Background()))
}

func TestAcquireBeforeInitialize(t *testing.T) {
	m, err := NewManager(newSQLiteConfig(t), nil)
	require.NoError(t, err)

	err = m.Acquire(context.Background(), func(ctx context.Context, conn bun.Conn) error { return nil })
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, m.HealthCheck(context.Background()))
}

func TestAcquireAppliesSessionPragmas(t *testing.T) {
	m := newInitializedManager(t)

	err := m.Acquire(context.Background(), func(ctx context.Context, conn bun.Conn) error {
		var enabled int
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled); err != nil {
			return err
		}
		assert.Equal(t, 1, enabled)
		return nil
	})
	require.NoError(t, err)
}

func TestHealthCheckAndClose(t *testing.T) {
	m, err := NewManager(newSQLiteConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, m.Initialize(context.Background()))

	assert.True(t, m.HealthCheck(context.Background()))
	status := m.HealthStatus(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, DefaultPoolSize, status.MaxOpenConns)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.False(t, m.HealthCheck(context.Background()))
	assert.False(t, m.HealthStatus(context.Background()).Healthy)
	assert.ErrorIs(t, m.Initialize(context.Background()), ErrManagerClosed)
	assert.Nil(t, m.DB())
}

func TestExecuteMany(t *testing.T) {
	ctx := context.Background()
	m := newInitializedManager(t)
	insert := "INSERT INTO products (id, name, price, created_at) VALUES (?, ?, ?, ?)"

	err := m.ExecuteMany(ctx, insert, [][]interface{}{
		{"p1", "Milk", 1.5, "2024-01-01 00:00:00.000000+00:00"},
		{"p2", "Bread", 2.0, "2024-01-01 00:00:01.000000+00:00"},
	})
	require.NoError(t, err)

	// The duplicate id aborts the whole batch.
	err = m.ExecuteMany(ctx, insert, [][]interface{}{
		{"p3", "Eggs", 3.0, "2024-01-01 00:00:02.000000+00:00"},
		{"p1", "Milk again", 1.0, "2024-01-01 00:00:03.000000+00:00"},
	})
	require.Error(t, err)
	assert.Equal(t, DuplicateKeyErr, ClassifyError(err))

	rows, err := m.ExecuteQuery(ctx, "SELECT id FROM products ORDER BY id")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestBackup(t *testing.T) {
	ctx := context.Background()
	m := newInitializedManager(t)
	require.NoError(t, m.ExecuteMany(ctx,
		"INSERT INTO carts (id, name, created_at) VALUES (?, ?, ?)",
		[][]interface{}{{"c1", "Weekly", "2024-01-01 00:00:00.000000+00:00"}},
	))

	t.Run("snapshot", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "backups", "cart.db.bak")
		require.True(t, m.Backup(ctx, dest))
		require.FileExists(t, dest)
		assert.NoFileExists(t, backupTempPath(dest))

		cfg := DefaultConnectionConfig()
		cfg.Location = dest
		restored, err := NewManager(cfg, nil)
		require.NoError(t, err)
		defer restored.Close()
		require.NoError(t, restored.Initialize(ctx))
		rows, err := restored.ExecuteQuery(ctx, "SELECT id FROM carts")
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("same path", func(t *testing.T) {
		assert.False(t, m.Backup(ctx, m.Location()))
	})

	t.Run("unwritable destination leaves nothing", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
		dest := filepath.Join(blocker, "cart.db.bak")
		assert.False(t, m.Backup(ctx, dest))
		assert.NoFileExists(t, dest)
	})

	t.Run("canceled copy keeps previous backup", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "cart.db.bak")
		require.True(t, m.Backup(ctx, dest))
		before, err := os.ReadFile(dest)
		require.NoError(t, err)

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		assert.False(t, m.Backup(canceled, dest))
		assert.Eventually(t, func() bool {
			_, err := os.Stat(backupTempPath(dest))
			return os.IsNotExist(err)
		}, 2*time.Second, 10*time.Millisecond)

		after, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("failed copy removes partial file", func(t *testing.T) {
		// A non-empty directory at the destination makes the final rename fail
		// after the snapshot has been written.
		dest := filepath.Join(t.TempDir(), "taken")
		require.NoError(t, os.MkdirAll(filepath.Join(dest, "child"), 0o755))

		assert.False(t, m.Backup(ctx, dest))
		assert.NoFileExists(t, backupTempPath(dest))
		assert.DirExists(t, filepath.Join(dest, "child"))
	})
}

func TestQueryHooksFollowConfig(t *testing.T) {
	t.Setenv("BUNDEBUG", "")
	require.NoError(t, os.Unsetenv("BUNDEBUG"))

	cfg := newSQLiteConfig(t)
	dm := &defaultDatabaseManager{config: cfg, logger: GetLogger()}
	assert.Empty(t, dm.queryHooks())

	cfg.EnableQueryLog = true
	cfg.SlowQueryTime = time.Second
	hooks := dm.queryHooks()
	require.Len(t, hooks, 2)
	assert.IsType(t, &QueryHook{}, hooks[0])
	assert.IsType(t, &SlowQueryHook{}, hooks[1])

	t.Setenv("BUNDEBUG", "1")
	hooks = dm.queryHooks()
	require.Len(t, hooks, 3)
	assert.IsType(t, &bundebug.QueryHook{}, hooks[0])
}

func TestNoDebugOutputWithoutBundebug(t *testing.T) {
	t.Setenv("BUNDEBUG", "")
	require.NoError(t, os.Unsetenv("BUNDEBUG"))

	r, w, err := os.Pipe()
	require.NoError(t, err)
	var captured bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&captured, r)
		close(done)
	}()
	stderr := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = stderr }()

	m, err := NewManager(newSQLiteConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, m.Initialize(context.Background()))
	assert.True(t, m.HealthCheck(context.Background()))
	require.NoError(t, m.Close())

	os.Stderr = stderr
	require.NoError(t, w.Close())
	<-done
	assert.NotContains(t, captured.String(), "[bun]")
	assert.NotContains(t, captured.String(), "SELECT 1")
}

func TestBackupRequiresSQLite(t *testing.T) {
	m, err := NewManager(&ConnectionConfig{Type: KindPostgres, Location: "postgres://localhost/cart", PoolSize: 1}, nil)
	require.NoError(t, err)
	assert.False(t, m.Backup(context.Background(), filepath.Join(t.TempDir(), "x.bak")))
}

func TestStats(t *testing.T) {
	m := newInitializedManager(t)
	stats := m.Stats()
	assert.Equal(t, DefaultPoolSize, stats.MaxOpenConns)
	assert.Zero(t, stats.InUse)
}

func TestMemoryDatabaseUsesOneConnection(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.Location = ":memory:"
	m, err := NewManager(cfg, nil)
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Initialize(context.Background()))

	assert.Equal(t, 1, m.Stats().MaxOpenConns)
	assert.Contains(t, tableNames(t, m), TableUsers)
}

func TestRedactedLocation(t *testing.T) {
	m, err := NewManager(&ConnectionConfig{Type: KindPostgres, Location: "postgres://cart:secret@db:5432/cart", PoolSize: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://***@db:5432/cart", m.(*defaultDatabaseManager).redactedLocation())
}
