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
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func countingConstructor(calls *int32) ManagerConstructor {
	return func(cfg *ConnectionConfig, logger Logger) (Manager, error) {
		atomic.AddInt32(calls, 1)
		return NewManager(cfg, logger)
	}
}

func TestFactorySharesOneManager(t *testing.T) {
	var calls int32
	f := NewFactory(nil, WithManagerConstructor(countingConstructor(&calls)))
	defer f.CloseAll()
	cfg := newSQLiteConfig(t)

	managers := make([]Manager, 16)
	var g errgroup.Group
	for i := range managers {
		i := i
		g.Go(func() error {
			m, err := f.GetManager(context.Background(), cfg)
			managers[i] = m
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, 1, f.Len())
	for _, m := range managers {
		assert.Same(t, managers[0], m)
	}
	assert.True(t, managers[0].HealthCheck(context.Background()))
}

func TestFactoryKeysByLocation(t *testing.T) {
	f := NewFactory(nil)
	defer f.CloseAll()
	ctx := context.Background()

	first, err := f.GetManager(ctx, newSQLiteConfig(t))
	require.NoError(t, err)
	second, err := f.GetManager(ctx, newSQLiteConfig(t))
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, f.Len())
}

func TestFactoryRejectsBadConfig(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	_, err := f.GetManager(ctx, nil)
	assert.Error(t, err)

	_, err = f.GetManager(ctx, &ConnectionConfig{Type: "oracle", PoolSize: 1})
	assert.ErrorIs(t, err, ErrUnsupportedBackend)

	_, err = f.GetManager(ctx, &ConnectionConfig{Type: KindPostgres, PoolSize: 1})
	assert.ErrorIs(t, err, ErrMissingLocation)

	_, err = f.GetManager(ctx, &ConnectionConfig{Type: KindMySQL, PoolSize: 1})
	assert.ErrorIs(t, err, ErrMissingLocation)
	assert.Zero(t, f.Len())
}

func TestFactoryDoesNotCacheFailedInitialize(t *testing.T) {
	f := NewFactory(nil)
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg := DefaultConnectionConfig()
	cfg.Location = filepath.Join(blocker, "cart.db")

	_, err := f.GetManager(context.Background(), cfg)
	assert.Error(t, err)
	assert.Zero(t, f.Len())
}

func TestFactoryCloseAll(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()
	cfg := newSQLiteConfig(t)

	first, err := f.GetManager(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, f.CloseAll())
	assert.Zero(t, f.Len())
	assert.False(t, first.HealthCheck(ctx))

	second, err := f.GetManager(ctx, cfg)
	require.NoError(t, err)
	defer f.CloseAll()
	assert.NotSame(t, first, second)
	assert.True(t, second.HealthCheck(ctx))
	assert.Equal(t, filepath.Clean(cfg.Location), filepath.Clean(second.Location()))
}

type stubManager struct{ Manager }

func (*stubManager) Initialize(context.Context) error { return nil }
func (*stubManager) Close() error                     { return nil }

func TestFactoryKeysServerStoresByAddress(t *testing.T) {
	f := NewFactory(nil, WithManagerConstructor(func(*ConnectionConfig, Logger) (Manager, error) {
		return &stubManager{}, nil
	}))
	defer f.CloseAll()
	ctx := context.Background()
	server := func(host, dbName string) *ConnectionConfig {
		return &ConnectionConfig{Type: KindPostgres, Host: host, Port: 5432, DBName: dbName, PoolSize: 1}
	}

	a, err := f.GetManager(ctx, server("db-a", "carts"))
	require.NoError(t, err)
	b, err := f.GetManager(ctx, server("db-b", "carts"))
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, f.Len())

	again, err := f.GetManager(ctx, server("db-a", "carts"))
	require.NoError(t, err)
	assert.Same(t, a, again)

	other, err := f.GetManager(ctx, server("db-a", "archive"))
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Equal(t, 3, f.Len())
}
