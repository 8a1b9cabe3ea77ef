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
	"fmt"
	"sync"
)

// ManagerConstructor builds an uninitialized manager.
type ManagerConstructor func(cfg *ConnectionConfig, logger Logger) (Manager, error)

// managerKey identifies one store. Server backends without a Location are
// told apart by the fields their DSN is built from.
type managerKey struct {
	kind     Kind
	location string
	host     string
	port     int
	dbName   string
	username string
}

func keyFor(kind Kind, cfg *ConnectionConfig) managerKey {
	key := managerKey{kind: kind, location: cfg.Location}
	if kind != KindSQLite && cfg.Location == "" {
		key.host, key.port, key.dbName, key.username = cfg.Host, cfg.Port, cfg.DBName, cfg.Username
	}
	return key
}

// Factory caches one initialized Manager per store.
type Factory struct {
	logger      Logger
	constructor ManagerConstructor

	mu       sync.RWMutex
	managers map[managerKey]Manager
}

type FactoryOption func(*Factory)

// WithManagerConstructor replaces NewManager, mainly for tests.
func WithManagerConstructor(c ManagerConstructor) FactoryOption {
	return func(f *Factory) { f.constructor = c }
}

func NewFactory(logger Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		logger:      orDefault(logger),
		constructor: NewManager,
		managers:    make(map[managerKey]Manager),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetManager returns the cached manager for cfg, constructing and
// initializing it on first use. Concurrent first callers share one instance.
func (f *Factory) GetManager(ctx context.Context, cfg *ConnectionConfig) (Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	kind, err := ParseKind(string(cfg.Type))
	if err != nil {
		return nil, err
	}
	if kind != KindSQLite && cfg.Location == "" && cfg.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingLocation, kind)
	}
	key := keyFor(kind, cfg)

	f.mu.RLock()
	m, ok := f.managers[key]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok = f.managers[key]; ok {
		return m, nil
	}

	normalized := *cfg
	normalized.Type = kind
	if m, err = f.constructor(&normalized, f.logger); err != nil {
		return nil, err
	}
	if err = m.Initialize(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to initialize %s manager: %w", kind, err)
	}
	f.managers[key] = m
	f.logger.Debug("Manager created", "backend", kind)
	return m, nil
}

// Len reports how many managers are cached.
func (f *Factory) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.managers)
}

// CloseAll closes and forgets every cached manager. Later calls to
// GetManager build fresh instances.
func (f *Factory) CloseAll() error {
	f.mu.Lock()
	managers := f.managers
	f.managers = make(map[managerKey]Manager)
	f.mu.Unlock()

	var errs []error
	for key, m := range managers {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s manager: %w", key.kind, err))
		}
	}
	return errors.Join(errs...)
}
