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

// Package cartstore wires configuration, database managers and the entity
// repositories together. A Registry hands out one repository per entity and
// backend kind and one manager per backend.
package cartstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomoncle/cartstore/database"
	"github.com/tomoncle/cartstore/repository"
)

type Entity string

const (
	EntityUsers    Entity = "users"
	EntityCarts    Entity = "carts"
	EntityProducts Entity = "products"
)

type repoKey struct {
	entity Entity
	kind   database.Kind
}

// Registry caches repositories keyed by entity and backend kind. Managers are
// shared through the underlying database.Factory.
type Registry struct {
	config  *database.Config
	factory *database.Factory
	logger  database.Logger

	mu    sync.RWMutex
	repos map[repoKey]any
}

type Option func(*Registry)

func WithFactory(f *database.Factory) Option {
	return func(r *Registry) { r.factory = f }
}

func WithLogger(l database.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry builds a registry over cfg; a nil cfg means database.DefaultConfig().
func NewRegistry(cfg *database.Config, opts ...Option) *Registry {
	if cfg == nil {
		cfg = database.DefaultConfig()
	}
	r := &Registry{
		config: cfg,
		repos:  make(map[repoKey]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = database.NewLogger("CARTSTORE")
	}
	if r.factory == nil {
		r.factory = database.NewFactory(r.logger)
	}
	return r
}

// Open loads the YAML configuration at path (environment overrides applied),
// configures logging and returns a registry over it.
func Open(path string, opts ...Option) (*Registry, error) {
	cfg, err := database.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err = cfg.ApplyLogging(); err != nil {
		return nil, err
	}
	return NewRegistry(cfg, opts...), nil
}

func (r *Registry) Config() *database.Config { return r.config }

// Manager returns the initialized manager for kind. An empty kind selects the
// configured backend.
func (r *Registry) Manager(ctx context.Context, kind database.Kind) (database.Manager, error) {
	kind, err := r.resolve(kind)
	if err != nil {
		return nil, err
	}
	return r.manager(ctx, kind)
}

func (r *Registry) UserRepository(ctx context.Context, kind database.Kind) (*repository.UserRepository, error) {
	return lookup(ctx, r, EntityUsers, kind, repository.NewUserRepository)
}

func (r *Registry) CartRepository(ctx context.Context, kind database.Kind) (*repository.CartRepository, error) {
	return lookup(ctx, r, EntityCarts, kind, repository.NewCartRepository)
}

func (r *Registry) ProductRepository(ctx context.Context, kind database.Kind) (*repository.ProductRepository, error) {
	return lookup(ctx, r, EntityProducts, kind, repository.NewProductRepository)
}

// Len reports how many repositories are cached.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.repos)
}

// ClearCache forgets every repository. Managers stay open.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.repos = make(map[repoKey]any)
	r.mu.Unlock()
	r.logger.Debug("Repository cache cleared")
}

// CloseAll forgets every repository and closes every manager.
func (r *Registry) CloseAll() error {
	r.ClearCache()
	return r.factory.CloseAll()
}

func (r *Registry) resolve(kind database.Kind) (database.Kind, error) {
	if kind == "" {
		kind = r.config.Connection.Type
	}
	return database.ParseKind(string(kind))
}

func (r *Registry) manager(ctx context.Context, kind database.Kind) (database.Manager, error) {
	cc, err := r.config.ForKind(kind)
	if err != nil {
		return nil, err
	}
	return r.factory.GetManager(ctx, cc)
}

// lookup returns the cached repository for (entity, kind), building it on
// first use. Concurrent first callers receive the same instance.
func lookup[R any](ctx context.Context, r *Registry, entity Entity, kind database.Kind, build func(database.Manager) R) (R, error) {
	var zero R
	kind, err := r.resolve(kind)
	if err != nil {
		return zero, err
	}
	key := repoKey{entity: entity, kind: kind}

	r.mu.RLock()
	cached, ok := r.repos[key]
	r.mu.RUnlock()
	if ok {
		return cached.(R), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok = r.repos[key]; ok {
		return cached.(R), nil
	}
	m, err := r.manager(ctx, kind)
	if err != nil {
		return zero, fmt.Errorf("%s repository: %w", entity, err)
	}
	repo := build(m)
	r.repos[key] = repo
	r.logger.Debug("Repository created", "entity", entity, "backend", kind)
	return repo, nil
}
