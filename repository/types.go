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

package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tomoncle/cartstore/models"
	"github.com/tomoncle/cartstore/types"
)

// ErrNotCreated is returned where a missing result cannot be expressed as an
// empty value.
var ErrNotCreated = errors.New("record was not created")

// CrudRepository defines basic CRUD operations for a record type T created
// from C and updated from U. Store failures are logged and surface as nil,
// false or zero; only validation failures and cancellation return an error.
type CrudRepository[T any, C models.Input, U models.Input] interface {
	Create(ctx context.Context, input C) (*T, error)

	GetByID(ctx context.Context, id uuid.UUID) (*T, error)

	GetAll(ctx context.Context, skip, limit int, filters types.Filters) ([]*T, error)

	Update(ctx context.Context, id uuid.UUID, input U) (*T, error)

	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	Count(ctx context.Context, filters types.Filters) (int, error)

	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// RawQueryRepository runs hand-written SELECTs and coerces the rows with the
// table's column kinds.
type RawQueryRepository interface {
	Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error)
}

// Repository combines CRUD, pagination and raw queries over one table.
type Repository[T any, C models.Input, U models.Input] interface {
	CrudRepository[T, C, U]
	PageQueryRepository[T]
	RawQueryRepository
	Table() string
}
