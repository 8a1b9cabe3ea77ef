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
	"database/sql"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/tomoncle/cartstore/database"
	"github.com/tomoncle/cartstore/models"
	"github.com/tomoncle/cartstore/types"
	"github.com/uptrace/bun"
)

type baseRepository[T any, C models.Input, U models.Input] struct {
	manager database.Manager
	table   string
	columns ColumnKinds
	logger  database.Logger
}

var _ Repository[models.User, models.UserCreate, models.UserUpdate] = (*baseRepository[models.User, models.UserCreate, models.UserUpdate])(nil)

func newBaseRepository[T any, C models.Input, U models.Input](manager database.Manager, table string, columns ColumnKinds) *baseRepository[T, C, U] {
	return &baseRepository[T, C, U]{
		manager: manager,
		table:   table,
		columns: columns,
		logger:  manager.Logger(),
	}
}

func (r *baseRepository[T, C, U]) Table() string { return r.table }

func (r *baseRepository[T, C, U]) Create(ctx context.Context, input C) (*T, error) {
	fields, err := r.creationFields(input)
	if err != nil {
		return nil, err
	}
	var created *T
	err = r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		created, err = r.insert(ctx, conn, fields)
		return err
	})
	if err != nil {
		return nil, r.fail("create", err)
	}
	return created, nil
}

func (r *baseRepository[T, C, U]) GetByID(ctx context.Context, id uuid.UUID) (*T, error) {
	return r.findOne(ctx, "get_by_id", "id", id.String())
}

func (r *baseRepository[T, C, U]) GetAll(ctx context.Context, skip, limit int, filters types.Filters) ([]*T, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	if skip < 0 {
		skip = types.DefaultSkip
	}
	if limit <= 0 {
		limit = types.DefaultLimit
	}
	entities := make([]*T, 0)
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return applyFilters(conn.NewSelect().Model(&entities), filters).
			OrderExpr("? DESC", bun.Ident("created_at")).
			Offset(skip).
			Limit(limit).
			Scan(ctx)
	})
	if err != nil {
		return make([]*T, 0), r.fail("get_all", err)
	}
	return entities, nil
}

func (r *baseRepository[T, C, U]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewDefaultPageRequest(1, 10)
	}
	filters := pageRequest.GetFilters()
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		var entities []*T
		query := applyFilters(conn.NewSelect().Model(&entities), filters)
		total, err := query.Count(ctx)
		if err != nil || total == 0 {
			return err
		}
		err = query.
			OrderExpr("? DESC", bun.Ident("created_at")).
			Offset(pageRequest.GetOffset()).
			Limit(pageRequest.GetPageSize()).
			Scan(ctx)
		if err != nil {
			return err
		}
		pagination.Total = total
		pagination.Items = entities
		return nil
	})
	if err != nil {
		return types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize()), r.fail("page", err)
	}
	return pagination, nil
}

func (r *baseRepository[T, C, U]) Update(ctx context.Context, id uuid.UUID, input U) (*T, error) {
	fields, err := input.Fields()
	if err != nil {
		return nil, err
	}
	if err = checkColumns(fields); err != nil {
		return nil, err
	}
	delete(fields, "id")
	delete(fields, "created_at")

	var updated *T
	err = r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		if len(fields) == 0 {
			updated, err = r.getByID(ctx, conn, id.String())
			return err
		}
		fields["updated_at"] = types.Now()
		return r.manager.Transactions(conn).Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
			res, err := tx.NewUpdate().
				Model(&fields).
				TableExpr(r.table).
				Where("? = ?", bun.Ident("id"), id.String()).
				Exec(ctx)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil || n == 0 {
				return err
			}
			updated, err = r.getByID(ctx, tx, id.String())
			return err
		})
	})
	if err != nil {
		return nil, r.fail("update", err)
	}
	return updated, nil
}

func (r *baseRepository[T, C, U]) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var removed bool
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		res, err := conn.NewDelete().
			Model((*T)(nil)).
			Where("? = ?", bun.Ident("id"), id.String()).
			Exec(ctx)
		if err != nil {
			return err
		}
		removed, err = affected(res)
		return err
	})
	if err != nil {
		return false, r.fail("delete", err)
	}
	return removed, nil
}

func (r *baseRepository[T, C, U]) Count(ctx context.Context, filters types.Filters) (int, error) {
	if err := filters.Validate(); err != nil {
		return 0, err
	}
	var total int
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) (err error) {
		total, err = applyFilters(conn.NewSelect().Model((*T)(nil)), filters).Count(ctx)
		return err
	})
	if err != nil {
		return 0, r.fail("count", err)
	}
	return total, nil
}

func (r *baseRepository[T, C, U]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var found bool
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) (err error) {
		found, err = conn.NewSelect().
			Model((*T)(nil)).
			Where("? = ?", bun.Ident("id"), id.String()).
			Exists(ctx)
		return err
	})
	if err != nil {
		return false, r.fail("exists", err)
	}
	return found, nil
}

func (r *baseRepository[T, C, U]) Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := r.manager.ExecuteQuery(ctx, query, args...)
	if err != nil {
		return make([]map[string]interface{}, 0), r.fail("query", err)
	}
	for _, row := range rows {
		r.columns.Coerce(row)
	}
	return rows, nil
}

// creationFields validates the input and fills in the identity and creation
// timestamp when the caller left them out.
func (r *baseRepository[T, C, U]) creationFields(input C) (map[string]interface{}, error) {
	fields, err := input.Fields()
	if err != nil {
		return nil, err
	}
	if err = checkColumns(fields); err != nil {
		return nil, err
	}
	if _, ok := fields["id"]; !ok {
		fields["id"] = uuid.NewString()
	}
	if _, ok := fields["created_at"]; !ok {
		fields["created_at"] = types.Now()
	}
	return fields, nil
}

// insert writes one row and re-reads it so callers get the stored form.
func (r *baseRepository[T, C, U]) insert(ctx context.Context, idb bun.IDB, fields map[string]interface{}) (*T, error) {
	if _, err := idb.NewInsert().Model(&fields).TableExpr(r.table).Exec(ctx); err != nil {
		return nil, err
	}
	return r.getByID(ctx, idb, fields["id"])
}

func (r *baseRepository[T, C, U]) getByID(ctx context.Context, idb bun.IDB, id interface{}) (*T, error) {
	return selectOne[T](ctx, idb, "id", id)
}

func (r *baseRepository[T, C, U]) findOne(ctx context.Context, op, column string, value interface{}) (*T, error) {
	var entity *T
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) (err error) {
		entity, err = selectOne[T](ctx, conn, column, value)
		return err
	})
	if err != nil {
		return nil, r.fail(op, err)
	}
	return entity, nil
}

// fail logs a store failure and swallows it. Validation errors and context
// cancellation are handed back to the caller.
func (r *baseRepository[T, C, U]) fail(op string, err error) error {
	if errors.Is(err, types.ErrValidation) || errors.Is(err, types.ErrInvalidFilterKey) || database.IsCanceled(err) {
		return err
	}
	r.logger.Error("Store operation failed",
		"table", r.table,
		"op", op,
		"kind", database.ClassifyError(err),
		"error", err,
	)
	return nil
}

func selectOne[T any](ctx context.Context, idb bun.IDB, column string, value interface{}) (*T, error) {
	entity := new(T)
	err := idb.NewSelect().
		Model(entity).
		Where("? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// checkColumns rejects field names that are not bare identifiers before they
// reach the statement text.
func checkColumns(fields map[string]interface{}) error {
	for name := range fields {
		if !types.IsIdentifier(name) {
			return types.NewValidationError(name, "is not a valid column name")
		}
	}
	return nil
}

func applyFilters(q *bun.SelectQuery, filters types.Filters) *bun.SelectQuery {
	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if value := filters[key]; value == nil {
			q = q.Where("? IS NULL", bun.Ident(key))
		} else {
			q = q.Where("? = ?", bun.Ident(key), value)
		}
	}
	return q
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
