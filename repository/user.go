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
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tomoncle/cartstore/database"
	"github.com/tomoncle/cartstore/models"
	"github.com/uptrace/bun"
)

type UserRepository struct {
	*baseRepository[models.User, models.UserCreate, models.UserUpdate]
}

func NewUserRepository(manager database.Manager) *UserRepository {
	return &UserRepository{
		baseRepository: newBaseRepository[models.User, models.UserCreate, models.UserUpdate](manager, database.TableUsers, userColumns),
	}
}

func (r *UserRepository) GetByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	return r.findOne(ctx, "get_by_external_id", "external_id", externalID)
}

// GetByUsername matches the stored lower-case form.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "get_by_username", "username", strings.ToLower(username))
}

// SearchByName returns users whose first name contains query, by first name.
func (r *UserRepository) SearchByName(ctx context.Context, query string, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 20
	}
	users := make([]*models.User, 0)
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model(&users).
			Where("u.first_name LIKE ?", "%"+query+"%").
			OrderExpr("u.first_name").
			Limit(limit).
			Scan(ctx)
	})
	if err != nil {
		return make([]*models.User, 0), r.fail("search_by_name", err)
	}
	return users, nil
}

// UsersInCart lists every member of a cart ordered by first name.
func (r *UserRepository) UsersInCart(ctx context.Context, cartID uuid.UUID) ([]*models.User, error) {
	users := make([]*models.User, 0)
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model(&users).
			Join("JOIN user_cart AS uc ON uc.user_id = u.id").
			Where("uc.cart_id = ?", cartID.String()).
			OrderExpr("u.first_name").
			Scan(ctx)
	})
	if err != nil {
		return make([]*models.User, 0), r.fail("users_in_cart", err)
	}
	return users, nil
}

// CreateOrUpdateByExternalID updates the user owning input.ExternalID, or
// creates it. A failed update falls back to the stored record; a failed
// creation is reported as ErrNotCreated.
func (r *UserRepository) CreateOrUpdateByExternalID(ctx context.Context, input models.UserCreate) (*models.User, error) {
	existing, err := r.GetByExternalID(ctx, input.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		updated, err := r.Update(ctx, existing.ID, input.AsUpdate())
		if err != nil {
			return nil, err
		}
		if updated == nil {
			return existing, nil
		}
		return updated, nil
	}

	created, err := r.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("%w: user with external id %d", ErrNotCreated, input.ExternalID)
	}
	return created, nil
}

// WithCarts does not load relations yet; it returns the user alone.
func (r *UserRepository) WithCarts(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.GetByID(ctx, id)
}

// BulkCreate validates every input up front, then inserts them one by one.
// Items the store rejects are logged and skipped.
func (r *UserRepository) BulkCreate(ctx context.Context, inputs []models.UserCreate) ([]*models.User, error) {
	batch := make([]map[string]interface{}, 0, len(inputs))
	for _, input := range inputs {
		fields, err := r.creationFields(input)
		if err != nil {
			return nil, err
		}
		batch = append(batch, fields)
	}

	created := make([]*models.User, 0, len(batch))
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		for i, fields := range batch {
			user, err := r.insert(ctx, conn, fields)
			if err != nil {
				if database.IsCanceled(err) {
					return err
				}
				r.logger.Warn("Skipping user in bulk create",
					"index", i,
					"username", fields["username"],
					"kind", database.ClassifyError(err),
					"error", err,
				)
				continue
			}
			if user != nil {
				created = append(created, user)
			}
		}
		return nil
	})
	if err != nil {
		return created, r.fail("bulk_create", err)
	}
	return created, nil
}
