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

	"github.com/google/uuid"
	"github.com/tomoncle/cartstore/database"
	"github.com/tomoncle/cartstore/models"
	"github.com/tomoncle/cartstore/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
)

type CartRepository struct {
	*baseRepository[models.Cart, models.CartCreate, models.CartUpdate]
}

func NewCartRepository(manager database.Manager) *CartRepository {
	return &CartRepository{
		baseRepository: newBaseRepository[models.Cart, models.CartCreate, models.CartUpdate](manager, database.TableCarts, cartMembershipColumns),
	}
}

// CartsByUser lists the carts a user belongs to with the user's role, newest first.
func (r *CartRepository) CartsByUser(ctx context.Context, userID uuid.UUID) ([]*models.CartMembership, error) {
	carts := make([]*models.CartMembership, 0)
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model(&carts).
			ColumnExpr("c.*").
			ColumnExpr("uc.role").
			Join("JOIN user_cart AS uc ON uc.cart_id = c.id").
			Where("uc.user_id = ?", userID.String()).
			OrderExpr("c.created_at DESC").
			Scan(ctx)
	})
	if err != nil {
		return make([]*models.CartMembership, 0), r.fail("carts_by_user", err)
	}
	return carts, nil
}

// AddUser grants role on a cart, replacing any role the user already had.
// An empty role means viewer.
func (r *CartRepository) AddUser(ctx context.Context, userID, cartID uuid.UUID, role types.Role) (bool, error) {
	if role == "" {
		role = types.RoleViewer
	}
	if !role.IsValid() {
		return false, types.NewValidationError("role", "unknown role %q", role)
	}
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return upsertMembership(ctx, conn, &models.Membership{
			UserID:    userID,
			CartID:    cartID,
			Role:      role,
			CreatedAt: types.Now(),
		})
	})
	if err != nil {
		return false, r.fail("add_user", err)
	}
	return true, nil
}

func (r *CartRepository) RemoveUser(ctx context.Context, userID, cartID uuid.UUID) (bool, error) {
	var removed bool
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		res, err := conn.NewDelete().
			Model((*models.Membership)(nil)).
			Where("user_id = ?", userID.String()).
			Where("cart_id = ?", cartID.String()).
			Exec(ctx)
		if err != nil {
			return err
		}
		removed, err = affected(res)
		return err
	})
	if err != nil {
		return false, r.fail("remove_user", err)
	}
	return removed, nil
}

func (r *CartRepository) UpdateUserRole(ctx context.Context, userID, cartID uuid.UUID, role types.Role) (bool, error) {
	if !role.IsValid() {
		return false, types.NewValidationError("role", "unknown role %q", role)
	}
	var changed bool
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		res, err := conn.NewUpdate().
			Model((*models.Membership)(nil)).
			Set("role = ?", role).
			Where("user_id = ?", userID.String()).
			Where("cart_id = ?", cartID.String()).
			Exec(ctx)
		if err != nil {
			return err
		}
		changed, err = affected(res)
		return err
	})
	if err != nil {
		return false, r.fail("update_user_role", err)
	}
	return changed, nil
}

// CartUsers lists the memberships of a cart ordered by role, then join time.
func (r *CartRepository) CartUsers(ctx context.Context, cartID uuid.UUID) ([]*models.Membership, error) {
	members := make([]*models.Membership, 0)
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model(&members).
			Where("cart_id = ?", cartID.String()).
			OrderExpr("role, created_at").
			Scan(ctx)
	})
	if err != nil {
		return make([]*models.Membership, 0), r.fail("cart_users", err)
	}
	return members, nil
}

// Owner returns the id of the cart's owner, or nil when there is none.
func (r *CartRepository) Owner(ctx context.Context, cartID uuid.UUID) (*uuid.UUID, error) {
	var owner *uuid.UUID
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		member := new(models.Membership)
		err := conn.NewSelect().
			Model(member).
			Where("cart_id = ?", cartID.String()).
			Where("role = ?", types.RoleOwner).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		owner = &member.UserID
		return nil
	})
	if err != nil {
		return nil, r.fail("owner", err)
	}
	return owner, nil
}

// CreateWithOwner inserts the cart and its owner membership in one
// transaction. Nothing is kept if either insert fails.
func (r *CartRepository) CreateWithOwner(ctx context.Context, input models.CartCreate, ownerID uuid.UUID) (*models.Cart, error) {
	fields, err := r.creationFields(input)
	if err != nil {
		return nil, err
	}
	var created *models.Cart
	err = r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return r.manager.Transactions(conn).Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
			cart, err := r.insert(ctx, tx, fields)
			if err != nil {
				return err
			}
			if cart == nil {
				return ErrNotCreated
			}
			err = upsertMembership(ctx, tx, &models.Membership{
				UserID:    ownerID,
				CartID:    cart.ID,
				Role:      types.RoleOwner,
				CreatedAt: types.Now(),
			})
			if err != nil {
				return err
			}
			created = cart
			return nil
		})
	})
	if err != nil {
		return nil, r.fail("create_with_owner", err)
	}
	return created, nil
}

// WithProducts does not load relations yet; it returns the cart alone.
func (r *CartRepository) WithProducts(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	return r.GetByID(ctx, id)
}

// WithUsersAndProducts does not load relations yet; it returns the cart alone.
func (r *CartRepository) WithUsersAndProducts(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	return r.GetByID(ctx, id)
}

// Archive lists products removed from a live cart, most recent first.
func (r *CartRepository) Archive(ctx context.Context, cartID uuid.UUID) ([]*models.ArchiveEntry, error) {
	entries := make([]*models.ArchiveEntry, 0)
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model(&entries).
			Where("cart_id = ?", cartID.String()).
			OrderExpr("removed_at DESC").
			Scan(ctx)
	})
	if err != nil {
		return make([]*models.ArchiveEntry, 0), r.fail("archive", err)
	}
	return entries, nil
}

func upsertMembership(ctx context.Context, idb bun.IDB, m *models.Membership) error {
	q := idb.NewInsert().Model(m)
	if idb.Dialect().Features().Has(feature.InsertOnConflict) {
		q = q.On("CONFLICT (user_id, cart_id) DO UPDATE").Set("role = EXCLUDED.role")
	} else {
		q = q.On("DUPLICATE KEY UPDATE role = VALUES(role)")
	}
	_, err := q.Exec(ctx)
	return err
}
