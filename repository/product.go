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

	"github.com/google/uuid"
	"github.com/tomoncle/cartstore/database"
	"github.com/tomoncle/cartstore/models"
	"github.com/tomoncle/cartstore/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
)

const defaultSearchLimit = 20

type ProductRepository struct {
	*baseRepository[models.Product, models.ProductCreate, models.ProductUpdate]
}

func NewProductRepository(manager database.Manager) *ProductRepository {
	return &ProductRepository{
		baseRepository: newBaseRepository[models.Product, models.ProductCreate, models.ProductUpdate](manager, database.TableProducts, productItemColumns),
	}
}

// SearchByName returns products whose name contains query, ordered by name.
func (r *ProductRepository) SearchByName(ctx context.Context, query string, limit int) ([]*models.Product, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	products := make([]*models.Product, 0)
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model(&products).
			Where("p.name LIKE ?", "%"+query+"%").
			OrderExpr("p.name").
			Limit(limit).
			Scan(ctx)
	})
	if err != nil {
		return make([]*models.Product, 0), r.fail("search_by_name", err)
	}
	return products, nil
}

// AddToCart places a product in a cart. A product already in the cart is
// left untouched and still reported as success. Zero quantity means one.
func (r *ProductRepository) AddToCart(ctx context.Context, productID, cartID uuid.UUID, quantity int) (bool, error) {
	item, err := newCartProduct(cartID, productID, quantity)
	if err != nil {
		return false, err
	}
	err = r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		_, err := ignoreConflicts(conn, conn.NewInsert().Model(item)).Exec(ctx)
		return err
	})
	if err != nil {
		return false, r.fail("add_to_cart", err)
	}
	return true, nil
}

// RemoveFromCart moves the containment row into the archive.
func (r *ProductRepository) RemoveFromCart(ctx context.Context, productID, cartID uuid.UUID) (bool, error) {
	var removed bool
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return r.manager.Transactions(conn).Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO cart_product_archive (cart_id, product_id, quantity, added_at, removed_at)
				SELECT cart_id, product_id, quantity, added_at, ? FROM cart_product
				WHERE cart_id = ? AND product_id = ?`,
				types.Now(), cartID.String(), productID.String(),
			)
			if err != nil {
				return err
			}
			res, err := tx.NewDelete().
				Model((*models.CartProduct)(nil)).
				Where("cart_id = ?", cartID.String()).
				Where("product_id = ?", productID.String()).
				Exec(ctx)
			if err != nil {
				return err
			}
			removed, err = affected(res)
			return err
		})
	})
	if err != nil {
		return false, r.fail("remove_from_cart", err)
	}
	return removed, nil
}

func (r *ProductRepository) ProductsInCart(ctx context.Context, cartID uuid.UUID) ([]*models.Product, error) {
	products := make([]*models.Product, 0)
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model(&products).
			Join("JOIN cart_product AS cp ON cp.product_id = p.id").
			Where("cp.cart_id = ?", cartID.String()).
			OrderExpr("p.name").
			Scan(ctx)
	})
	if err != nil {
		return make([]*models.Product, 0), r.fail("products_in_cart", err)
	}
	return products, nil
}

// CartItems lists the containment rows of a cart, oldest first.
func (r *ProductRepository) CartItems(ctx context.Context, cartID uuid.UUID) ([]*models.CartProduct, error) {
	items := make([]*models.CartProduct, 0)
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model(&items).
			Where("cart_id = ?", cartID.String()).
			OrderExpr("added_at").
			Scan(ctx)
	})
	if err != nil {
		return make([]*models.CartProduct, 0), r.fail("cart_items", err)
	}
	return items, nil
}

func (r *ProductRepository) CartsWithProduct(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0)
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model((*models.CartProduct)(nil)).
			Column("cart_id").
			Where("product_id = ?", productID.String()).
			OrderExpr("added_at").
			Scan(ctx, &ids)
	})
	if err != nil {
		return make([]uuid.UUID, 0), r.fail("carts_with_product", err)
	}
	return ids, nil
}

// BatchAddToCart adds every product to the cart in one statement and reports
// how many rows were inserted. Products already in the cart are skipped.
func (r *ProductRepository) BatchAddToCart(ctx context.Context, cartID uuid.UUID, productIDs []uuid.UUID, quantity int) (int, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	items := make([]models.CartProduct, 0, len(productIDs))
	seen := make(map[uuid.UUID]struct{}, len(productIDs))
	for _, productID := range productIDs {
		if _, ok := seen[productID]; ok {
			continue
		}
		seen[productID] = struct{}{}
		item, err := newCartProduct(cartID, productID, quantity)
		if err != nil {
			return 0, err
		}
		items = append(items, *item)
	}

	var inserted int64
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		res, err := ignoreConflicts(conn, conn.NewInsert().Model(&items)).Exec(ctx)
		if err != nil {
			return err
		}
		inserted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, r.fail("batch_add_to_cart", err)
	}
	return int(inserted), nil
}

func (r *ProductRepository) UpdateQuantity(ctx context.Context, productID, cartID uuid.UUID, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, types.NewValidationError("quantity", "must be greater than 0")
	}
	var changed bool
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		res, err := conn.NewUpdate().
			Model((*models.CartProduct)(nil)).
			Set("quantity = ?", quantity).
			Where("cart_id = ?", cartID.String()).
			Where("product_id = ?", productID.String()).
			Exec(ctx)
		if err != nil {
			return err
		}
		changed, err = affected(res)
		return err
	})
	if err != nil {
		return false, r.fail("update_quantity", err)
	}
	return changed, nil
}

// Archive lists every removal of a product, most recent first. Entries whose
// cart was deleted carry types.DetachedRef as cart id.
func (r *ProductRepository) Archive(ctx context.Context, productID uuid.UUID) ([]*models.ArchiveEntry, error) {
	entries := make([]*models.ArchiveEntry, 0)
	err := r.manager.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model(&entries).
			Where("product_id = ?", productID.String()).
			OrderExpr("removed_at DESC").
			Scan(ctx)
	})
	if err != nil {
		return make([]*models.ArchiveEntry, 0), r.fail("archive", err)
	}
	return entries, nil
}

func newCartProduct(cartID, productID uuid.UUID, quantity int) (*models.CartProduct, error) {
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, types.NewValidationError("quantity", "must be greater than 0")
	}
	return &models.CartProduct{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   types.Now(),
	}, nil
}

func ignoreConflicts(idb bun.IDB, q *bun.InsertQuery) *bun.InsertQuery {
	if idb.Dialect().Features().Has(feature.InsertOnConflict) {
		return q.On("CONFLICT DO NOTHING")
	}
	return q.Ignore()
}
