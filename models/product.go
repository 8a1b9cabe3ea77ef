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

package models

import (
	"math"

	"github.com/google/uuid"
	"github.com/tomoncle/cartstore/types"
	"github.com/uptrace/bun"
)

type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID        uuid.UUID       `bun:"id,pk"`
	Name      string          `bun:"name"`
	Price     float64         `bun:"price"`
	CreatedAt types.Timestamp `bun:"created_at"`
	UpdatedAt types.Timestamp `bun:"updated_at"`
}

type ProductCreate struct {
	ID        uuid.UUID
	Name      string
	Price     float64
	CreatedAt types.Timestamp
}

func (in ProductCreate) Fields() (map[string]interface{}, error) {
	if err := checkLength("name", in.Name, 1, 100); err != nil {
		return nil, err
	}
	if err := checkPrice(in.Price); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"name": in.Name, "price": in.Price}
	identity(fields, in.ID, in.CreatedAt)
	return fields, nil
}

type ProductUpdate struct {
	Name  *string
	Price *float64
}

func (in ProductUpdate) Fields() (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if in.Name != nil {
		if err := checkLength("name", *in.Name, 1, 100); err != nil {
			return nil, err
		}
		fields["name"] = *in.Name
	}
	if in.Price != nil {
		if err := checkPrice(*in.Price); err != nil {
			return nil, err
		}
		fields["price"] = *in.Price
	}
	return fields, nil
}

func checkPrice(p float64) error {
	if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return types.NewValidationError("price", "must be a non-negative number, got %v", p)
	}
	return nil
}

// CartProduct places a product into a cart.
type CartProduct struct {
	bun.BaseModel `bun:"table:cart_product,alias:cp"`

	CartID    uuid.UUID       `bun:"cart_id"`
	ProductID uuid.UUID       `bun:"product_id"`
	Quantity  int             `bun:"quantity"`
	AddedAt   types.Timestamp `bun:"added_at"`
}

// ArchiveEntry is a containment row kept after removal. CartID becomes
// types.DetachedRef once the cart itself is deleted.
type ArchiveEntry struct {
	bun.BaseModel `bun:"table:cart_product_archive,alias:cpa"`

	CartID    types.Ref       `bun:"cart_id"`
	ProductID uuid.UUID       `bun:"product_id"`
	Quantity  int             `bun:"quantity"`
	AddedAt   types.Timestamp `bun:"added_at"`
	RemovedAt types.Timestamp `bun:"removed_at"`
}
