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
	"github.com/google/uuid"
	"github.com/tomoncle/cartstore/types"
	"github.com/uptrace/bun"
)

type Cart struct {
	bun.BaseModel `bun:"table:carts,alias:c"`

	ID        uuid.UUID       `bun:"id,pk"`
	Name      string          `bun:"name"`
	CreatedAt types.Timestamp `bun:"created_at"`
	UpdatedAt types.Timestamp `bun:"updated_at"`
}

type CartCreate struct {
	ID        uuid.UUID
	Name      string
	CreatedAt types.Timestamp
}

func (in CartCreate) Fields() (map[string]interface{}, error) {
	if err := checkLength("name", in.Name, 1, 100); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"name": in.Name}
	identity(fields, in.ID, in.CreatedAt)
	return fields, nil
}

type CartUpdate struct {
	Name *string
}

func (in CartUpdate) Fields() (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if in.Name != nil {
		if err := checkLength("name", *in.Name, 1, 100); err != nil {
			return nil, err
		}
		fields["name"] = *in.Name
	}
	return fields, nil
}

// Membership grants a user a role on a cart.
type Membership struct {
	bun.BaseModel `bun:"table:user_cart,alias:uc"`

	UserID    uuid.UUID       `bun:"user_id"`
	CartID    uuid.UUID       `bun:"cart_id"`
	Role      types.Role      `bun:"role"`
	CreatedAt types.Timestamp `bun:"created_at"`
}

// CartMembership is a cart as seen by one of its members.
type CartMembership struct {
	Cart `bun:",extend"`

	Role types.Role `bun:"role"`
}
