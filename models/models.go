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

// Package models declares the stored records (bun models) and the creation and
// update inputs accepted by the repositories.
package models

import (
	"github.com/google/uuid"
	"github.com/tomoncle/cartstore/types"
)

// Input converts a creation or update payload into a column to value mapping.
// Only columns the caller actually set are included.
type Input interface {
	Fields() (map[string]interface{}, error)
}

// identity fills the id and created_at columns when the caller supplied them.
func identity(fields map[string]interface{}, id uuid.UUID, createdAt types.Timestamp) {
	if id != uuid.Nil {
		fields["id"] = id.String()
	}
	if createdAt.Valid() {
		fields["created_at"] = createdAt
	}
}

func checkLength(field, value string, min, max int) error {
	n := len([]rune(value))
	if n < min || n > max {
		return types.NewValidationError(field, "length must be between %d and %d, got %d", min, max, n)
	}
	return nil
}
