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
	"github.com/google/uuid"
	"github.com/tomoncle/cartstore/types"
)

// ColumnKind tells the coercion step how to read a raw column value.
type ColumnKind int

const (
	ColumnText ColumnKind = iota
	ColumnID
	ColumnTimestamp
	ColumnNumber
)

// ColumnKinds maps the columns of one table to their kinds.
type ColumnKinds map[string]ColumnKind

var (
	userColumns = ColumnKinds{
		"id":          ColumnID,
		"username":    ColumnText,
		"first_name":  ColumnText,
		"external_id": ColumnNumber,
		"created_at":  ColumnTimestamp,
		"updated_at":  ColumnTimestamp,
	}
	cartColumns = ColumnKinds{
		"id":         ColumnID,
		"name":       ColumnText,
		"created_at": ColumnTimestamp,
		"updated_at": ColumnTimestamp,
	}
	productColumns = ColumnKinds{
		"id":         ColumnID,
		"name":       ColumnText,
		"price":      ColumnNumber,
		"created_at": ColumnTimestamp,
		"updated_at": ColumnTimestamp,
	}
	membershipColumns = ColumnKinds{
		"user_id":    ColumnID,
		"cart_id":    ColumnID,
		"role":       ColumnText,
		"created_at": ColumnTimestamp,
	}
	containmentColumns = ColumnKinds{
		"cart_id":    ColumnID,
		"product_id": ColumnID,
		"quantity":   ColumnNumber,
		"added_at":   ColumnTimestamp,
	}
	archiveColumns = ColumnKinds{
		"cart_id":    ColumnID,
		"product_id": ColumnID,
		"quantity":   ColumnNumber,
		"added_at":   ColumnTimestamp,
		"removed_at": ColumnTimestamp,
	}

	// Raw cart queries usually join memberships; product queries join
	// containment or archive rows.
	cartMembershipColumns = cartColumns.Merge(membershipColumns)
	productItemColumns    = productColumns.Merge(containmentColumns).Merge(archiveColumns)
)

// Merge returns a table covering both k and other; other wins on overlap.
func (k ColumnKinds) Merge(other ColumnKinds) ColumnKinds {
	merged := make(ColumnKinds, len(k)+len(other))
	for name, kind := range k {
		merged[name] = kind
	}
	for name, kind := range other {
		merged[name] = kind
	}
	return merged
}

// Coerce converts a raw row in place. Identifier columns become uuid.UUID and
// timestamp columns become time.Time when their text parses; otherwise the
// text is kept as a string. Coercion never fails a row.
func (k ColumnKinds) Coerce(row map[string]interface{}) map[string]interface{} {
	for name, value := range row {
		text, isText := asText(value)
		if !isText {
			continue
		}
		switch k[name] {
		case ColumnID:
			if id, err := uuid.Parse(text); err == nil {
				row[name] = id
			} else {
				row[name] = text
			}
		case ColumnTimestamp:
			if t, err := types.ParseTimestamp(text); err == nil {
				row[name] = t
			} else {
				row[name] = text
			}
		default:
			row[name] = text
		}
	}
	return row
}

func asText(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}
