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

package types

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// DetachedRef is written into archive rows whose cart has been deleted.
const DetachedRef = "---"

// Ref is a best-effort identifier column: a UUID when the stored text parses,
// otherwise the raw text (for example DetachedRef).
type Ref struct {
	UUID uuid.UUID
	Raw  string
}

func RefOf(id uuid.UUID) Ref { return Ref{UUID: id} }

func ParseRef(s string) Ref {
	if id, err := uuid.Parse(s); err == nil {
		return Ref{UUID: id}
	}
	return Ref{Raw: s}
}

// Valid reports whether the reference holds a UUID.
func (r Ref) Valid() bool { return r.Raw == "" && r.UUID != uuid.Nil }

// Detached reports whether the referenced cart was deleted.
func (r Ref) Detached() bool { return r.Raw == DetachedRef }

func (r Ref) String() string {
	if r.Raw != "" {
		return r.Raw
	}
	return r.UUID.String()
}

func (r *Ref) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = Ref{}
	case string:
		*r = ParseRef(v)
	case []byte:
		if len(v) == 16 {
			var id uuid.UUID
			copy(id[:], v)
			*r = Ref{UUID: id}
			return nil
		}
		*r = ParseRef(string(v))
	default:
		*r = Ref{Raw: fmt.Sprint(v)}
	}
	return nil
}

func (r Ref) Value() (driver.Value, error) {
	if r.Raw == "" && r.UUID == uuid.Nil {
		return nil, nil
	}
	return r.String(), nil
}
