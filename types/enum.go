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
	"encoding/json"
	"fmt"
	"strings"
)

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// Role is the permission a user holds on a cart.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

var _ BaseEnum = Role("")

var roles = []struct {
	role Role
	desc string
}{
	{RoleOwner, "full control, one per cart"},
	{RoleEditor, "can change cart contents"},
	{RoleViewer, "read only access"},
}

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", NewValidationError("role", "must be one of owner, editor, viewer, got %q", s)
	}
	return r, nil
}

func (r Role) IsValid() bool { return r.Number() != IllegalValue }

func (r Role) Number() int {
	for i, item := range roles {
		if item.role == r {
			return i
		}
	}
	return IllegalValue
}

func (r Role) String() string { return string(r) }

func (r Role) Name() string {
	if !r.IsValid() {
		return IllegalName
	}
	return string(r)
}

func (r Role) Desc() string {
	if n := r.Number(); n != IllegalValue {
		return roles[n].desc
	}
	return IllegalDesc
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("role: %w", err)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
