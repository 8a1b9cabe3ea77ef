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
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/tomoncle/cartstore/types"
	"github.com/uptrace/bun"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID         uuid.UUID       `bun:"id,pk"`
	Username   string          `bun:"username"`
	FirstName  *string         `bun:"first_name"`
	ExternalID int64           `bun:"external_id"`
	CreatedAt  types.Timestamp `bun:"created_at"`
	UpdatedAt  types.Timestamp `bun:"updated_at"`
}

// UserCreate registers a user. Username is folded to lower case.
type UserCreate struct {
	ID         uuid.UUID
	Username   string
	FirstName  *string
	ExternalID int64
	CreatedAt  types.Timestamp
}

func (in UserCreate) Fields() (map[string]interface{}, error) {
	username, err := normalizeUsername(in.Username)
	if err != nil {
		return nil, err
	}
	if err = checkFirstName(in.FirstName); err != nil {
		return nil, err
	}
	if in.ExternalID <= 0 {
		return nil, types.NewValidationError("external_id", "must be positive, got %d", in.ExternalID)
	}
	fields := map[string]interface{}{
		"username":    username,
		"external_id": in.ExternalID,
	}
	if in.FirstName != nil {
		fields["first_name"] = *in.FirstName
	}
	identity(fields, in.ID, in.CreatedAt)
	return fields, nil
}

// AsUpdate keeps the mutable fields; the external identity never changes.
func (in UserCreate) AsUpdate() UserUpdate {
	username := in.Username
	return UserUpdate{Username: &username, FirstName: in.FirstName}
}

// UserUpdate carries only the fields to change; nil means unset.
type UserUpdate struct {
	Username  *string
	FirstName *string
}

func (in UserUpdate) Fields() (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if in.Username != nil {
		username, err := normalizeUsername(*in.Username)
		if err != nil {
			return nil, err
		}
		fields["username"] = username
	}
	if in.FirstName != nil {
		if err := checkFirstName(in.FirstName); err != nil {
			return nil, err
		}
		fields["first_name"] = *in.FirstName
	}
	return fields, nil
}

func normalizeUsername(s string) (string, error) {
	if err := checkLength("username", s, 3, 50); err != nil {
		return "", err
	}
	if !usernamePattern.MatchString(s) {
		return "", types.NewValidationError("username", "may contain only letters, digits and underscores")
	}
	return strings.ToLower(s), nil
}

func checkFirstName(s *string) error {
	if s == nil {
		return nil
	}
	return checkLength("first_name", *s, 1, 100)
}
