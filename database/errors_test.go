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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want SQLError
	}{
		{"nil", nil, UnknownErr},
		{"no rows", fmt.Errorf("lookup: %w", sql.ErrNoRows), NoRowsErr},
		{"canceled", fmt.Errorf("acquire: %w", context.Canceled), CanceledErr},
		{"deadline", context.DeadlineExceeded, CanceledErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, DuplicateKeyErr},
		{"mysql fk", &mysql.MySQLError{Number: 1452}, ForeignKeyViolationErr},
		{"mysql check", &mysql.MySQLError{Number: 3819}, CheckConstraintViolationErr},
		{"mysql lock", &mysql.MySQLError{Number: 1213}, BusyErr},
		{"mysql other", &mysql.MySQLError{Number: 9999}, UnknownErr},
		{"pq unique", &pq.Error{Code: "23505"}, DuplicateKeyErr},
		{"pq not null", &pq.Error{Code: "23502"}, NotNullViolationErr},
		{"pq missing table", &pq.Error{Code: "42P01"}, NoTableErr},
		{"sqlite unique", errors.New("UNIQUE constraint failed: users.username"), DuplicateKeyErr},
		{"sqlite fk", errors.New("FOREIGN KEY constraint failed"), ForeignKeyViolationErr},
		{"sqlite check", errors.New("CHECK constraint failed: quantity > 0"), CheckConstraintViolationErr},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), BusyErr},
		{"sqlite table", errors.New("no such table: carts"), NoTableErr},
		{"other", errors.New("boom"), UnknownErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestSQLErrorKinds(t *testing.T) {
	assert.Equal(t, "duplicate_key", DuplicateKeyErr.String())
	assert.Equal(t, "unknown", SQLError(99).String())
	assert.True(t, ForeignKeyViolationErr.IsConstraintViolation())
	assert.False(t, BusyErr.IsConstraintViolation())
	assert.True(t, IsCanceled(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.False(t, IsCanceled(errors.New("boom")))
}
