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
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

var (
	ErrUnsupportedBackend    = errors.New("unsupported backend kind")
	ErrMissingLocation       = errors.New("backend requires a connection string")
	ErrNotInitialized        = errors.New("database manager not initialized")
	ErrManagerClosed         = errors.New("database manager closed")
	ErrTransactionInProgress = errors.New("transaction already in progress on this connection")
	ErrNoTransaction         = errors.New("no transaction in progress")
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoColumnErr
	NoTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	BusyErr
	CanceledErr
)

var sqlErrorNames = map[SQLError]string{
	UnknownErr:                  "unknown",
	NoRowsErr:                   "no_rows",
	NoColumnErr:                 "no_column",
	NoTableErr:                  "no_table",
	DuplicateKeyErr:             "duplicate_key",
	NotNullViolationErr:         "not_null_violation",
	ForeignKeyViolationErr:      "foreign_key_violation",
	CheckConstraintViolationErr: "check_violation",
	DataTruncatedErr:            "data_truncated",
	BusyErr:                     "busy",
	CanceledErr:                 "canceled",
}

func (e SQLError) String() string {
	if s, ok := sqlErrorNames[e]; ok {
		return s
	}
	return sqlErrorNames[UnknownErr]
}

// IsConstraintViolation reports whether the kind is a rejected write rather
// than a connectivity or schema problem.
func (e SQLError) IsConstraintViolation() bool {
	switch e {
	case DuplicateKeyErr, NotNullViolationErr, ForeignKeyViolationErr, CheckConstraintViolationErr, DataTruncatedErr:
		return true
	}
	return false
}

// ClassifyError maps a driver error from any supported backend to a SQLError.
func ClassifyError(err error) SQLError {
	if err == nil {
		return UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NoRowsErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CanceledErr
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1054:
			return NoColumnErr
		case 1146:
			return NoTableErr
		case 1062:
			return DuplicateKeyErr
		case 1048:
			return NotNullViolationErr
		case 1216, 1217, 1451, 1452:
			return ForeignKeyViolationErr
		case 3819:
			return CheckConstraintViolationErr
		case 1265, 1406:
			return DataTruncatedErr
		case 1205, 1213:
			return BusyErr
		}
		return UnknownErr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42703":
			return NoColumnErr
		case "42P01":
			return NoTableErr
		case "23505":
			return DuplicateKeyErr
		case "23502":
			return NotNullViolationErr
		case "23503":
			return ForeignKeyViolationErr
		case "23514":
			return CheckConstraintViolationErr
		case "22001":
			return DataTruncatedErr
		case "40001", "40P01", "55P03":
			return BusyErr
		}
		return UnknownErr
	}

	// SQLite drivers only expose messages consistently.
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "no such column"):
		return NoColumnErr
	case strings.Contains(s, "no such table"):
		return NoTableErr
	case strings.Contains(s, "unique constraint failed"), strings.Contains(s, "primary key must be unique"):
		return DuplicateKeyErr
	case strings.Contains(s, "not null constraint failed"):
		return NotNullViolationErr
	case strings.Contains(s, "foreign key constraint failed"):
		return ForeignKeyViolationErr
	case strings.Contains(s, "check constraint failed"):
		return CheckConstraintViolationErr
	case strings.Contains(s, "database is locked"), strings.Contains(s, "sqlite_busy"):
		return BusyErr
	}
	return UnknownErr
}

// IsCanceled reports whether err came from a cancelled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
