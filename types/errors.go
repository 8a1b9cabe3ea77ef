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
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller errors: malformed input or identifier-shaped
	// names that are not bare identifiers.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFilterKey is returned before any statement runs when a filter
	// mapping carries a key that is not a bare identifier.
	ErrInvalidFilterKey = errors.New("invalid filter key")
)

// ValidationError describes a single rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidFilterKeyError carries the offending filter key.
type InvalidFilterKeyError struct {
	Key string
}

func (e *InvalidFilterKeyError) Error() string {
	return fmt.Sprintf("Invalid filter key: %s", e.Key)
}

func (e *InvalidFilterKeyError) Unwrap() error { return ErrInvalidFilterKey }
