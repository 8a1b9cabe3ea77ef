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

import "regexp"

const (
	DefaultSkip  = 0
	DefaultLimit = 100
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s is safe to splice into SQL as a bare column name.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Filters is an equality-only column to value mapping.
type Filters map[string]interface{}

// Validate rejects the first key that is not a bare identifier.
func (f Filters) Validate() error {
	for key := range f {
		if !IsIdentifier(key) {
			return &InvalidFilterKeyError{Key: key}
		}
	}
	return nil
}

// PageRequest describes 1-based pagination and an optional equality filter.
type PageRequest struct {
	page     int
	pageSize int
	filters  Filters
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = 10
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = 1
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetFilters() Filters {
	return p.filters
}

// NewPageRequest constructs a PageRequest with filters.
func NewPageRequest(page int, pageSize int, filters Filters) *PageRequest {
	return &PageRequest{page, pageSize, filters}
}

// NewDefaultPageRequest constructs a PageRequest without filters.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil)
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int
	Items    []*T
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{page, pageSize, 0, make([]*T, 0)}
}

// Pages returns the number of pages needed for Total items.
func (p *Pagination[T]) Pages() int {
	if p.PageSize < 1 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}
