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

import "strings"

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// SortOrder is the direction applied to PaginationOptions.SortBy.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SQL returns the keyword used in an ORDER BY clause.
func (o SortOrder) SQL() string {
	if strings.EqualFold(string(o), string(SortAsc)) {
		return "ASC"
	}
	return "DESC"
}

// PaginationOptions describes the requested page window and sort column.
type PaginationOptions struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder SortOrder
}

// Normalize returns a copy with defaults applied: page 1, limit 10, desc.
func (p PaginationOptions) Normalize() PaginationOptions {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.SortOrder == "" {
		p.SortOrder = SortDesc
	}
	return p
}

// Offset returns the number of rows skipped before the page starts.
func (p PaginationOptions) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// FilterOptions carries an opaque predicate and optional window/ordering.
// OrderBy entries use bun's "column DESC" syntax.
type FilterOptions struct {
	Where   *QueryFilter
	OrderBy []string
	Limit   int
	Offset  int
}

// FindOptions combines pagination with a filter for paginated reads.
type FindOptions struct {
	PaginationOptions
	Filter FilterOptions
}

// NewFindOptions builds FindOptions for the given page and limit.
func NewFindOptions(page, limit int) FindOptions {
	return FindOptions{PaginationOptions: PaginationOptions{Page: page, Limit: limit}}
}

// WithWhere returns a copy of the options with the predicate set.
func (o FindOptions) WithWhere(filter *QueryFilter) FindOptions {
	o.Filter.Where = filter
	return o
}

// WithSort returns a copy of the options sorted by the given column.
func (o FindOptions) WithSort(column string, order SortOrder) FindOptions {
	o.SortBy = column
	o.SortOrder = order
	return o
}

// WithOrderBy returns a copy with an explicit ordering; it takes precedence
// over SortBy.
func (o FindOptions) WithOrderBy(orders ...string) FindOptions {
	o.Filter.OrderBy = orders
	return o
}

// PageInfo is the metadata returned next to a page of results.
type PageInfo struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPageInfo computes page metadata. totalPages = ceil(total/limit).
func NewPageInfo(page, limit, total int) PageInfo {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if total < 0 {
		total = 0
	}
	totalPages := (total + limit - 1) / limit
	return PageInfo{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// PaginatedResult holds one page of rows along with pagination metadata.
type PaginatedResult[T any] struct {
	Data       []*T     `json:"data"`
	Pagination PageInfo `json:"pagination"`
}

// NewPaginatedResult builds a result, never returning a nil Data slice.
func NewPaginatedResult[T any](data []*T, page, limit, total int) *PaginatedResult[T] {
	if data == nil {
		data = make([]*T, 0)
	}
	return &PaginatedResult[T]{Data: data, Pagination: NewPageInfo(page, limit, total)}
}

// BulkResult reports the aggregate outcome of a batch update or delete.
// Count is the number of rows actually affected.
type BulkResult struct {
	Success bool    `json:"success"`
	Count   int     `json:"count"`
	Errors  []error `json:"errors,omitempty"`
}

// BulkOK returns a successful result affecting count rows.
func BulkOK(count int) *BulkResult {
	return &BulkResult{Success: true, Count: count}
}

// BulkFailed returns a failed result carrying err.
func BulkFailed(err error) *BulkResult {
	return &BulkResult{Success: false, Count: 0, Errors: []error{err}}
}
