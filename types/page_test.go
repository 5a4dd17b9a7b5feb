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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPageInfo(t *testing.T) {
	cases := []struct {
		name               string
		page, limit, total int
		totalPages         int
		hasNext, hasPrev   bool
	}{
		{"middle page", 2, 10, 25, 3, true, true},
		{"last page", 3, 10, 25, 3, false, true},
		{"first page", 1, 10, 25, 3, true, false},
		{"empty", 1, 10, 0, 0, false, false},
		{"exact fit", 2, 5, 10, 2, false, true},
		{"single row", 1, 1, 1, 1, false, false},
		{"past the end", 5, 10, 25, 3, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := NewPageInfo(tc.page, tc.limit, tc.total)
			assert.Equal(t, tc.page, info.Page)
			assert.Equal(t, tc.limit, info.Limit)
			assert.Equal(t, tc.total, info.Total)
			assert.Equal(t, tc.totalPages, info.TotalPages)
			assert.Equal(t, tc.hasNext, info.HasNext)
			assert.Equal(t, tc.hasPrev, info.HasPrev)
		})
	}
}

func TestNewPageInfo_Invariants(t *testing.T) {
	for total := 0; total <= 40; total++ {
		for limit := 1; limit <= 7; limit++ {
			for page := 1; page <= 8; page++ {
				info := NewPageInfo(page, limit, total)
				want := total / limit
				if total%limit != 0 {
					want++
				}
				if info.TotalPages != want || info.HasNext != (page < want) || info.HasPrev != (page > 1) {
					t.Fatalf("page=%d limit=%d total=%d: got %+v", page, limit, total, info)
				}
			}
		}
	}
}

func TestPaginationOptions_Normalize(t *testing.T) {
	n := PaginationOptions{}.Normalize()
	assert.Equal(t, 1, n.Page)
	assert.Equal(t, 10, n.Limit)
	assert.Equal(t, SortDesc, n.SortOrder)

	n = PaginationOptions{Page: 3, Limit: 20, SortOrder: SortAsc}.Normalize()
	assert.Equal(t, 3, n.Page)
	assert.Equal(t, 20, n.Limit)
	assert.Equal(t, "ASC", n.SortOrder.SQL())
}

func TestPaginationOptions_Offset(t *testing.T) {
	assert.Equal(t, 0, PaginationOptions{Page: 1, Limit: 10}.Offset())
	assert.Equal(t, 20, PaginationOptions{Page: 3, Limit: 10}.Offset())
	assert.Equal(t, 0, PaginationOptions{Page: -2}.Offset())
}

func TestNewPaginatedResult_NeverNilData(t *testing.T) {
	res := NewPaginatedResult[struct{}](nil, 1, 10, 0)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
}

func TestBulkResults(t *testing.T) {
	ok := BulkOK(3)
	assert.True(t, ok.Success)
	assert.Equal(t, 3, ok.Count)
	assert.Nil(t, ok.Errors)

	failed := BulkFailed(assert.AnError)
	assert.False(t, failed.Success)
	assert.Equal(t, 0, failed.Count)
	assert.Equal(t, []error{assert.AnError}, failed.Errors)
}
