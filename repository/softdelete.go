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
	"context"

	"github.com/tomoncle/strata/types"
)

// SoftDelete stamps the DeletedAt column. It returns nil when no row
// matched.
func (r *Engine[T]) SoftDelete(ctx context.Context, id string) (*T, error) {
	if err := r.requireDeletedAt("soft delete"); err != nil {
		return nil, err
	}
	return r.update(ctx, id, Changes{r.deletedAt.Name: r.opts.Now()}, nil)
}

// Restore clears the DeletedAt column.
func (r *Engine[T]) Restore(ctx context.Context, id string) (*T, error) {
	if err := r.requireDeletedAt("restore"); err != nil {
		return nil, err
	}
	return r.update(ctx, id, Changes{r.deletedAt.Name: nil}, nil)
}

// FindDeleted returns the tombstoned rows matching filter.
func (r *Engine[T]) FindDeleted(ctx context.Context, filter types.FilterOptions) ([]*T, error) {
	if err := r.requireDeletedAt("find deleted"); err != nil {
		return nil, err
	}
	filter.Where = types.And(types.IsNotNull(r.deletedAt.Name), filter.Where)
	return r.Find(ctx, filter)
}

// FindWithDeleted pages through the tombstoned rows matching options.
func (r *Engine[T]) FindWithDeleted(ctx context.Context, options types.FindOptions) (*types.PaginatedResult[T], error) {
	if err := r.requireDeletedAt("find with deleted"); err != nil {
		return nil, err
	}
	options.Filter.Where = types.And(types.IsNotNull(r.deletedAt.Name), options.Filter.Where)
	return r.FindMany(ctx, options)
}

// NotDeleted returns a predicate matching live rows, for callers that want
// FindMany or Count to skip tombstones. It is nil when the model has no
// DeletedAt column.
func (r *Engine[T]) NotDeleted() *types.QueryFilter {
	if r.deletedAt == nil {
		return nil
	}
	return types.IsNull(r.deletedAt.Name)
}

func (r *Engine[T]) requireDeletedAt(op string) error {
	if r.deletedAt == nil {
		return NewValidationError("%s: %s requires a soft delete column", r.table.Name, op)
	}
	return nil
}
