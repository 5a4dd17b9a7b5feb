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
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Changes maps column names to the values written by a partial update.
type Changes map[string]interface{}

// CrudRepository defines single-entity reads and writes.
type CrudRepository[T any] interface {
	FindByID(ctx context.Context, id string) (*T, error)

	FindByIDOrFail(ctx context.Context, id string) (*T, error)

	Find(ctx context.Context, filter types.FilterOptions) ([]*T, error)

	FindMany(ctx context.Context, options types.FindOptions) (*types.PaginatedResult[T], error)

	Create(ctx context.Context, entity *T) (*T, error)

	Update(ctx context.Context, id string, changes Changes) (*T, error)

	UpdateVersioned(ctx context.Context, id string, changes Changes, expectedVersion int64) (*T, error)

	Delete(ctx context.Context, id string) (bool, error)

	Exists(ctx context.Context, id string) (bool, error)

	Count(ctx context.Context, filter types.FilterOptions) (int, error)
}

// BulkRepository defines batched writes over sets of identifiers.
type BulkRepository[T any] interface {
	CreateMany(ctx context.Context, entities []*T) ([]*T, error)
	UpdateMany(ctx context.Context, ids []string, changes Changes) *types.BulkResult
	DeleteMany(ctx context.Context, ids []string) *types.BulkResult
}

// SoftDeleteRepository defines tombstone operations on the DeletedAt column.
type SoftDeleteRepository[T any] interface {
	SoftDelete(ctx context.Context, id string) (*T, error)
	Restore(ctx context.Context, id string) (*T, error)
	FindDeleted(ctx context.Context, filter types.FilterOptions) ([]*T, error)
	FindWithDeleted(ctx context.Context, options types.FindOptions) (*types.PaginatedResult[T], error)
}

// Repository is the full contract every entity repository exposes.
type Repository[T any] interface {
	CrudRepository[T]
	BulkRepository[T]
	SoftDeleteRepository[T]
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *Engine[T]) error) error
	DB() bun.IDB
	Table() *schema.Table
	Columns() Columns
	CacheConfig() CacheConfig
	AuditConfig() AuditConfig
}
