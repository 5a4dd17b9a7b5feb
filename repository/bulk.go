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
	"github.com/uptrace/bun/dialect/feature"
)

// CreateMany inserts entities in one statement. Unlike UpdateMany and
// DeleteMany it raises on failure; no partial-create guarantee is made.
func (r *Engine[T]) CreateMany(ctx context.Context, entities []*T) ([]*T, error) {
	if len(entities) == 0 {
		return make([]*T, 0), nil
	}
	for i, entity := range entities {
		if entity == nil {
			return nil, NewValidationError("%s: entity %d is nil", r.table.Name, i)
		}
		if err := r.prepareInsert(entity); err != nil {
			return nil, err
		}
	}

	query := r.db.NewInsert().Model(&entities)
	returning := r.db.Dialect().Features().Has(feature.InsertReturning)
	if returning {
		query = query.Returning("*")
	}
	if _, err := query.Exec(ctx); err != nil {
		return nil, r.fail("create many", err)
	}

	ids := make([]string, len(entities))
	for i, entity := range entities {
		ids[i] = r.idOf(entity)
		if returning {
			continue
		}
		stored, err := r.FindByID(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		if stored != nil {
			entities[i] = stored
		}
	}
	r.emit(ctx, AuditEvent{Action: AuditCreate, EntityIDs: ids, Count: len(entities)})
	return entities, nil
}

// UpdateMany applies changes to every row whose primary key is in ids.
// Failures are reported in the result, not raised. Count is the number of
// rows the store reports as affected.
func (r *Engine[T]) UpdateMany(ctx context.Context, ids []string, changes Changes) *types.BulkResult {
	if len(ids) == 0 {
		return types.BulkOK(0)
	}
	set, err := r.prepareChanges(changes)
	if err != nil {
		return types.BulkFailed(err)
	}
	if len(set) == 0 {
		return types.BulkFailed(NewValidationError("%s: no changes to apply", r.table.Name))
	}

	query := r.db.NewUpdate().Model((*T)(nil))
	for _, column := range sortedColumns(set) {
		query = query.Set("? = ?", bun.Ident(column), set[column])
	}
	res, err := query.Where("? IN (?)", bun.Ident(r.pk.Name), bun.In(ids)).Exec(ctx)
	if err != nil {
		return types.BulkFailed(r.fail("update many", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.BulkFailed(r.fail("update many", err))
	}
	if n > 0 {
		r.emit(ctx, AuditEvent{Action: AuditUpdate, EntityIDs: ids, Count: int(n), Changes: r.changeSet(nil, nil, set)})
	}
	return types.BulkOK(int(n))
}

// DeleteMany removes every row whose primary key is in ids, with the same
// reporting contract as UpdateMany.
func (r *Engine[T]) DeleteMany(ctx context.Context, ids []string) *types.BulkResult {
	if len(ids) == 0 {
		return types.BulkOK(0)
	}
	res, err := r.db.NewDelete().
		Model((*T)(nil)).
		Where("? IN (?)", bun.Ident(r.pk.Name), bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return types.BulkFailed(r.fail("delete many", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.BulkFailed(r.fail("delete many", err))
	}
	if n > 0 {
		r.emit(ctx, AuditEvent{Action: AuditDelete, EntityIDs: ids, Count: int(n)})
	}
	return types.BulkOK(int(n))
}
