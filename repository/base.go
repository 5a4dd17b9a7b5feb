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
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/tomoncle/strata/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

// Engine is the generic persistence engine for one bun model T. It holds no
// per-call state and is safe for concurrent use.
type Engine[T any] struct {
	db    bun.IDB
	table *schema.Table
	opts  Options

	pk        *schema.Field
	updatedAt *schema.Field
	deletedAt *schema.Field
	version   *schema.Field

	// uow is set on engines bound to a transaction by WithTransaction.
	uow *unitOfWork
}

var _ Repository[struct{}] = (*Engine[struct{}])(nil)

// New binds an engine to the table of model T. Every column named in
// opts.Columns must exist on the model.
func New[T any](db bun.IDB, opts Options) (*Engine[T], error) {
	if db == nil {
		return nil, fmt.Errorf("repository: database not initialized")
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("repository: model %s is not a struct", typ)
	}
	opts = opts.withDefaults()
	r := &Engine[T]{
		db:    db,
		table: db.Dialect().Tables().Get(typ),
		opts:  opts,
	}

	var err error
	if r.pk, err = r.lookup(opts.Columns.PrimaryKey); err != nil {
		return nil, err
	}
	if r.updatedAt, err = r.lookup(opts.Columns.UpdatedAt); err != nil {
		return nil, err
	}
	if r.deletedAt, err = r.lookup(opts.Columns.DeletedAt); err != nil {
		return nil, err
	}
	if r.version, err = r.lookup(opts.Columns.Version); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNew is like New but panics on a binding error.
func MustNew[T any](db bun.IDB, opts Options) *Engine[T] {
	r, err := New[T](db, opts)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Engine[T]) lookup(column string) (*schema.Field, error) {
	if column == "" {
		return nil, nil
	}
	if f := r.field(column); f != nil {
		return f, nil
	}
	return nil, fmt.Errorf("repository: column %q is not defined on table %s", column, r.table.Name)
}

func (r *Engine[T]) field(column string) *schema.Field {
	for _, f := range r.table.Fields {
		if f.Name == column {
			return f
		}
	}
	return nil
}

// DB returns the handle the engine runs on, the transaction when bound.
func (r *Engine[T]) DB() bun.IDB { return r.db }

// Table returns the bun table metadata of T.
func (r *Engine[T]) Table() *schema.Table { return r.table }

// Columns returns the resolved column descriptor.
func (r *Engine[T]) Columns() Columns { return r.opts.Columns }

// CacheConfig returns the read cache settings.
func (r *Engine[T]) CacheConfig() CacheConfig { return r.opts.Cache }

// AuditConfig returns the audit settings.
func (r *Engine[T]) AuditConfig() AuditConfig { return r.opts.Audit }

// FindByID returns the entity with the given primary key, or nil when no
// such row exists.
func (r *Engine[T]) FindByID(ctx context.Context, id string) (*T, error) {
	entity := new(T)
	err := r.db.NewSelect().Model(entity).Where("? = ?", bun.Ident(r.pk.Name), id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, r.fail("find by id", err)
	}
	return entity, nil
}

// FindByIDOrFail is FindByID with absence reported as NotFound.
func (r *Engine[T]) FindByIDOrFail(ctx context.Context, id string) (*T, error) {
	entity, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, NewNotFoundError(r.table.Name, id)
	}
	return entity, nil
}

// Find returns every row matching filter, honouring its ordering and window.
func (r *Engine[T]) Find(ctx context.Context, filter types.FilterOptions) ([]*T, error) {
	entities := make([]*T, 0)
	q := where(r.db.NewSelect().Model(&entities), filter.Where)
	if len(filter.OrderBy) > 0 {
		q = q.Order(filter.OrderBy...)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, r.fail("find", err)
	}
	return entities, nil
}

// FindMany returns one page of rows. The count and the data query share the
// same predicate so Total is consistent with the page.
func (r *Engine[T]) FindMany(ctx context.Context, options types.FindOptions) (*types.PaginatedResult[T], error) {
	page := options.PaginationOptions.Normalize()
	if page.SortBy != "" && r.field(page.SortBy) == nil {
		return nil, NewValidationError("%s: unknown sort column %q", r.table.Name, page.SortBy)
	}

	entities := make([]*T, 0)
	query := where(r.db.NewSelect().Model(&entities), options.Filter.Where)
	total, err := query.Count(ctx)
	if err != nil {
		return nil, r.fail("count", err)
	}

	switch {
	case len(options.Filter.OrderBy) > 0:
		query = query.Order(options.Filter.OrderBy...)
	case page.SortBy != "":
		query = query.OrderExpr("? "+page.SortOrder.SQL(), bun.Ident(page.SortBy))
	}
	err = query.Offset(page.Offset()).Limit(page.Limit).Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, r.fail("find many", err)
	}
	return types.NewPaginatedResult(entities, page.Page, page.Limit, total), nil
}

// Count returns the number of rows matching filter.Where.
func (r *Engine[T]) Count(ctx context.Context, filter types.FilterOptions) (int, error) {
	n, err := where(r.db.NewSelect().Model((*T)(nil)), filter.Where).Count(ctx)
	if err != nil {
		return 0, r.fail("count", err)
	}
	return n, nil
}

// Exists checks for the primary key without fetching the row.
func (r *Engine[T]) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := r.db.NewSelect().
		Model((*T)(nil)).
		ColumnExpr("1").
		Where("? = ?", bun.Ident(r.pk.Name), id).
		Limit(1).
		Exists(ctx)
	if err != nil {
		return false, r.fail("exists", err)
	}
	return ok, nil
}

// Create inserts entity and returns it as stored. An empty string primary
// key is filled by Options.NewID.
func (r *Engine[T]) Create(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, NewValidationError("%s: entity is required", r.table.Name)
	}
	if err := r.prepareInsert(entity); err != nil {
		return nil, err
	}

	query := r.db.NewInsert().Model(entity)
	returning := r.db.Dialect().Features().Has(feature.InsertReturning)
	if returning {
		query = query.Returning("*")
	}
	if _, err := query.Exec(ctx); err != nil {
		return nil, r.fail("create", err)
	}
	if !returning {
		stored, err := r.FindByID(ctx, r.idOf(entity))
		if err != nil {
			return nil, err
		}
		if stored != nil {
			entity = stored
		}
	}

	r.emit(ctx, AuditEvent{Action: AuditCreate, EntityID: r.idOf(entity), Entity: entity})
	return entity, nil
}

// Update applies changes to the row with the given id. It returns nil when
// no row matched.
func (r *Engine[T]) Update(ctx context.Context, id string, changes Changes) (*T, error) {
	return r.update(ctx, id, changes, nil)
}

// UpdateVersioned applies changes only if the stored version equals
// expectedVersion, and writes expectedVersion+1. A zero-row match is a
// conflict and fails with ValidationError. Without a version column it
// behaves like Update.
func (r *Engine[T]) UpdateVersioned(ctx context.Context, id string, changes Changes, expectedVersion int64) (*T, error) {
	return r.update(ctx, id, changes, &expectedVersion)
}

func (r *Engine[T]) update(ctx context.Context, id string, changes Changes, expectedVersion *int64) (*T, error) {
	set, err := r.prepareChanges(changes)
	if err != nil {
		return nil, err
	}
	versioned := expectedVersion != nil && r.version != nil
	if len(set) == 0 && !versioned {
		return nil, NewValidationError("%s: no changes to apply", r.table.Name)
	}

	var before *T
	if r.auditEnabled() && r.opts.Audit.TrackChanges {
		if before, err = r.FindByID(ctx, id); err != nil {
			return nil, err
		}
	}

	query := r.db.NewUpdate().Model((*T)(nil))
	for _, column := range sortedColumns(set) {
		query = query.Set("? = ?", bun.Ident(column), set[column])
	}
	query = query.Where("? = ?", bun.Ident(r.pk.Name), id)
	if versioned {
		query = query.
			Set("? = ?", bun.Ident(r.version.Name), *expectedVersion+1).
			Where("? = ?", bun.Ident(r.version.Name), *expectedVersion)
	}

	res, err := query.Exec(ctx)
	if err != nil {
		return nil, r.fail("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, r.fail("update", err)
	}
	if n == 0 {
		if versioned {
			return nil, NewError(ValidationError,
				fmt.Sprintf("%s %q: optimistic locking failed, expected version %d", r.table.Name, id, *expectedVersion), nil)
		}
		return nil, nil
	}

	after, err := r.FindByID(ctx, id)
	if err != nil || after == nil {
		return after, err
	}
	r.emit(ctx, AuditEvent{Action: AuditUpdate, EntityID: id, Entity: after, Changes: r.changeSet(before, after, set)})
	return after, nil
}

// Delete removes the row and reports whether one existed.
func (r *Engine[T]) Delete(ctx context.Context, id string) (bool, error) {
	var before *T
	if r.auditEnabled() {
		var err error
		if before, err = r.FindByID(ctx, id); err != nil {
			return false, err
		}
	}

	res, err := r.db.NewDelete().Model((*T)(nil)).Where("? = ?", bun.Ident(r.pk.Name), id).Exec(ctx)
	if err != nil {
		return false, r.fail("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, r.fail("delete", err)
	}
	if n == 0 {
		return false, nil
	}
	r.emit(ctx, AuditEvent{Action: AuditDelete, EntityID: id, Entity: before})
	return true, nil
}

// prepareInsert fills the generated primary key, the initial version and
// the update timestamp when they are unset.
func (r *Engine[T]) prepareInsert(entity *T) error {
	v := reflect.ValueOf(entity).Elem()
	if r.pk.IndirectType.Kind() == reflect.String && r.pk.HasZeroValue(v) {
		if err := r.pk.ScanValue(v, r.opts.NewID()); err != nil {
			return NewError(ValidationError, "assign primary key", err)
		}
	}
	if r.version != nil && r.version.HasZeroValue(v) {
		if err := r.version.ScanValue(v, int64(1)); err != nil {
			return NewError(ValidationError, "assign initial version", err)
		}
	}
	if r.updatedAt != nil && r.updatedAt.HasZeroValue(v) {
		if err := r.updatedAt.ScanValue(v, r.opts.Now()); err != nil {
			return NewError(ValidationError, "assign update timestamp", err)
		}
	}
	return nil
}

// prepareChanges validates the columns of changes and returns a copy with a
// fresh update timestamp.
func (r *Engine[T]) prepareChanges(changes Changes) (Changes, error) {
	set := make(Changes, len(changes)+1)
	for column, value := range changes {
		if r.field(column) == nil {
			return nil, NewValidationError("%s: unknown column %q", r.table.Name, column)
		}
		if column == r.pk.Name {
			return nil, NewValidationError("%s: primary key %q cannot be updated", r.table.Name, column)
		}
		if r.version != nil && column == r.version.Name {
			return nil, NewValidationError("%s: version %q is managed by the engine", r.table.Name, column)
		}
		set[column] = value
	}
	if r.updatedAt != nil {
		set[r.updatedAt.Name] = r.opts.Now()
	}
	return set, nil
}

func (r *Engine[T]) idOf(entity *T) string {
	return fmt.Sprint(r.pk.Value(reflect.ValueOf(entity).Elem()).Interface())
}

func (r *Engine[T]) fail(op string, err error) error {
	return classify(err, fmt.Sprintf("%s %s failed", r.table.Name, op))
}

// where applies each clause of filter on its own so placeholders bind to
// that clause's arguments only.
func where(q *bun.SelectQuery, filter *types.QueryFilter) *bun.SelectQuery {
	for _, c := range filter.Clauses() {
		q = q.Where(c.Schema, c.Args...)
	}
	return q
}

func sortedColumns(set Changes) []string {
	columns := make([]string, 0, len(set))
	for column := range set {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}
