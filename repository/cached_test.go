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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/strata/cache"
	"github.com/tomoncle/strata/types"
	"github.com/uptrace/bun"
)

func cachedTasks(t *testing.T, db bun.IDB, enabled bool) *Cached[Task] {
	t.Helper()
	engine := taskEngine(t, db, Options{Cache: CacheConfig{Enabled: enabled, TTL: time.Minute, KeyPrefix: "test:tasks"}})
	client := cache.NewMemory(time.Minute)
	t.Cleanup(func() { _ = client.Close() })
	return NewCached(engine, client)
}

// rename writes behind the repository's back.
func rename(t *testing.T, db bun.IDB, id, title string) {
	t.Helper()
	_, err := db.NewUpdate().Model((*Task)(nil)).Set("title = ?", title).Where("id = ?", id).Exec(context.Background())
	require.NoError(t, err)
}

func TestCached_FindByIDReadThrough(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tasks := cachedTasks(t, db, true)

	created, err := tasks.Create(ctx, &Task{Title: "first"})
	require.NoError(t, err)

	found, err := tasks.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", found.Title)

	rename(t, db, created.ID, "sneaky")
	found, err = tasks.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", found.Title, "served from cache")

	updated, err := tasks.Update(ctx, created.ID, Changes{"priority": 1})
	require.NoError(t, err)
	assert.Equal(t, "sneaky", updated.Title)

	found, err = tasks.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "sneaky", found.Title)
	assert.Equal(t, 1, found.Priority)

	missing, err := tasks.FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCached_FindManyInvalidatedByWrites(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tasks := cachedTasks(t, db, true)
	seedTasks(t, tasks.Engine, 3, "u1")

	opts := types.NewFindOptions(1, 10).WithWhere(types.Eq("user_id", "u1"))
	page, err := tasks.FindMany(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Pagination.Total)

	_, err = tasks.Engine.Create(ctx, &Task{Title: "bypass", UserID: "u1"})
	require.NoError(t, err)
	page, err = tasks.FindMany(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Pagination.Total, "served from cache")

	_, err = tasks.Create(ctx, &Task{Title: "through", UserID: "u1"})
	require.NoError(t, err)
	page, err = tasks.FindMany(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Pagination.Total)

	result := tasks.DeleteMany(ctx, []string{"u1-00"})
	require.Equal(t, 1, result.Count)
	page, err = tasks.FindMany(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Pagination.Total)
}

func TestCached_UncacheableFilterGoesToStore(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tasks := cachedTasks(t, db, true)
	seeded := seedTasks(t, tasks.Engine, 2, "u1")

	opts := types.NewFindOptions(1, 10).WithWhere(types.In("id", []string{seeded[0].ID, seeded[1].ID}))
	page, err := tasks.FindMany(ctx, opts)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)

	rename(t, db, seeded[0].ID, "fresh")
	page, err = tasks.FindMany(ctx, opts.WithOrderBy("id ASC"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", page.Data[0].Title)
}

func TestCached_Disabled(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tasks := cachedTasks(t, db, false)

	created, err := tasks.Create(ctx, &Task{Title: "first"})
	require.NoError(t, err)
	_, err = tasks.FindByID(ctx, created.ID)
	require.NoError(t, err)

	rename(t, db, created.ID, "second")
	found, err := tasks.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", found.Title)
}

func TestCached_TransactionInvalidates(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tasks := cachedTasks(t, db, true)
	created, err := tasks.Create(ctx, &Task{Title: "first"})
	require.NoError(t, err)
	_, err = tasks.FindByID(ctx, created.ID)
	require.NoError(t, err)

	err = tasks.WithTransaction(ctx, func(ctx context.Context, tx *Engine[Task]) error {
		_, err := tx.Update(ctx, created.ID, Changes{"title": "second"})
		return err
	})
	require.NoError(t, err)

	found, err := tasks.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", found.Title)
}

func TestPageDigest(t *testing.T) {
	a, ok := pageDigest(types.NewFindOptions(1, 10).WithWhere(types.Eq("user_id", "u1")))
	require.True(t, ok)
	b, ok := pageDigest(types.NewFindOptions(1, 10).WithWhere(types.Eq("user_id", "u2")))
	require.True(t, ok)
	assert.NotEqual(t, a, b)

	c, _ := pageDigest(types.NewFindOptions(0, 0).WithWhere(types.Eq("user_id", "u1")))
	assert.Equal(t, a, c, "defaults are applied before hashing")

	_, ok = pageDigest(types.NewFindOptions(1, 10).WithWhere(types.In("id", []string{"a"})))
	assert.False(t, ok)
}

func TestCached_FindManySeparatesLookalikeFilters(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tasks := cachedTasks(t, db, true)
	_, err := tasks.Create(ctx, &Task{UserID: "u1", Title: "x|string:y"})
	require.NoError(t, err)
	_, err = tasks.Create(ctx, &Task{UserID: "u1|string:x", Title: "y"})
	require.NoError(t, err)

	const schema = "user_id = ? AND title = ?"
	first := types.NewFindOptions(1, 10).WithWhere(types.NewQueryFilter(schema, "u1", "x|string:y"))
	second := types.NewFindOptions(1, 10).WithWhere(types.NewQueryFilter(schema, "u1|string:x", "y"))

	a, ok := pageDigest(first)
	require.True(t, ok)
	b, ok := pageDigest(second)
	require.True(t, ok)
	assert.NotEqual(t, a, b)

	page, err := tasks.FindMany(ctx, first)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "u1", page.Data[0].UserID)

	page, err = tasks.FindMany(ctx, second)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "u1|string:x", page.Data[0].UserID)
}
