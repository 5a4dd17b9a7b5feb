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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulk_EmptyInputSkipsStore(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tasks := taskEngine(t, db, Options{})
	require.NoError(t, db.Close())

	result := tasks.UpdateMany(ctx, nil, Changes{"title": "x"})
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Count)
	assert.Empty(t, result.Errors)

	result = tasks.DeleteMany(ctx, []string{})
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Count)

	created, err := tasks.CreateMany(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, created)
	assert.Empty(t, created)
}

func TestBulk_CreateMany(t *testing.T) {
	ctx := context.Background()
	tasks := taskEngine(t, testDB(t), Options{})

	created, err := tasks.CreateMany(ctx, []*Task{{Title: "a"}, {Title: "b"}, {Title: "c"}})
	require.NoError(t, err)
	require.Len(t, created, 3)
	for _, task := range created {
		assert.NotEmpty(t, task.ID)
		assert.Equal(t, int64(1), task.Version)
	}

	n, err := tasks.Count(ctx, emptyFilter)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = tasks.CreateMany(ctx, []*Task{{Title: "ok"}, nil})
	assert.True(t, IsErrorType(err, ValidationError))
}

func TestBulk_CreateManyFailureRaises(t *testing.T) {
	ctx := context.Background()
	teams := teamEngine(t, testDB(t), Options{})

	_, err := teams.CreateMany(ctx, []*Team{{Name: "dup"}, {Name: "dup"}})
	require.Error(t, err)
	assert.Equal(t, DuplicateKey, TypeOf(err))
}

func TestBulk_UpdateManyCountsAffectedRows(t *testing.T) {
	ctx := context.Background()
	tasks := taskEngine(t, testDB(t), Options{})
	seeded := seedTasks(t, tasks, 3, "u1")

	result := tasks.UpdateMany(ctx, []string{seeded[0].ID, seeded[1].ID, "missing"}, Changes{"priority": 9})
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Count)

	for _, task := range seeded[:2] {
		stored, err := tasks.FindByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, 9, stored.Priority)
		assert.True(t, fixedNow.Equal(stored.UpdatedAt))
	}
	untouched, err := tasks.FindByID(ctx, seeded[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, untouched.Priority)
}

func TestBulk_UpdateManyFailureIsReported(t *testing.T) {
	ctx := context.Background()
	teams := teamEngine(t, testDB(t), Options{})
	created, err := teams.CreateMany(ctx, []*Team{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)

	result := teams.UpdateMany(ctx, []string{created[0].ID, created[1].ID}, Changes{"name": "same"})
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Count)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, DuplicateKey, TypeOf(result.Errors[0]))

	result = teams.UpdateMany(ctx, []string{created[0].ID}, Changes{"bogus": 1})
	assert.False(t, result.Success)
	assert.True(t, IsErrorType(result.Errors[0], ValidationError))
}

func TestBulk_DeleteMany(t *testing.T) {
	ctx := context.Background()
	tasks := taskEngine(t, testDB(t), Options{})
	seeded := seedTasks(t, tasks, 4, "u1")

	result := tasks.DeleteMany(ctx, []string{seeded[0].ID, seeded[3].ID, "missing"})
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Count)

	n, err := tasks.Count(ctx, emptyFilter)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBulk_DeleteManyFailureIsReported(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tasks := taskEngine(t, db, Options{})
	require.NoError(t, db.Close())

	result := tasks.DeleteMany(ctx, []string{"a"})
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Count)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, UnknownError, TypeOf(result.Errors[0]))
}
