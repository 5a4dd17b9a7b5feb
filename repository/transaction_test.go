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

func TestTransaction_Commit(t *testing.T) {
	ctx := context.Background()
	tasks := taskEngine(t, testDB(t), Options{})

	var id string
	err := tasks.WithTransaction(ctx, func(ctx context.Context, tx *Engine[Task]) error {
		created, err := tx.Create(ctx, &Task{Title: "in tx"})
		if err != nil {
			return err
		}
		id = created.ID
		_, err = tx.Update(ctx, id, Changes{"priority": 5})
		return err
	})
	require.NoError(t, err)

	stored, err := tasks.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 5, stored.Priority)
}

func TestTransaction_CallbackErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	tasks := taskEngine(t, testDB(t), Options{})

	err := tasks.WithTransaction(ctx, func(ctx context.Context, tx *Engine[Task]) error {
		if _, err := tx.Create(ctx, &Task{Title: "discarded"}); err != nil {
			return err
		}
		return errBoom
	})
	assert.Same(t, errBoom, err)

	n, err := tasks.Count(ctx, emptyFilter)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTransaction_TypedErrorPropagatesUnchanged(t *testing.T) {
	ctx := context.Background()
	tasks := taskEngine(t, testDB(t), Options{})
	invalid := NewValidationError("title is required")

	err := tasks.WithTransaction(ctx, func(context.Context, *Engine[Task]) error {
		return invalid
	})
	assert.Same(t, invalid, err)
}

func TestTransaction_PanicRollsBack(t *testing.T) {
	ctx := context.Background()
	tasks := taskEngine(t, testDB(t), Options{})

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = tasks.WithTransaction(ctx, func(ctx context.Context, tx *Engine[Task]) error {
			_, _ = tx.Create(ctx, &Task{Title: "discarded"})
			panic("kaboom")
		})
	})

	n, err := tasks.Count(ctx, emptyFilter)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTransaction_BeginFailure(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tasks := taskEngine(t, db, Options{})
	require.NoError(t, db.Close())

	called := false
	err := tasks.WithTransaction(ctx, func(context.Context, *Engine[Task]) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, TransactionError, TypeOf(err))
	assert.False(t, called)
}

func TestTransaction_JoinSharesUnitOfWork(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tasks := taskEngine(t, db, Options{})
	teams := teamEngine(t, db, Options{})

	assert.Same(t, teams, teams.Join(tasks))

	err := tasks.WithTransaction(ctx, func(ctx context.Context, tx *Engine[Task]) error {
		if _, err := tx.Create(ctx, &Task{Title: "t"}); err != nil {
			return err
		}
		if _, err := teams.Join(tx).Create(ctx, &Team{Name: "core"}); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	n, err := teams.Count(ctx, emptyFilter)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTransaction_NestedUsesSavepoint(t *testing.T) {
	ctx := context.Background()
	tasks := taskEngine(t, testDB(t), Options{})

	err := tasks.WithTransaction(ctx, func(ctx context.Context, tx *Engine[Task]) error {
		if _, err := tx.Create(ctx, &Task{ID: "outer", Title: "kept"}); err != nil {
			return err
		}
		inner := tx.WithTransaction(ctx, func(ctx context.Context, tx *Engine[Task]) error {
			if _, err := tx.Create(ctx, &Task{ID: "inner", Title: "dropped"}); err != nil {
				return err
			}
			return errBoom
		})
		assert.ErrorIs(t, inner, errBoom)
		return nil
	})
	require.NoError(t, err)

	ok, err := tasks.Exists(ctx, "outer")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = tasks.Exists(ctx, "inner")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransaction_WithTx(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tasks := taskEngine(t, db, Options{})

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tasks.WithTx(tx).Create(ctx, &Task{Title: "manual"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	n, err := tasks.Count(ctx, emptyFilter)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
