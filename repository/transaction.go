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
	"sync"

	"github.com/uptrace/bun"
)

// unitOfWork is the transaction an engine is bound to. Work queued with
// later runs only after the outermost transaction commits.
type unitOfWork struct {
	tx bun.IDB

	mu      sync.Mutex
	pending []func(ctx context.Context)
}

func (u *unitOfWork) later(fn func(ctx context.Context)) {
	u.mu.Lock()
	u.pending = append(u.pending, fn)
	u.mu.Unlock()
}

func (u *unitOfWork) drain() []func(ctx context.Context) {
	u.mu.Lock()
	defer u.mu.Unlock()
	pending := u.pending
	u.pending = nil
	return pending
}

// Scoped is implemented by engines of any model type. It lets an engine
// join the transaction another engine is bound to.
type Scoped interface {
	scope() *unitOfWork
}

func (r *Engine[T]) scope() *unitOfWork { return r.uow }

// Join returns a copy of r bound to the transaction of other. Outside a
// transaction it returns r unchanged.
func (r *Engine[T]) Join(other Scoped) *Engine[T] {
	uow := other.scope()
	if uow == nil {
		return r
	}
	return r.bind(uow.tx, uow)
}

// WithTx returns a copy of r that runs its queries on db, typically a
// bun.Tx managed by the caller. Audit events are delivered immediately.
func (r *Engine[T]) WithTx(db bun.IDB) *Engine[T] {
	return r.bind(db, nil)
}

func (r *Engine[T]) bind(db bun.IDB, uow *unitOfWork) *Engine[T] {
	c := *r
	c.db = db
	c.uow = uow
	return &c
}

// WithTransaction runs fn inside a transaction. fn must use the engine it
// receives. An error returned by fn rolls back and is returned unchanged;
// a panic rolls back and is re-raised. Begin and commit failures are
// reported as TransactionError. Audit events raised inside fn are delivered
// after commit and dropped on rollback. Called on an engine that is already
// in a transaction, fn runs in a savepoint.
func (r *Engine[T]) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *Engine[T]) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return NewError(TransactionError, "begin transaction failed", err)
	}
	uow := &unitOfWork{tx: tx}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, r.bind(tx, uow)); err != nil {
		return err
	}
	done = true
	if err := tx.Commit(); err != nil {
		return NewError(TransactionError, "commit transaction failed", err)
	}

	for _, deliver := range uow.drain() {
		if r.uow != nil {
			r.uow.later(deliver)
			continue
		}
		deliver(ctx)
	}
	return nil
}
