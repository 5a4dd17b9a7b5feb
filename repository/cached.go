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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tomoncle/strata/cache"
	"github.com/tomoncle/strata/metrics"
	"github.com/tomoncle/strata/types"
	"github.com/uptrace/bun"
)

// Cached decorates an Engine with a read-through cache for FindByID and
// FindMany driven by the engine's CacheConfig. Every key carries a
// generation number that successful writes bump, so a write invalidates
// all cached reads of the table at once.
type Cached[T any] struct {
	*Engine[T]
	client cache.Client
	prefix string
}

var _ Repository[struct{}] = (*Cached[struct{}])(nil)

// NewCached wraps engine. With caching disabled or a nil client every call
// goes straight to the engine.
func NewCached[T any](engine *Engine[T], client cache.Client) *Cached[T] {
	prefix := engine.opts.Cache.KeyPrefix
	if prefix == "" {
		prefix = engine.table.Name
	}
	return &Cached[T]{Engine: engine, client: client, prefix: prefix}
}

func (c *Cached[T]) enabled() bool {
	return c.client != nil && c.opts.Cache.Enabled
}

func (c *Cached[T]) FindByID(ctx context.Context, id string) (*T, error) {
	gen, ok := c.generation(ctx)
	if !ok {
		return c.Engine.FindByID(ctx, id)
	}
	key := fmt.Sprintf("%s:%d:id:%s", c.prefix, gen, id)
	entity := new(T)
	if c.load(ctx, key, entity) {
		return entity, nil
	}
	entity, err := c.Engine.FindByID(ctx, id)
	if err != nil || entity == nil {
		return entity, err
	}
	c.store(ctx, key, entity)
	return entity, nil
}

func (c *Cached[T]) FindMany(ctx context.Context, options types.FindOptions) (*types.PaginatedResult[T], error) {
	digest, cacheable := pageDigest(options)
	if !cacheable {
		return c.Engine.FindMany(ctx, options)
	}
	gen, ok := c.generation(ctx)
	if !ok {
		return c.Engine.FindMany(ctx, options)
	}
	key := fmt.Sprintf("%s:%d:page:%s", c.prefix, gen, digest)
	result := new(types.PaginatedResult[T])
	if c.load(ctx, key, result) {
		return result, nil
	}
	result, err := c.Engine.FindMany(ctx, options)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, result)
	return result, nil
}

func (c *Cached[T]) Create(ctx context.Context, entity *T) (*T, error) {
	created, err := c.Engine.Create(ctx, entity)
	if err == nil {
		c.Invalidate(ctx)
	}
	return created, err
}

func (c *Cached[T]) CreateMany(ctx context.Context, entities []*T) ([]*T, error) {
	created, err := c.Engine.CreateMany(ctx, entities)
	if err == nil && len(created) > 0 {
		c.Invalidate(ctx)
	}
	return created, err
}

func (c *Cached[T]) Update(ctx context.Context, id string, changes Changes) (*T, error) {
	updated, err := c.Engine.Update(ctx, id, changes)
	if updated != nil {
		c.Invalidate(ctx)
	}
	return updated, err
}

func (c *Cached[T]) UpdateVersioned(ctx context.Context, id string, changes Changes, expectedVersion int64) (*T, error) {
	updated, err := c.Engine.UpdateVersioned(ctx, id, changes, expectedVersion)
	if updated != nil {
		c.Invalidate(ctx)
	}
	return updated, err
}

func (c *Cached[T]) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := c.Engine.Delete(ctx, id)
	if deleted {
		c.Invalidate(ctx)
	}
	return deleted, err
}

func (c *Cached[T]) UpdateMany(ctx context.Context, ids []string, changes Changes) *types.BulkResult {
	result := c.Engine.UpdateMany(ctx, ids, changes)
	if result.Count > 0 {
		c.Invalidate(ctx)
	}
	return result
}

func (c *Cached[T]) DeleteMany(ctx context.Context, ids []string) *types.BulkResult {
	result := c.Engine.DeleteMany(ctx, ids)
	if result.Count > 0 {
		c.Invalidate(ctx)
	}
	return result
}

func (c *Cached[T]) SoftDelete(ctx context.Context, id string) (*T, error) {
	updated, err := c.Engine.SoftDelete(ctx, id)
	if updated != nil {
		c.Invalidate(ctx)
	}
	return updated, err
}

func (c *Cached[T]) Restore(ctx context.Context, id string) (*T, error) {
	updated, err := c.Engine.Restore(ctx, id)
	if updated != nil {
		c.Invalidate(ctx)
	}
	return updated, err
}

// WithTransaction invalidates after the transaction ends whatever its
// outcome, since a failed commit may still have applied.
func (c *Cached[T]) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *Engine[T]) error) error {
	defer c.Invalidate(ctx)
	return c.Engine.WithTransaction(ctx, fn)
}

// Invalidate drops every cached read of the table.
func (c *Cached[T]) Invalidate(ctx context.Context) {
	if !c.enabled() {
		return
	}
	if _, err := c.client.Incr(ctx, c.prefix+":gen"); err != nil {
		c.opts.Logger.Warn("Cache invalidation failed", "prefix", c.prefix, "error", err)
	}
}

func (c *Cached[T]) generation(ctx context.Context) (int64, bool) {
	if !c.enabled() {
		return 0, false
	}
	data, err := c.client.Get(ctx, c.prefix+":gen")
	if cache.IsNotFound(err) {
		return 0, true
	}
	if err != nil {
		c.opts.Logger.Warn("Cache generation lookup failed", "prefix", c.prefix, "error", err)
		return 0, false
	}
	var gen int64
	if _, err := fmt.Sscan(string(data), &gen); err != nil {
		return 0, false
	}
	return gen, true
}

func (c *Cached[T]) load(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.client.Get(ctx, key)
	if err == nil && json.Unmarshal(data, dest) == nil {
		metrics.CacheLookups.WithLabelValues(c.prefix, "hit").Inc()
		return true
	}
	if err != nil && !cache.IsNotFound(err) {
		c.opts.Logger.Warn("Cache read failed", "key", key, "error", err)
	}
	metrics.CacheLookups.WithLabelValues(c.prefix, "miss").Inc()
	return false
}

func (c *Cached[T]) store(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.opts.Logger.Warn("Cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.opts.Cache.TTL); err != nil {
		c.opts.Logger.Warn("Cache write failed", "key", key, "error", err)
	}
}

// pageDigest derives a key from options. Every component is length
// prefixed so distinct options never share an encoding. Options whose
// filter arguments have no stable textual form, such as bun.In lists, are
// not cacheable.
func pageDigest(options types.FindOptions) (string, bool) {
	p := options.PaginationOptions.Normalize()
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%d", p.Page, p.Limit)
	part := func(s string) { fmt.Fprintf(&b, "|%d:%s", len(s), s) }
	part(p.SortBy)
	part(string(p.SortOrder))
	fmt.Fprintf(&b, "|order%d", len(options.Filter.OrderBy))
	for _, o := range options.Filter.OrderBy {
		part(o)
	}
	for _, c := range options.Filter.Where.Clauses() {
		part(c.Schema)
		fmt.Fprintf(&b, "|args%d", len(c.Args))
		for _, arg := range c.Args {
			s, ok := keyArg(arg)
			if !ok {
				return "", false
			}
			part(s)
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), true
}

func keyArg(arg interface{}) (string, bool) {
	switch v := arg.(type) {
	case nil:
		return "<nil>", true
	case bun.Ident:
		return "ident:" + string(v), true
	case bun.Safe:
		return "safe:" + string(v), true
	case time.Time:
		return "time:" + v.UTC().Format(time.RFC3339Nano), true
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64,
		[]string, []int, []int64:
		return fmt.Sprintf("%T:%v", v, v), true
	}
	return "", false
}
