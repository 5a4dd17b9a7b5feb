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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)
	defer c.Close()

	_, err := c.Get(ctx, "k")
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k", "missing"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)
	require.NoError(t, c.Set(ctx, "short", []byte("v"), 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ZeroTTLUsesDefault(t *testing.T) {
	ctx := context.Background()
	short := NewMemory(20 * time.Millisecond)
	require.NoError(t, short.Set(ctx, "k", []byte("v"), 0))
	forever := NewMemory(0)
	require.NoError(t, forever.Set(ctx, "k", []byte("v"), 0))
	time.Sleep(40 * time.Millisecond)

	_, err := short.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	b, err := forever.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(b))
}

func TestMemory_Incr(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	n, err := c.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	b, err := c.Get(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, "2", string(b))
}

func TestNew(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))

	_, err = New(Config{Driver: "memcached"})
	assert.Error(t, err)
}
