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

package strata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/strata/cache"
	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/repository"
	"github.com/tomoncle/strata/types"
	"github.com/uptrace/bun"
)

type note struct {
	bun.BaseModel `bun:"table:notes,alias:n"`

	ID   string `bun:"id,pk"`
	Body string `bun:"body,notnull"`
}

func memoryConfig(sink string) *Config {
	cfg := DefaultConfig()
	cfg.Database.Connection.Type = "sqlite"
	cfg.Database.Connection.DBName = ":memory:"
	cfg.Database.CreateTables = true
	cfg.Cache = &cache.Config{Driver: "memory", DefaultTTL: time.Minute}
	cfg.AuditSink = sink
	return cfg
}

func openStore(t *testing.T, sink string) *Store {
	t.Helper()
	registry := database.NewModelRegistry()
	registry.Register(database.NewModelAdapter((*note)(nil), 10))
	store, err := Open(context.Background(), memoryConfig(sink), registry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_TableSinkRecordsAudit(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, AuditSinkTable)
	assert.True(t, store.Health(ctx).Healthy)
	assert.Equal(t, 1, store.Stats().MaxOpenConns)
	require.NotNil(t, store.Cache())

	notes, err := NewRepository[note](store, repository.Options{Audit: repository.AuditConfig{Enabled: true}})
	require.NoError(t, err)
	_, isEngine := notes.(*repository.Engine[note])
	assert.True(t, isEngine)

	created, err := notes.Create(repository.WithActor(ctx, "carol"), &note{Body: "hello"})
	require.NoError(t, err)

	audit, err := repository.New[repository.AuditRecord](store.DB(), repository.Options{})
	require.NoError(t, err)
	records, err := audit.Find(ctx, types.FilterOptions{Where: types.Eq("entity_id", created.ID)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CREATE", records[0].Action)
	assert.Equal(t, "carol", records[0].UserID)
}

func TestNewRepository_CachedWhenEnabled(t *testing.T) {
	store := openStore(t, AuditSinkLog)

	notes, err := NewRepository[note](store, repository.Options{
		Cache: repository.CacheConfig{Enabled: true, TTL: time.Minute},
	})
	require.NoError(t, err)
	_, isCached := notes.(*repository.Cached[note])
	assert.True(t, isCached)

	_, err = NewRepository[note](store, repository.Options{Columns: repository.Columns{Version: "version"}})
	assert.Error(t, err)
}

func TestOpen_UnsupportedAuditSink(t *testing.T) {
	_, err := Open(context.Background(), memoryConfig("kafka"), nil)
	assert.ErrorContains(t, err, "kafka")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  connection:
    type: sqlite
    dbname: ":memory:"
  create_tables: true
cache:
  driver: memory
audit_sink: both
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Connection.Type)
	assert.True(t, cfg.Database.CreateTables)
	assert.Equal(t, 100, cfg.Database.Connection.MaxOpenConns, "defaults are kept")
	require.NotNil(t, cfg.Cache)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, AuditSinkBoth, cfg.AuditSink)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
