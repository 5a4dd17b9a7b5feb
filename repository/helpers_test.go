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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/types"
	"github.com/uptrace/bun"
)

type Task struct {
	bun.BaseModel `bun:"table:tasks,alias:t"`

	ID        string     `bun:"id,pk" json:"id"`
	Title     string     `bun:"title,notnull" json:"title"`
	UserID    string     `bun:"user_id" json:"userId"`
	Priority  int        `bun:"priority" json:"priority"`
	Version   int64      `bun:"version,notnull" json:"version"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
	DeletedAt *time.Time `bun:"deleted_at" json:"deletedAt,omitempty"`
}

type Team struct {
	bun.BaseModel `bun:"table:teams,alias:tm"`

	ID   string `bun:"id,pk" json:"id"`
	Name string `bun:"name,notnull,unique" json:"name"`
}

type Membership struct {
	bun.BaseModel `bun:"table:memberships,alias:ms"`

	ID     string `bun:"id,pk" json:"id"`
	TeamID string `bun:"team_id,notnull" json:"teamId"`
	UserID string `bun:"user_id,notnull" json:"userId"`
}

type Gauge struct {
	bun.BaseModel `bun:"table:gauges,alias:g"`

	ID    string `bun:"id,pk"`
	Level int    `bun:"level"`
}

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func testDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	conn := database.DefaultConnectionConfig()
	conn.Type = "sqlite"
	conn.DBName = ":memory:"
	conn.EnableMetrics = false
	cfg := &database.Config{Connection: *conn, CreateTables: true}

	registry := database.NewModelRegistry()
	registry.Register(AuditLogModel(0))
	registry.Register(database.NewModelAdapter((*Task)(nil), 10))
	registry.Register(database.NewModelAdapter((*Team)(nil), 10))
	registry.Register(database.NewModelAdapter((*Membership)(nil), 20,
		`("team_id") REFERENCES "teams" ("id") ON DELETE CASCADE`))

	manager, err := database.Open(ctx, cfg, registry)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	db := manager.DB()
	_, err = db.ExecContext(ctx, `CREATE TABLE gauges (id TEXT PRIMARY KEY, level INTEGER CHECK (level >= 0))`)
	require.NoError(t, err)
	return db
}

func taskEngine(t *testing.T, db bun.IDB, opts Options) *Engine[Task] {
	t.Helper()
	opts.Columns = DefaultColumns()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.Logger == nil {
		opts.Logger = database.NopLogger{}
	}
	engine, err := New[Task](db, opts)
	require.NoError(t, err)
	return engine
}

func teamEngine(t *testing.T, db bun.IDB, opts Options) *Engine[Team] {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = database.NopLogger{}
	}
	engine, err := New[Team](db, opts)
	require.NoError(t, err)
	return engine
}

// recordingSink keeps every event it receives and optionally fails.
type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
	err    error
}

func (s *recordingSink) Record(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) Events() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

func auditing(sink AuditSink) Options {
	return Options{Audit: AuditConfig{Enabled: true, TrackChanges: true, UserID: "system"}, AuditSink: sink}
}

var (
	errBoom     = errors.New("boom")
	emptyFilter = types.FilterOptions{}
)
