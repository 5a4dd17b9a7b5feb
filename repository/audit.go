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
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/metrics"
	"github.com/tomoncle/strata/types"
	"github.com/uptrace/bun"
)

// AuditAction is the kind of mutation an AuditEvent describes.
type AuditAction int

const (
	AuditCreate AuditAction = iota
	AuditUpdate
	AuditDelete
)

var auditActions = []types.EnumEntry{
	AuditCreate: {Name: "CREATE", Desc: "entity created"},
	AuditUpdate: {Name: "UPDATE", Desc: "entity updated"},
	AuditDelete: {Name: "DELETE", Desc: "entity deleted"},
}

var _ types.BaseEnum = AuditCreate

func (a AuditAction) IsValid() bool {
	_, ok := types.LookupEnum(auditActions, int(a))
	return ok
}

func (a AuditAction) Number() int {
	if !a.IsValid() {
		return types.IllegalValue
	}
	return int(a)
}

func (a AuditAction) String() string { return a.Name() }

func (a AuditAction) Name() string {
	e, _ := types.LookupEnum(auditActions, int(a))
	return e.Name
}

func (a AuditAction) Desc() string {
	e, _ := types.LookupEnum(auditActions, int(a))
	return e.Desc
}

// AuditEvent describes one committed mutation. Bulk calls produce a single
// event with EntityIDs and Count set instead of EntityID.
type AuditEvent struct {
	Action    AuditAction
	Table     string
	EntityID  string
	EntityIDs []string
	Count     int
	// Entity is the record after CREATE/UPDATE and before DELETE.
	Entity    interface{}
	Changes   types.JsonObject
	UserID    string
	Timestamp time.Time
}

// AuditSink receives audit events. A failing sink never fails the mutation.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, event AuditEvent) error

func (f AuditSinkFunc) Record(ctx context.Context, event AuditEvent) error {
	return f(ctx, event)
}

// LoggerSink writes events to a structured logger.
type LoggerSink struct {
	logger database.Logger
}

// NewLoggerSink returns a sink logging at info level.
func NewLoggerSink(logger database.Logger) *LoggerSink {
	if logger == nil {
		logger = database.GetLogger()
	}
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Record(_ context.Context, event AuditEvent) error {
	fields := []interface{}{
		"action", event.Action.String(),
		"table", event.Table,
		"user_id", event.UserID,
	}
	if len(event.EntityIDs) > 0 {
		fields = append(fields, "entity_ids", strings.Join(event.EntityIDs, ","), "count", event.Count)
	} else {
		fields = append(fields, "entity_id", event.EntityID)
	}
	if len(event.Changes) > 0 {
		fields = append(fields, "changes", event.Changes)
	}
	s.logger.Info("Audit event", fields...)
	return nil
}

// AuditRecord is the durable form of an AuditEvent written by TableSink.
type AuditRecord struct {
	bun.BaseModel `bun:"table:audit_log,alias:al"`

	ID        string           `bun:"id,pk" json:"id"`
	Action    string           `bun:"action,notnull" json:"action"`
	Table     string           `bun:"table_name,notnull" json:"table"`
	EntityID  string           `bun:"entity_id" json:"entity_id,omitempty"`
	EntityIDs []string         `bun:"entity_ids,type:text" json:"entity_ids,omitempty"`
	Count     int              `bun:"count" json:"count"`
	Snapshot  types.JsonObject `bun:"snapshot,type:text" json:"snapshot,omitempty"`
	Changes   types.JsonObject `bun:"changes,type:text" json:"changes,omitempty"`
	UserID    string           `bun:"user_id" json:"user_id,omitempty"`
	CreatedAt time.Time        `bun:"created_at,notnull" json:"created_at"`
}

// AuditLogModel registers the audit_log table for database bootstrapping.
func AuditLogModel(priority int) database.SQLModel {
	return database.NewModelAdapter((*AuditRecord)(nil), priority)
}

// TableSink persists events into the audit_log table.
type TableSink struct {
	db bun.IDB
}

func NewTableSink(db bun.IDB) *TableSink {
	return &TableSink{db: db}
}

func (s *TableSink) Record(ctx context.Context, event AuditEvent) error {
	snapshot, err := types.ToJsonObject(event.Entity)
	if err != nil {
		return fmt.Errorf("failed to encode audit snapshot: %w", err)
	}
	record := &AuditRecord{
		ID:        uuid.NewString(),
		Action:    event.Action.String(),
		Table:     event.Table,
		EntityID:  event.EntityID,
		EntityIDs: event.EntityIDs,
		Count:     event.Count,
		Snapshot:  snapshot,
		Changes:   event.Changes,
		UserID:    event.UserID,
		CreatedAt: event.Timestamp,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []AuditSink

func (m MultiSink) Record(ctx context.Context, event AuditEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type actorKey struct{}

// WithActor attaches the acting user to ctx. It takes precedence over
// AuditConfig.UserID.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFromContext returns the user set by WithActor.
func ActorFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(actorKey{}).(string)
	return userID
}

func (r *Engine[T]) auditEnabled() bool {
	return r.opts.Audit.Enabled && r.opts.AuditSink != nil
}

// emit hands event to the sink, or to the enclosing transaction which
// delivers it after commit.
func (r *Engine[T]) emit(ctx context.Context, event AuditEvent) {
	if !r.auditEnabled() {
		return
	}
	event.Table = r.table.Name
	event.Timestamp = r.opts.Now()
	if event.UserID = ActorFromContext(ctx); event.UserID == "" {
		event.UserID = r.opts.Audit.UserID
	}
	if r.uow != nil {
		r.uow.later(func(ctx context.Context) { r.deliver(ctx, event) })
		return
	}
	r.deliver(ctx, event)
}

func (r *Engine[T]) deliver(ctx context.Context, event AuditEvent) {
	result := "ok"
	defer func() {
		if p := recover(); p != nil {
			result = "error"
			r.opts.Logger.Error("Audit sink panicked", "table", event.Table, "action", event.Action.String(), "panic", p)
		}
		metrics.AuditEvents.WithLabelValues(event.Table, strings.ToLower(event.Action.String()), result).Inc()
	}()
	if err := r.opts.AuditSink.Record(ctx, event); err != nil {
		result = "error"
		r.opts.Logger.Warn("Audit event not recorded",
			"table", event.Table,
			"action", event.Action.String(),
			"entity_id", event.EntityID,
			"error", err,
		)
	}
}

// changeSet returns per-column from/to pairs when change tracking has a
// before snapshot, otherwise the written values.
func (r *Engine[T]) changeSet(before, after *T, set Changes) types.JsonObject {
	if !r.auditEnabled() {
		return nil
	}
	if !r.opts.Audit.TrackChanges || before == nil || after == nil {
		delta := make(types.JsonObject, len(set))
		for column, value := range set {
			delta[column] = value
		}
		return delta
	}
	bv, av := reflect.ValueOf(before).Elem(), reflect.ValueOf(after).Elem()
	delta := make(types.JsonObject)
	for _, f := range r.table.Fields {
		from, to := f.Value(bv).Interface(), f.Value(av).Interface()
		if !reflect.DeepEqual(from, to) {
			delta[f.Name] = map[string]interface{}{"from": from, "to": to}
		}
	}
	return delta
}
