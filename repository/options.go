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
	"time"

	"github.com/google/uuid"
	"github.com/tomoncle/strata/database"
)

// Columns names the storage columns the engine manages. Only PrimaryKey is
// required; an empty name disables the corresponding behaviour.
type Columns struct {
	PrimaryKey string `json:"primary_key" yaml:"primary_key"`
	UpdatedAt  string `json:"updated_at" yaml:"updated_at"`
	DeletedAt  string `json:"deleted_at" yaml:"deleted_at"`
	Version    string `json:"version" yaml:"version"`
}

// DefaultColumns binds the conventional column names.
func DefaultColumns() Columns {
	return Columns{PrimaryKey: "id", UpdatedAt: "updated_at", DeletedAt: "deleted_at", Version: "version"}
}

// CacheConfig is read by the Cached decorator. The engine itself never
// talks to a cache.
type CacheConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	TTL       time.Duration `json:"ttl" yaml:"ttl"`
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix"`
}

// AuditConfig controls whether mutations are reported to the AuditSink.
type AuditConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// TrackChanges records per-column before/after values on UPDATE.
	TrackChanges bool `json:"track_changes" yaml:"track_changes"`
	// UserID is the fallback actor when the context carries none.
	UserID string `json:"user_id" yaml:"user_id"`
}

// Options configures an Engine. It is fixed at construction.
type Options struct {
	Columns Columns
	Cache   CacheConfig
	Audit   AuditConfig

	// AuditSink receives audit events. Defaults to a LoggerSink when
	// auditing is enabled.
	AuditSink AuditSink
	Logger    database.Logger

	// NewID generates primary keys for string ids left empty on create.
	NewID func() string
	Now   func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Columns.PrimaryKey == "" {
		o.Columns.PrimaryKey = "id"
	}
	if o.Logger == nil {
		o.Logger = database.GetLogger()
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Audit.Enabled && o.AuditSink == nil {
		o.AuditSink = NewLoggerSink(o.Logger)
	}
	return o
}
