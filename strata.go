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

// Package strata wires the database, cache and audit sink into a Store
// from which entity repositories are built.
package strata

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/tomoncle/strata/cache"
	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/metrics"
	"github.com/tomoncle/strata/repository"
	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

// Audit sink kinds accepted by Config.AuditSink.
const (
	AuditSinkNone  = "none"
	AuditSinkLog   = "log"
	AuditSinkTable = "table"
	AuditSinkBoth  = "both"
)

// Config is the process-level configuration of a Store.
type Config struct {
	Database database.Config `json:"database" yaml:"database"`
	// Cache is optional; a nil Cache disables read caching.
	Cache     *cache.Config `json:"cache" yaml:"cache"`
	AuditSink string        `json:"audit_sink" yaml:"audit_sink"`
}

// DefaultConfig returns a config with database defaults and a logging
// audit sink.
func DefaultConfig() *Config {
	return &Config{
		Database:  database.Config{Connection: *database.DefaultConnectionConfig()},
		AuditSink: AuditSinkLog,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig, loading a .env
// file first when one is present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Store owns the shared collaborators of every repository. Build one per
// process and pass it to NewRepository.
type Store struct {
	db     *database.Manager
	cache  cache.Client
	sink   repository.AuditSink
	logger database.Logger
}

// Open connects the database, creates the cache client and selects the
// audit sink. The audit_log table is registered when the table sink is used.
func Open(ctx context.Context, cfg *Config, registry database.ModelRegistry) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if registry == nil {
		registry = database.NewModelRegistry()
	}
	switch cfg.AuditSink {
	case AuditSinkTable, AuditSinkBoth:
		registry.Register(repository.AuditLogModel(0))
	case "", AuditSinkNone, AuditSinkLog:
	default:
		return nil, fmt.Errorf("unsupported audit sink: %s", cfg.AuditSink)
	}

	if cfg.Database.Connection.EnableMetrics {
		if err := metrics.Register(nil); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	logger := database.NewDefaultLogger("STRATA")
	manager, err := database.Open(ctx, &cfg.Database, registry)
	if err != nil {
		return nil, err
	}
	s := &Store{db: manager, logger: logger}

	if cfg.Cache != nil {
		if s.cache, err = cache.New(*cfg.Cache); err != nil {
			_ = manager.Close()
			return nil, fmt.Errorf("failed to create cache client: %w", err)
		}
	}

	db := manager.DB()
	switch cfg.AuditSink {
	case AuditSinkLog, "":
		s.sink = repository.NewLoggerSink(logger)
	case AuditSinkTable:
		s.sink = repository.NewTableSink(db)
	case AuditSinkBoth:
		s.sink = repository.MultiSink{repository.NewTableSink(db), repository.NewLoggerSink(logger)}
	}
	logger.Info("Store opened",
		"database", cfg.Database.Connection.Type,
		"cache", cfg.Cache != nil,
		"audit_sink", cfg.AuditSink,
	)
	return s, nil
}

// DB returns the shared bun handle.
func (s *Store) DB() *bun.DB { return s.db.DB() }

// Cache returns the cache client, nil when caching is not configured.
func (s *Store) Cache() cache.Client { return s.cache }

// AuditSink returns the sink selected by Config.AuditSink.
func (s *Store) AuditSink() repository.AuditSink { return s.sink }

// Health pings the database.
func (s *Store) Health(ctx context.Context) *database.HealthStatus {
	return s.db.Health(ctx)
}

func (s *Store) Stats() *database.DBStats { return s.db.Stats() }

// Close releases the cache client and the database connection.
func (s *Store) Close() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// NewRepository builds the repository of model T on s. The store's audit
// sink and logger fill the unset options, and a cache-enabled config gets
// the Cached decorator when the store has a cache.
func NewRepository[T any](s *Store, opts repository.Options) (repository.Repository[T], error) {
	if opts.AuditSink == nil {
		opts.AuditSink = s.sink
	}
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	engine, err := repository.New[T](s.DB(), opts)
	if err != nil {
		return nil, err
	}
	if opts.Cache.Enabled && s.cache != nil {
		return repository.NewCached(engine, s.cache), nil
	}
	return engine, nil
}
