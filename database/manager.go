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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

var errNotConnected = errors.New("database not connected")

// driver binds a configuration type to its database/sql driver and bun
// dialect.
type driver struct {
	name    string
	dialect func() schema.Dialect
	dsn     func(cfg *ConnectionConfig) string
	// single pins the pool to one connection. sqlite serialises writers and
	// an in-memory database lives only as long as its connection.
	single bool
}

var drivers = map[string]driver{
	"mysql":      {name: "mysql", dialect: func() schema.Dialect { return mysqldialect.New() }, dsn: mysqlDSN},
	"postgres":   {name: "postgres", dialect: func() schema.Dialect { return pgdialect.New() }, dsn: postgresDSN},
	"postgresql": {name: "postgres", dialect: func() schema.Dialect { return pgdialect.New() }, dsn: postgresDSN},
	"sqlite":     {name: sqliteshim.ShimName, dialect: func() schema.Dialect { return sqlitedialect.New() }, dsn: sqliteDSN, single: true},
	"sqlite3":    {name: sqliteshim.ShimName, dialect: func() schema.Dialect { return sqlitedialect.New() }, dsn: sqliteDSN, single: true},
}

// SupportedTypes lists the accepted ConnectionConfig.Type values.
func SupportedTypes() []string {
	types := make([]string, 0, len(drivers))
	for t := range drivers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func mysqlDSN(cfg *ConnectionConfig) string {
	c := mysql.NewConfig()
	c.User = cfg.Username
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.DBName
	c.ParseTime = true
	c.Loc = time.Local
	c.Timeout = cfg.ConnectTimeout
	c.ReadTimeout = cfg.ReadTimeout
	c.WriteTimeout = cfg.WriteTimeout
	_ = c.Apply(mysql.Charset("utf8mb4", ""))
	return c.FormatDSN()
}

func postgresDSN(cfg *ConnectionConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	if cfg.ConnectTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.DBName,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func sqliteDSN(cfg *ConnectionConfig) string {
	if cfg.DBName == ":memory:" {
		return cfg.DBName
	}
	return cfg.DBName + ".db"
}

// Manager owns the bun.DB opened from a ConnectionConfig. Broken pool
// connections are re-dialled by database/sql, so engines may keep the
// handle returned by DB for the lifetime of the manager.
type Manager struct {
	config *ConnectionConfig
	driver driver
	logger Logger

	mu sync.RWMutex
	db *bun.DB
}

// NewManager validates cfg and returns an unconnected manager. A nil logger
// selects the package logger.
func NewManager(cfg *ConnectionConfig, logger Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	d, ok := drivers[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.Type, SupportedTypes())
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &Manager{config: cfg, driver: d, logger: logger}, nil
}

// Connect opens the pool and verifies it with a ping. It is a no-op when
// already connected.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return nil
	}

	sqlDB, err := sql.Open(m.driver.name, m.driver.dsn(m.config))
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	m.configurePool(sqlDB)
	db := bun.NewDB(sqlDB, m.driver.dialect())
	m.addHooks(db)

	timeout := m.config.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("database connection test failed: %w", err)
	}
	if db.Dialect().Name() == dialect.SQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to enable sqlite foreign keys: %w", err)
		}
	}

	m.db = db
	m.logger.Info("Database connected", "type", m.config.Type, "host", m.config.Host, "dialect", db.Dialect().Name().String())
	return nil
}

func (m *Manager) configurePool(sqlDB *sql.DB) {
	if m.driver.single {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		return
	}
	sqlDB.SetMaxIdleConns(m.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(m.config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(m.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)
}

func (m *Manager) addHooks(db *bun.DB) {
	if m.config.EnableQueryLog {
		db.AddQueryHook(NewQueryHook(true))
	} else if _, ok := os.LookupEnv("BUNDEBUG"); ok {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.FromEnv("BUNDEBUG")))
	}
	if m.config.EnableMetrics {
		db.AddQueryHook(MetricsHook{})
	}
	if m.config.SlowQueryTime > 0 {
		db.AddQueryHook(&SlowQueryHook{Threshold: m.config.SlowQueryTime, Logger: m.logger})
	}
}

// DB returns the connected handle, or nil before Connect and after Close.
func (m *Manager) DB() *bun.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

func (m *Manager) Ping(ctx context.Context) error {
	db := m.DB()
	if db == nil {
		return errNotConnected
	}
	return db.PingContext(ctx)
}

// Health pings the database and reports the dialect capabilities the
// repository engine relies on.
func (m *Manager) Health(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{CheckedAt: start}
	db := m.DB()
	if db == nil {
		status.LastError = errNotConnected.Error()
		return status
	}
	status.Dialect = db.Dialect().Name().String()
	status.Returning = db.Dialect().Features().Has(feature.InsertReturning)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
	}
	status.ResponseTime = time.Since(start)

	stats := db.Stats()
	status.OpenConns = stats.OpenConnections
	status.IdleConns = stats.Idle
	return status
}

func (m *Manager) Stats() *DBStats {
	db := m.DB()
	if db == nil {
		return &DBStats{}
	}
	stats := db.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// CreateTables registers the models of registry and creates their tables.
func (m *Manager) CreateTables(ctx context.Context, registry ModelRegistry) error {
	db := m.DB()
	if db == nil {
		return errNotConnected
	}
	db.RegisterModel(ModelInstances(registry)...)
	return CreateTables(ctx, db, registry, m.logger)
}

// Close closes the pool. Closing twice is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	if err != nil {
		m.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	m.logger.Info("Database connection closed")
	return nil
}
