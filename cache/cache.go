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

// Package cache provides the key/value backends consumed by the cached
// repository decorator: an in-process store and Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Client is the minimal cache contract used by repository decorators.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl applies the client's default
	// ttl; without a default the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error

	// Incr atomically increments the integer stored at key and returns the
	// new value; a missing key counts as zero.
	Incr(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a cache backend.
type Config struct {
	Driver     string        `json:"driver" yaml:"driver"` // memory | redis
	Host       string        `json:"host" yaml:"host"`
	Port       int           `json:"port" yaml:"port"`
	Password   string        `json:"password" yaml:"password"`
	DB         int           `json:"db" yaml:"db"`
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl"`
}

// New creates a client for cfg.Driver; an empty driver selects memory.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg.DefaultTTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Driver)
	}
}

// IsNotFound reports whether err is a cache miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
