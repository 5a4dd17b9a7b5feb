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
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/tomoncle/strata/metrics"
	"github.com/uptrace/bun"
)

// QueryHook prints executed statements with an operation colour. Setting the
// environment variable named by EnvName overrides Enabled ("0" disables,
// "2" turns on verbose mode).
type QueryHook struct {
	EnvName string
	Enabled bool
	// Verbose also prints successful statements; otherwise only failures.
	Verbose bool
	Writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook returns a hook that writes to stdout and honours STRATA_SQL.
func NewQueryHook(verbose bool) *QueryHook {
	return &QueryHook{EnvName: "STRATA_SQL", Enabled: true, Verbose: verbose, Writer: os.Stdout}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	enabled, verbose := h.Enabled, h.Verbose
	if env, ok := os.LookupEnv(h.EnvName); ok && h.EnvName != "" {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	now := time.Now()
	args := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		color.CyanString("%15s", "[BUN]"),
		fmt.Sprintf("%17s", now.Sub(event.StartTime).Round(time.Microsecond)),
		"  ", operationColor(event.Operation()).Sprint(event.Query),
	}
	if event.Err != nil {
		typ := reflect.TypeOf(event.Err).String()
		args = append(args, "\t", color.New(color.BgRed).Sprintf(" %s ", typ+": "+event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.Writer, args...)
}

func operationColor(operation string) *color.Color {
	switch operation {
	case "SELECT":
		return color.New(color.FgGreen)
	case "INSERT":
		return color.New(color.FgBlue)
	case "UPDATE":
		return color.New(color.FgYellow)
	case "DELETE":
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgRed)
	}
}

// SlowQueryHook logs successful statements that take longer than Threshold.
type SlowQueryHook struct {
	Threshold time.Duration
	Logger    Logger
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if event.Err != nil || h.Logger == nil || h.Threshold <= 0 {
		return
	}
	if duration := time.Since(event.StartTime); duration > h.Threshold {
		h.Logger.Warn("Database slow query detected",
			"duration", duration,
			"slow_threshold", h.Threshold,
			"query", event.Query,
		)
	}
}

// MetricsHook records statement latency and failures in Prometheus.
// sql.ErrNoRows is not counted as a failure.
type MetricsHook struct{}

func (MetricsHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (MetricsHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	op := strings.ToLower(event.Operation())
	if op == "" {
		op = "other"
	}
	metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(event.StartTime).Seconds())
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		metrics.QueryErrors.WithLabelValues(op).Inc()
	}
}
