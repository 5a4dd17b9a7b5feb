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

package types

import (
	"strings"

	"github.com/uptrace/bun"
)

// QueryFilter describes a WHERE clause schema and its argument values.
// The schema uses bun placeholders ("?", "?0", "?TableAlias") and is passed
// to the query builder without inspection. A filter built by And keeps its
// operands in Terms so each one is bound to its own arguments.
type QueryFilter struct {
	Schema string
	Args   []interface{}
	Terms  []*QueryFilter
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{Schema: schema, Args: args}
}

// IsEmpty reports whether the filter has no clause.
func (f *QueryFilter) IsEmpty() bool {
	return len(f.Clauses()) == 0
}

// Clauses flattens f into the predicates that must all hold.
func (f *QueryFilter) Clauses() []*QueryFilter {
	if f == nil {
		return nil
	}
	var out []*QueryFilter
	if strings.TrimSpace(f.Schema) != "" {
		out = append(out, &QueryFilter{Schema: f.Schema, Args: f.Args})
	}
	for _, t := range f.Terms {
		out = append(out, t.Clauses()...)
	}
	return out
}

// Eq matches rows where column equals value.
func Eq(column string, value interface{}) *QueryFilter {
	return NewQueryFilter("? = ?", bun.Ident(column), value)
}

// In matches rows where column is one of values.
func In(column string, values interface{}) *QueryFilter {
	return NewQueryFilter("? IN (?)", bun.Ident(column), bun.In(values))
}

// IsNull matches rows where column is NULL.
func IsNull(column string) *QueryFilter {
	return NewQueryFilter("? IS NULL", bun.Ident(column))
}

// IsNotNull matches rows where column is not NULL.
func IsNotNull(column string) *QueryFilter {
	return NewQueryFilter("? IS NOT NULL", bun.Ident(column))
}

// And joins the non-empty filters with logical AND. Nil is returned when
// every filter is empty.
func And(filters ...*QueryFilter) *QueryFilter {
	var terms []*QueryFilter
	for _, f := range filters {
		terms = append(terms, f.Clauses()...)
	}
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return terms[0]
	}
	return &QueryFilter{Terms: terms}
}
