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
	"fmt"
	"reflect"

	"github.com/uptrace/bun"
)

// CreateTables creates the table of every registered model that does not
// exist yet, in priority order. It does not alter existing tables.
func CreateTables(ctx context.Context, db bun.IDB, registry ModelRegistry, logger Logger) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	for _, model := range registry.Models() {
		q := db.NewCreateTable().Model(model.Instance()).IfNotExists()
		for _, fk := range model.ForeignKeys() {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %s: %w", modelName(model.Instance()), err)
		}
		if logger != nil {
			logger.Debug("Table ensured", "model", modelName(model.Instance()))
		}
	}
	return nil
}

func modelName(instance interface{}) string {
	t := reflect.TypeOf(instance)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}
