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
	"errors"
	"fmt"

	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/types"
)

// ErrorType is the closed taxonomy of repository failures.
type ErrorType int

const (
	NotFound ErrorType = iota
	DuplicateKey
	ForeignKeyViolation
	ValidationError
	TransactionError
	UnknownError
)

var errorTypes = []types.EnumEntry{
	NotFound:            {Name: "NOT_FOUND", Desc: "entity does not exist"},
	DuplicateKey:        {Name: "DUPLICATE_KEY", Desc: "unique constraint violated"},
	ForeignKeyViolation: {Name: "FOREIGN_KEY_VIOLATION", Desc: "referenced entity missing or still referenced"},
	ValidationError:     {Name: "VALIDATION_ERROR", Desc: "input or precondition rejected"},
	TransactionError:    {Name: "TRANSACTION_ERROR", Desc: "unit of work could not begin or commit"},
	UnknownError:        {Name: "UNKNOWN_ERROR", Desc: "unclassified backing-store failure"},
}

var _ types.BaseEnum = NotFound

func (t ErrorType) IsValid() bool {
	_, ok := types.LookupEnum(errorTypes, int(t))
	return ok
}

func (t ErrorType) Number() int {
	if !t.IsValid() {
		return types.IllegalValue
	}
	return int(t)
}

func (t ErrorType) String() string { return t.Name() }

func (t ErrorType) Name() string {
	e, _ := types.LookupEnum(errorTypes, int(t))
	return e.Name
}

func (t ErrorType) Desc() string {
	e, _ := types.LookupEnum(errorTypes, int(t))
	return e.Desc
}

// Error is returned by every single-item engine operation. Err keeps the
// original backing-store failure for diagnostics.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same type, so the sentinels below can be
// used with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

var (
	ErrNotFound            = &Error{Type: NotFound, Message: "not found"}
	ErrDuplicateKey        = &Error{Type: DuplicateKey, Message: "duplicate key"}
	ErrForeignKeyViolation = &Error{Type: ForeignKeyViolation, Message: "foreign key violation"}
	ErrValidation          = &Error{Type: ValidationError, Message: "validation failed"}
	ErrTransaction         = &Error{Type: TransactionError, Message: "transaction failed"}
	ErrUnknown             = &Error{Type: UnknownError, Message: "unknown error"}
)

// NewError builds a typed error.
func NewError(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// NewValidationError is the error entity-specific checks should raise.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Type: ValidationError, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports a missing entity of table with the given id.
func NewNotFoundError(table, id string) *Error {
	return &Error{Type: NotFound, Message: fmt.Sprintf("%s %q not found", table, id)}
}

// TypeOf returns the type of a repository error, or UnknownError for any
// other error.
func TypeOf(err error) ErrorType {
	var re *Error
	if errors.As(err, &re) {
		return re.Type
	}
	return UnknownError
}

// IsErrorType reports whether err is a repository error of type t.
func IsErrorType(err error, t ErrorType) bool {
	var re *Error
	return errors.As(err, &re) && re.Type == t
}

// classify maps a backing-store failure onto the taxonomy. Errors that are
// already typed pass through unchanged.
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	_, class := database.ClassifySQLError(err)
	switch class {
	case database.DuplicateKeyErr:
		return NewError(DuplicateKey, message, err)
	case database.ForeignKeyViolationErr:
		return NewError(ForeignKeyViolation, message, err)
	case database.CheckConstraintViolationErr:
		return NewError(ValidationError, message, err)
	default:
		return NewError(UnknownError, message, err)
	}
}
