/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package advisor

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an advisor failure.
type Code string

const (
	CodeRangeOverflow       Code = "RANGE_OVERFLOW"
	CodeRangeUnderflow      Code = "RANGE_UNDERFLOW"
	CodeInvalidDecimalSpec  Code = "INVALID_DECIMAL_SPEC"
	CodeInsufficientSample  Code = "INSUFFICIENT_SAMPLE"
	CodeKeyCannotBeNullable Code = "KEY_CANNOT_BE_NULLABLE"
	CodeEmptySchema         Code = "EMPTY_SCHEMA"
	CodeInvalidProfile      Code = "INVALID_PROFILE"
	CodeUnsupportedKind     Code = "UNSUPPORTED_KIND"
)

// Error is the error type returned by every advisor operation. Table and
// Column attribute the failure; Column is empty for table-level failures.
type Error struct {
	Code   Code
	Table  string
	Column string
	Msg    string
}

// Sentinels for errors.Is. They match any *Error with the same code.
var (
	ErrRangeOverflow       = &Error{Code: CodeRangeOverflow}
	ErrRangeUnderflow      = &Error{Code: CodeRangeUnderflow}
	ErrInvalidDecimalSpec  = &Error{Code: CodeInvalidDecimalSpec}
	ErrInsufficientSample  = &Error{Code: CodeInsufficientSample}
	ErrKeyCannotBeNullable = &Error{Code: CodeKeyCannotBeNullable}
	ErrEmptySchema         = &Error{Code: CodeEmptySchema}
	ErrInvalidProfile      = &Error{Code: CodeInvalidProfile}
	ErrUnsupportedKind     = &Error{Code: CodeUnsupportedKind}
)

func newError(code Code, table, column, msg string) *Error {
	return &Error{Code: code, Table: table, Column: column, Msg: msg}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	switch {
	case e.Table != "" && e.Column != "":
		fmt.Fprintf(&b, " Column[%s.%s]", e.Table, e.Column)
	case e.Column != "":
		fmt.Fprintf(&b, " Column[%s]", e.Column)
	case e.Table != "":
		fmt.Fprintf(&b, " Table[%s]", e.Table)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	return b.String()
}

// Is matches on the error code so callers can compare against the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// inTable returns a copy of err attributed to table when err is an *Error.
func inTable(err error, table string) error {
	var ae *Error
	if !errors.As(err, &ae) {
		return err
	}
	cp := *ae
	cp.Table = table
	return &cp
}

// CodeOf returns the advisor code carried by err, or "" when err is not an
// advisor error.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
