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
	"fmt"
	"strings"
)

// TypeFamily is the closed set of storage type families the advisor emits.
type TypeFamily string

const (
	FamilyInt         TypeFamily = "int"
	FamilyUint        TypeFamily = "uint"
	FamilyFloat       TypeFamily = "float"
	FamilyDecimal     TypeFamily = "decimal"
	FamilyDate        TypeFamily = "date"
	FamilyDatetime    TypeFamily = "datetime"
	FamilyBoolean     TypeFamily = "boolean"
	FamilyEnum        TypeFamily = "enum"
	FamilyDictionary  TypeFamily = "dictionary_string"
	FamilyString      TypeFamily = "string"
	FamilyFixedString TypeFamily = "fixed_string"
	FamilyNested      TypeFamily = "nested"
	FamilyJSON        TypeFamily = "json"
)

// StorageType is a concrete storage type recommendation.
type StorageType struct {
	Family TypeFamily `json:"family" yaml:"family"`
	// Width is the bit width for int, uint, float and enum families and the
	// backing width for decimals.
	Width int `json:"width,omitempty" yaml:"width,omitempty"`
	// Precision is the total digit count for decimals and the sub-second digit
	// count for datetimes.
	Precision int `json:"precision,omitempty" yaml:"precision,omitempty"`
	Scale     int `json:"scale,omitempty" yaml:"scale,omitempty"`
	// Length is the byte length of fixed-length strings.
	Length   int      `json:"length,omitempty" yaml:"length,omitempty"`
	Subpaths []string `json:"subpaths,omitempty" yaml:"subpaths,omitempty"`
}

// String renders the type using ClickHouse spelling.
func (t StorageType) String() string {
	switch t.Family {
	case FamilyInt:
		return fmt.Sprintf("Int%d", t.Width)
	case FamilyUint:
		return fmt.Sprintf("UInt%d", t.Width)
	case FamilyFloat:
		return fmt.Sprintf("Float%d", t.Width)
	case FamilyDecimal:
		return fmt.Sprintf("Decimal(%d,%d)", t.Precision, t.Scale)
	case FamilyDate:
		return "Date"
	case FamilyDatetime:
		if t.Precision == 0 {
			return "DateTime"
		}
		return fmt.Sprintf("DateTime64(%d)", t.Precision)
	case FamilyBoolean:
		return "Bool"
	case FamilyEnum:
		return fmt.Sprintf("Enum%d", t.Width)
	case FamilyDictionary:
		return "LowCardinality(String)"
	case FamilyString:
		return "String"
	case FamilyFixedString:
		return fmt.Sprintf("FixedString(%d)", t.Length)
	case FamilyNested:
		return "Nested"
	case FamilyJSON:
		if len(t.Subpaths) == 0 {
			return "JSON"
		}
		return fmt.Sprintf("JSON(%s)", strings.Join(t.Subpaths, ", "))
	}
	return string(t.Family)
}
