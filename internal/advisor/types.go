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

// Package advisor turns per-column statistics and usage signals into OLAP
// schema recommendations: storage types, dictionary encoding, nullability and
// a clustering key ordering. Everything in this package is a pure function of
// its inputs.
package advisor

import (
	"fmt"
	"math/big"
)

// ValueKind is the logical kind of the values stored in a column.
type ValueKind string

const (
	KindInteger         ValueKind = "integer"
	KindUnsignedInteger ValueKind = "unsigned_integer"
	KindFloat           ValueKind = "float"
	KindDecimal         ValueKind = "decimal"
	KindBoolean         ValueKind = "boolean"
	KindDate            ValueKind = "date"
	KindDatetime        ValueKind = "datetime"
	KindString          ValueKind = "string"
	KindNested          ValueKind = "nested"
	KindJSON            ValueKind = "json"
)

// ValueKinds lists every supported kind in a stable order.
var ValueKinds = []ValueKind{
	KindInteger, KindUnsignedInteger, KindFloat, KindDecimal, KindBoolean,
	KindDate, KindDatetime, KindString, KindNested, KindJSON,
}

// Valid reports whether k is one of the known kinds.
func (k ValueKind) Valid() bool {
	for _, v := range ValueKinds {
		if k == v {
			return true
		}
	}
	return false
}

// IsNumeric reports whether the kind holds numbers.
func (k ValueKind) IsNumeric() bool {
	switch k {
	case KindInteger, KindUnsignedInteger, KindFloat, KindDecimal:
		return true
	}
	return false
}

// IsTime reports whether the kind holds dates or timestamps.
func (k ValueKind) IsTime() bool {
	return k == KindDate || k == KindDatetime
}

// SemanticRole describes what a column means to the table.
type SemanticRole string

const (
	RoleKey       SemanticRole = "key"
	RoleMetric    SemanticRole = "metric"
	RoleDimension SemanticRole = "dimension"
	RoleMetadata  SemanticRole = "metadata"
)

// Valid reports whether r is one of the known roles.
func (r SemanticRole) Valid() bool {
	switch r {
	case RoleKey, RoleMetric, RoleDimension, RoleMetadata:
		return true
	}
	return false
}

// TimePrecision is the finest time unit a column must keep.
type TimePrecision string

const (
	PrecisionDate        TimePrecision = "date"
	PrecisionSecond      TimePrecision = "second"
	PrecisionMillisecond TimePrecision = "millisecond"
	PrecisionMicrosecond TimePrecision = "microsecond"
	PrecisionNanosecond  TimePrecision = "nanosecond"
)

// Valid reports whether p names a known tier.
func (p TimePrecision) Valid() bool { return p.rank() >= 0 }

// rank orders precision tiers from coarsest to finest. Unknown tiers rank -1.
func (p TimePrecision) rank() int {
	switch p {
	case PrecisionDate:
		return 0
	case PrecisionSecond:
		return 1
	case PrecisionMillisecond:
		return 2
	case PrecisionMicrosecond:
		return 3
	case PrecisionNanosecond:
		return 4
	}
	return -1
}

// ColumnProfile is a snapshot of one sampling pass over a candidate column.
// The advisor treats it as read-only.
type ColumnProfile struct {
	Name string

	// ObservedMin and ObservedMax are nil for non-numeric columns.
	ObservedMin *big.Int
	ObservedMax *big.Int

	DistinctCount int64
	RowCount      int64
	NullCount     int64

	IsFixedLength bool
	// FixedLength is the shared length of all values when IsFixedLength is set.
	FixedLength int

	// IsStableEnum is set by the caller when the value set is known not to churn.
	IsStableEnum bool
	// HighEntropyID marks identifier columns such as UUIDs.
	HighEntropyID bool

	UsedInFilter           bool
	UsedInGroupBy          bool
	UsedInOrderByCandidate bool

	SemanticRole SemanticRole
	ValueKind    ValueKind
}

// Validate checks the snapshot invariants.
func (p ColumnProfile) Validate() error {
	switch {
	case p.Name == "":
		return newError(CodeInvalidProfile, "", "", "column name is empty")
	case !p.ValueKind.Valid():
		return newError(CodeUnsupportedKind, "", p.Name, fmt.Sprintf("unknown value kind %q", p.ValueKind))
	case !p.SemanticRole.Valid():
		return newError(CodeInvalidProfile, "", p.Name, fmt.Sprintf("unknown semantic role %q", p.SemanticRole))
	case p.RowCount < 0 || p.DistinctCount < 0 || p.NullCount < 0:
		return newError(CodeInvalidProfile, "", p.Name, "counts must not be negative")
	case p.DistinctCount > p.RowCount:
		return newError(CodeInvalidProfile, "", p.Name,
			fmt.Sprintf("distinct_count %d exceeds row_count %d", p.DistinctCount, p.RowCount))
	case p.NullCount > p.RowCount:
		return newError(CodeInvalidProfile, "", p.Name,
			fmt.Sprintf("null_count %d exceeds row_count %d", p.NullCount, p.RowCount))
	case p.ObservedMin != nil && p.ObservedMax != nil && p.ObservedMin.Cmp(p.ObservedMax) > 0:
		return newError(CodeInvalidProfile, "", p.Name,
			fmt.Sprintf("observed_min %s exceeds observed_max %s", p.ObservedMin, p.ObservedMax))
	}
	return nil
}

// ColumnHints carries the judgment calls a caller must make explicitly.
type ColumnHints struct {
	// PrecisionSensitive selects double precision for float columns.
	PrecisionSensitive bool

	DecimalPrecision int
	DecimalScale     int

	// TimePrecision is the required tier for date and datetime columns.
	TimePrecision TimePrecision

	// RequestNullable asks for a nullable column. It is rejected for keys.
	RequestNullable bool
	// Default overrides the type default sentinel for NOT NULL columns.
	Default *string

	// JSONSubpaths lists typed subpaths to declare on JSON columns.
	JSONSubpaths []string
}

// ColumnInput pairs a profile with the caller hints for that column.
type ColumnInput struct {
	Profile ColumnProfile
	Hints   ColumnHints
}

// TableInput is everything the advisor needs to know about one table.
type TableInput struct {
	Name string
	// Columns are in declaration order.
	Columns    []ColumnInput
	AppendOnly bool
	// SecondaryKeys names excluded columns the caller wants appended to the
	// end of the clustering key for secondary filtering.
	SecondaryKeys []string
}
