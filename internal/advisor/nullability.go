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

import "fmt"

// Nullability is the nullability decision for a column.
type Nullability string

const (
	NotNullWithDefault Nullability = "not_null_with_default"
	Nullable           Nullability = "nullable"
	// AmbiguousNullability is a deliberate non-answer: the null ratio sits in
	// the range where a human has to decide, usually by restructuring.
	AmbiguousNullability Nullability = "ambiguous"
)

// NullabilityDecision is the outcome of the nullability resolver.
type NullabilityDecision struct {
	Nullability Nullability `json:"nullability" yaml:"nullability"`
	// Default is set only for NotNullWithDefault.
	Default   *string `json:"default,omitempty" yaml:"default,omitempty"`
	NullRatio float64 `json:"null_ratio" yaml:"null_ratio"`
	Rationale string  `json:"rationale" yaml:"rationale"`
}

// NeedsReview reports whether the decision must go to a human.
func (d NullabilityDecision) NeedsReview() bool {
	return d.Nullability == AmbiguousNullability
}

// TypeDefault returns the sentinel used for NOT NULL columns of a kind.
func TypeDefault(kind ValueKind) string {
	switch kind {
	case KindInteger, KindUnsignedInteger, KindFloat, KindDecimal:
		return "0"
	case KindBoolean:
		return "false"
	case KindDate:
		return "1970-01-01"
	case KindDatetime:
		return "1970-01-01 00:00:00"
	case KindNested:
		return "[]"
	case KindJSON:
		return "{}"
	}
	return ""
}

// ResolveNullability chooses between NOT NULL with a default and nullable.
func ResolveNullability(p ColumnProfile, h ColumnHints) (NullabilityDecision, error) {
	if p.SemanticRole == RoleKey {
		if h.RequestNullable {
			return NullabilityDecision{}, newError(CodeKeyCannotBeNullable, "", p.Name, "key columns must be NOT NULL")
		}
		return notNull(p, h, ratio(p.NullCount, p.RowCount), "key columns are always NOT NULL"), nil
	}

	if p.RowCount == 0 {
		return NullabilityDecision{}, newError(CodeInsufficientSample, "", p.Name, "row_count is 0; null ratio is undefined")
	}
	r := ratio(p.NullCount, p.RowCount)

	// Nullable(JSON) and Nullable(Nested) are not valid column types.
	if p.ValueKind == KindJSON || p.ValueKind == KindNested {
		return notNull(p, h, r, fmt.Sprintf("null ratio %.4f; %s columns cannot be Nullable, an empty value stands in for NULL",
			r, p.ValueKind)), nil
	}

	if cmpRatio(p.NullCount, p.RowCount, denseNullLimit) < 0 {
		return notNull(p, h, r, fmt.Sprintf("null ratio %.4f < 0.05", r)), nil
	}
	if cmpRatio(p.NullCount, p.RowCount, sparseNullLimit) < 0 {
		why := fmt.Sprintf("null ratio %.4f is between 0.05 and 0.95; consider splitting the column out "+
			"or restructuring instead of picking a type", r)
		return NullabilityDecision{
			Nullability: AmbiguousNullability,
			NullRatio:   r,
			Rationale:   why,
		}, nil
	}
	return NullabilityDecision{
		Nullability: Nullable,
		NullRatio:   r,
		Rationale:   fmt.Sprintf("null ratio %.4f >= 0.95 justifies the null bitmap", r),
	}, nil
}

func notNull(p ColumnProfile, h ColumnHints, r float64, why string) NullabilityDecision {
	def := TypeDefault(p.ValueKind)
	source := "type default"
	if h.Default != nil {
		def = *h.Default
		source = "caller default"
	}
	return NullabilityDecision{
		Nullability: NotNullWithDefault,
		Default:     &def,
		NullRatio:   r,
		Rationale:   fmt.Sprintf("%s; NOT NULL with %s %q", why, source, def),
	}
}
