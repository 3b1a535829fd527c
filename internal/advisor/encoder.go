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

// Encoding thresholds.
const (
	EnumMaxDistinct       = 10
	Enum8MaxDistinct      = 127
	DictionaryMaxDistinct = 10_000
	BenchmarkMaxDistinct  = 100_000
)

// Encoding is the physical encoding chosen for a categorical column.
type Encoding string

const (
	EncodingEnum       Encoding = "enum"
	EncodingDictionary Encoding = "dictionary"
	EncodingPlain      Encoding = "plain"
)

// EncodingDecision is the outcome of the cardinality encoder.
type EncodingDecision struct {
	Encoding Encoding `json:"encoding" yaml:"encoding"`
	// EnumWidth is 8 or 16 for enum encodings.
	EnumWidth int `json:"enum_width,omitempty" yaml:"enum_width,omitempty"`
	// BenchmarkRequired marks the ambiguous distinct-count zone where the
	// choice has to be validated empirically.
	BenchmarkRequired bool   `json:"benchmark_required,omitempty" yaml:"benchmark_required,omitempty"`
	Rule              int    `json:"rule" yaml:"rule"`
	Rationale         string `json:"rationale" yaml:"rationale"`
}

// DecideEncoding applies the cardinality rules in order; the first match wins.
func DecideEncoding(p ColumnProfile) (EncodingDecision, error) {
	if p.RowCount == 0 {
		return EncodingDecision{}, newError(CodeInsufficientSample, "", p.Name, "row_count is 0; cardinality ratio is undefined")
	}
	d := p.DistinctCount
	withinRatio := cmpRatio(d, p.RowCount, dictionaryRatioLimit) <= 0

	// Stability, not the count alone, gates enum usage.
	if d <= EnumMaxDistinct && p.IsStableEnum {
		width := 16
		if d <= Enum8MaxDistinct {
			width = 8
		}
		return EncodingDecision{
			Encoding:  EncodingEnum,
			EnumWidth: width,
			Rule:      1,
			Rationale: fmt.Sprintf("rule 1: %d stable distinct values fit Enum%d", d, width),
		}, nil
	}

	if d < DictionaryMaxDistinct && withinRatio {
		return EncodingDecision{
			Encoding:  EncodingDictionary,
			Rule:      2,
			Rationale: fmt.Sprintf("rule 2: %d distinct values at ratio %.4f <= 0.2 suit dictionary encoding", d, ratio(d, p.RowCount)),
		}, nil
	}

	if d >= DictionaryMaxDistinct && d < BenchmarkMaxDistinct && withinRatio {
		return EncodingDecision{
			Encoding:          EncodingDictionary,
			BenchmarkRequired: true,
			Rule:              3,
			Rationale:         fmt.Sprintf("rule 3: %d distinct values is in the 10k-100k zone; dictionary encoding must be benchmarked", d),
		}, nil
	}

	return EncodingDecision{
		Encoding:  EncodingPlain,
		Rule:      4,
		Rationale: fmt.Sprintf("rule 4: %d distinct values at ratio %.4f are too diverse for a dictionary", d, ratio(d, p.RowCount)),
	}, nil
}

// StringType maps an encoding decision on a string column to a storage type.
func StringType(p ColumnProfile, dec EncodingDecision) StorageType {
	switch dec.Encoding {
	case EncodingEnum:
		return StorageType{Family: FamilyEnum, Width: dec.EnumWidth}
	case EncodingDictionary:
		return StorageType{Family: FamilyDictionary}
	}
	if p.IsFixedLength && p.FixedLength > 0 {
		return StorageType{Family: FamilyFixedString, Length: p.FixedLength}
	}
	return StorageType{Family: FamilyString}
}
