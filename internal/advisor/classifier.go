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
	"math/big"
)

// MaxDecimalPrecision is the largest decimal digit count the target engine supports.
const MaxDecimalPrecision = 76

var integerWidths = []int{8, 16, 32, 64}

type intBounds struct {
	width int
	uMax  *big.Int
	sMin  *big.Int
	sMax  *big.Int
}

var widthBounds = func() []intBounds {
	bounds := make([]intBounds, 0, len(integerWidths))
	one := big.NewInt(1)
	for _, w := range integerWidths {
		full := new(big.Int).Lsh(one, uint(w))
		half := new(big.Int).Lsh(one, uint(w-1))
		bounds = append(bounds, intBounds{
			width: w,
			uMax:  new(big.Int).Sub(full, one),
			sMin:  new(big.Int).Neg(half),
			sMax:  new(big.Int).Sub(half, one),
		})
	}
	return bounds
}()

// Classification is the outcome of the type classifier.
type Classification struct {
	Type      StorageType
	Rationale string
}

// ClassifyType picks the narrowest safe storage type for a non-string column.
// String columns are typed by DecideEncoding.
func ClassifyType(p ColumnProfile, h ColumnHints) (Classification, error) {
	switch p.ValueKind {
	case KindUnsignedInteger:
		return classifyUnsigned(p)
	case KindInteger:
		return classifySigned(p)
	case KindFloat:
		return classifyFloat(h), nil
	case KindDecimal:
		return classifyDecimal(p, h)
	case KindDate, KindDatetime:
		return classifyTime(p, h)
	case KindBoolean:
		return Classification{
			Type:      StorageType{Family: FamilyBoolean},
			Rationale: "boolean values stored as Bool",
		}, nil
	case KindNested:
		return Classification{
			Type:      StorageType{Family: FamilyNested},
			Rationale: "nested values kept as a nested structure instead of serialized text",
		}, nil
	case KindJSON:
		return Classification{
			Type:      StorageType{Family: FamilyJSON, Subpaths: append([]string(nil), h.JSONSubpaths...)},
			Rationale: jsonRationale(h.JSONSubpaths),
		}, nil
	}
	return Classification{}, newError(CodeUnsupportedKind, "", p.Name,
		fmt.Sprintf("value kind %q is not handled by the type classifier", p.ValueKind))
}

func observedRange(p ColumnProfile) (*big.Int, *big.Int, error) {
	if p.ObservedMin == nil || p.ObservedMax == nil {
		return nil, nil, newError(CodeInsufficientSample, "", p.Name, "no observed numeric range")
	}
	return p.ObservedMin, p.ObservedMax, nil
}

func classifyUnsigned(p ColumnProfile) (Classification, error) {
	lo, hi, err := observedRange(p)
	if err != nil {
		return Classification{}, err
	}
	if lo.Sign() < 0 {
		return Classification{}, newError(CodeRangeUnderflow, "", p.Name,
			fmt.Sprintf("observed_min %s is negative for an unsigned column", lo))
	}
	for _, b := range widthBounds {
		if hi.Cmp(b.uMax) <= 0 {
			return Classification{
				Type:      StorageType{Family: FamilyUint, Width: b.width},
				Rationale: fmt.Sprintf("range [%s, %s] fits UInt%d (max %s)", lo, hi, b.width, b.uMax),
			}, nil
		}
	}
	return Classification{}, newError(CodeRangeOverflow, "", p.Name,
		fmt.Sprintf("observed_max %s exceeds UInt64; use an arbitrary-precision type", hi))
}

func classifySigned(p ColumnProfile) (Classification, error) {
	lo, hi, err := observedRange(p)
	if err != nil {
		return Classification{}, err
	}
	for _, b := range widthBounds {
		if lo.Cmp(b.sMin) >= 0 && hi.Cmp(b.sMax) <= 0 {
			return Classification{
				Type:      StorageType{Family: FamilyInt, Width: b.width},
				Rationale: fmt.Sprintf("range [%s, %s] fits Int%d [%s, %s]", lo, hi, b.width, b.sMin, b.sMax),
			}, nil
		}
	}
	return Classification{}, newError(CodeRangeOverflow, "", p.Name,
		fmt.Sprintf("range [%s, %s] exceeds Int64; use an arbitrary-precision type", lo, hi))
}

func classifyFloat(h ColumnHints) Classification {
	if h.PrecisionSensitive {
		return Classification{
			Type:      StorageType{Family: FamilyFloat, Width: 64},
			Rationale: "precision-sensitive values need double precision",
		}
	}
	return Classification{
		Type:      StorageType{Family: FamilyFloat, Width: 32},
		Rationale: "single precision is enough unless the column is marked precision-sensitive",
	}
}

func classifyDecimal(p ColumnProfile, h ColumnHints) (Classification, error) {
	prec, scale := h.DecimalPrecision, h.DecimalScale
	if prec < 1 || prec > MaxDecimalPrecision || scale < 0 || scale > prec {
		return Classification{}, newError(CodeInvalidDecimalSpec, "", p.Name,
			fmt.Sprintf("Decimal(%d,%d) is invalid; need 1 <= P <= %d and 0 <= S <= P", prec, scale, MaxDecimalPrecision))
	}
	width := decimalBackingWidth(prec)
	rationale := fmt.Sprintf("exact decimal with %d digits, %d after the point (Decimal%d backing)", prec, scale, width)
	return Classification{
		Type:      StorageType{Family: FamilyDecimal, Width: width, Precision: prec, Scale: scale},
		Rationale: rationale,
	}, nil
}

func decimalBackingWidth(precision int) int {
	switch {
	case precision <= 9:
		return 32
	case precision <= 18:
		return 64
	case precision <= 38:
		return 128
	}
	return 256
}

func classifyTime(p ColumnProfile, h ColumnHints) (Classification, error) {
	tier := h.TimePrecision
	if tier != "" && !tier.Valid() {
		return Classification{}, newError(CodeInvalidProfile, "", p.Name,
			fmt.Sprintf("unknown time precision %q", tier))
	}
	if tier == "" {
		if p.ValueKind == KindDate {
			tier = PrecisionDate
		} else {
			tier = PrecisionSecond
		}
	}
	var t StorageType
	switch tier {
	case PrecisionDate:
		t = StorageType{Family: FamilyDate}
	case PrecisionSecond:
		t = StorageType{Family: FamilyDatetime}
	case PrecisionMillisecond:
		t = StorageType{Family: FamilyDatetime, Precision: 3}
	case PrecisionMicrosecond:
		t = StorageType{Family: FamilyDatetime, Precision: 6}
	case PrecisionNanosecond:
		t = StorageType{Family: FamilyDatetime, Precision: 9}
	}
	return Classification{
		Type:      t,
		Rationale: fmt.Sprintf("%s precision maps to %s", tier, t),
	}, nil
}

func jsonRationale(subpaths []string) string {
	if len(subpaths) == 0 {
		return "semi-structured values stored as JSON; declare hot subpaths once they are known"
	}
	return fmt.Sprintf("semi-structured values stored as JSON with %d typed subpath(s)", len(subpaths))
}
