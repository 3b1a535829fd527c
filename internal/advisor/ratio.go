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

import "math/bits"

// fraction is an exact threshold num/den.
type fraction struct {
	num, den uint64
}

var (
	dictionaryRatioLimit = fraction{1, 5}   // 0.2
	denseNullLimit       = fraction{1, 20}  // 0.05
	sparseNullLimit      = fraction{19, 20} // 0.95
)

// cmpRatio compares a/b with f without floating point. b must be positive.
// It returns -1, 0 or 1.
func cmpRatio(a, b int64, f fraction) int {
	// a/b ? num/den  <=>  a*den ? num*b
	lhsHi, lhsLo := bits.Mul64(uint64(a), f.den)
	rhsHi, rhsLo := bits.Mul64(f.num, uint64(b))
	switch {
	case lhsHi < rhsHi:
		return -1
	case lhsHi > rhsHi:
		return 1
	case lhsLo < rhsLo:
		return -1
	case lhsLo > rhsLo:
		return 1
	}
	return 0
}

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
