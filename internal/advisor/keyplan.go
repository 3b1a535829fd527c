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
	"sort"
)

// KeyMaxDistinct is the distinct count above which a column never leads the key.
const KeyMaxDistinct = 1_000_000

// KeyPosition is one slot of a clustering key.
type KeyPosition struct {
	Column    string `json:"column" yaml:"column"`
	Rule      int    `json:"rule" yaml:"rule"`
	Rationale string `json:"rationale" yaml:"rationale"`
}

// ExcludedColumn is a column kept out of the clustering key.
type ExcludedColumn struct {
	Column string `json:"column" yaml:"column"`
	Reason string `json:"reason" yaml:"reason"`
}

// KeyOrderingPlan is the proposed clustering key for one table. Every input
// column is either in Positions or in Excluded, never both.
type KeyOrderingPlan struct {
	Table     string           `json:"table" yaml:"table"`
	Positions []KeyPosition    `json:"positions" yaml:"positions"`
	Excluded  []ExcludedColumn `json:"excluded,omitempty" yaml:"excluded,omitempty"`
}

// Columns returns the ordered key column names.
func (p KeyOrderingPlan) Columns() []string {
	names := make([]string, len(p.Positions))
	for i, pos := range p.Positions {
		names[i] = pos.Column
	}
	return names
}

// Contains reports whether column is part of the key.
func (p KeyOrderingPlan) Contains(column string) bool {
	for _, pos := range p.Positions {
		if pos.Column == column {
			return true
		}
	}
	return false
}

// keyExclusionReason returns why a column may never lead the key, or "".
func keyExclusionReason(p ColumnProfile) string {
	switch {
	case p.ValueKind == KindJSON:
		return "json column"
	case p.ValueKind == KindNested:
		return "nested column"
	case p.DistinctCount > KeyMaxDistinct:
		return fmt.Sprintf("distinct_count %d > %d", p.DistinctCount, KeyMaxDistinct)
	case p.HighEntropyID:
		return "high-entropy identifier"
	}
	return ""
}

type keyCandidate struct {
	index int
	col   ColumnInput
}

// keyLess orders candidates by filter usage, then ascending cardinality, then
// group-by usage. Equal candidates keep declaration order via a stable sort.
func keyLess(a, b ColumnProfile) bool {
	if a.UsedInFilter != b.UsedInFilter {
		return a.UsedInFilter
	}
	if a.DistinctCount != b.DistinctCount {
		return a.DistinctCount < b.DistinctCount
	}
	if a.UsedInGroupBy != b.UsedInGroupBy {
		return a.UsedInGroupBy
	}
	return false
}

func sortCandidates(cands []keyCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return keyLess(cands[i].col.Profile, cands[j].col.Profile)
	})
}

// timeGranularity ranks time columns: higher is finer.
func timeGranularity(c ColumnInput) int {
	if c.Profile.ValueKind == KindDate {
		return PrecisionDate.rank()
	}
	if r := c.Hints.TimePrecision.rank(); r >= 0 {
		return r
	}
	return PrecisionSecond.rank()
}

// validateTable checks the table-level structure the key plan relies on.
func validateTable(t TableInput) error {
	if len(t.Columns) == 0 {
		return newError(CodeEmptySchema, t.Name, "", "table has no columns")
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if seen[c.Profile.Name] {
			return newError(CodeInvalidProfile, t.Name, c.Profile.Name, "duplicate column name")
		}
		seen[c.Profile.Name] = true
	}
	for _, name := range t.SecondaryKeys {
		if !seen[name] {
			return newError(CodeInvalidProfile, t.Name, name, "secondary key column does not exist")
		}
	}
	return nil
}

// PlanKeyOrdering proposes a clustering key ordering for a table from the
// column profiles alone. AdviseTable narrows the columns to NOT NULL
// recommendations before calling it.
func PlanKeyOrdering(t TableInput) (KeyOrderingPlan, error) {
	if err := validateTable(t); err != nil {
		return KeyOrderingPlan{}, err
	}
	requested := make(map[string]bool, len(t.SecondaryKeys))
	for _, name := range t.SecondaryKeys {
		requested[name] = true
	}

	plan := KeyOrderingPlan{Table: t.Name}
	var regular, timed []keyCandidate
	excludedReason := make(map[string]string)

	for i, c := range t.Columns {
		if reason := keyExclusionReason(c.Profile); reason != "" {
			excludedReason[c.Profile.Name] = reason
			if !requested[c.Profile.Name] {
				plan.Excluded = append(plan.Excluded, ExcludedColumn{Column: c.Profile.Name, Reason: reason})
			}
			continue
		}
		if c.Profile.ValueKind.IsTime() {
			timed = append(timed, keyCandidate{index: i, col: c})
		} else {
			regular = append(regular, keyCandidate{index: i, col: c})
		}
	}

	sortCandidates(regular)
	sortCandidates(timed)

	if t.AppendOnly && len(timed) > 0 {
		lead := 0
		for i := 1; i < len(timed); i++ {
			gi, gl := timeGranularity(timed[i].col), timeGranularity(timed[lead].col)
			if gi > gl || (gi == gl && timed[i].index < timed[lead].index) {
				lead = i
			}
		}
		leader := timed[lead]
		plan.Positions = append(plan.Positions, KeyPosition{
			Column:    leader.col.Profile.Name,
			Rule:      3,
			Rationale: "rule 3: append-only table; the most granular time column leads the key",
		})
		timed = append(timed[:lead:lead], timed[lead+1:]...)
	}

	for _, c := range regular {
		p := c.col.Profile
		plan.Positions = append(plan.Positions, KeyPosition{
			Column: p.Name,
			Rule:   2,
			Rationale: fmt.Sprintf("rule 2: used_in_filter=%t, distinct_count=%d, used_in_group_by=%t",
				p.UsedInFilter, p.DistinctCount, p.UsedInGroupBy),
		})
	}
	for _, c := range timed {
		plan.Positions = append(plan.Positions, KeyPosition{
			Column:    c.col.Profile.Name,
			Rule:      3,
			Rationale: "rule 3: time column placed after the non-time columns",
		})
	}
	for _, name := range t.SecondaryKeys {
		reason, excluded := excludedReason[name]
		if !excluded || plan.Contains(name) {
			continue
		}
		plan.Positions = append(plan.Positions, KeyPosition{
			Column:    name,
			Rule:      1,
			Rationale: fmt.Sprintf("rule 1: %s never leads the key; appended on request for secondary filtering", reason),
		})
	}
	return plan, nil
}
