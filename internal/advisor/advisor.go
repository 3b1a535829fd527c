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
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Options configures an Advisor.
type Options struct {
	// FailFast returns the first column failure instead of collecting it.
	FailFast bool
	Logger   *zap.Logger
}

// Advisor evaluates tables. It holds no per-call state and is safe for
// concurrent use.
type Advisor struct {
	failFast bool
	logger   *zap.Logger
}

// New creates an Advisor.
func New(opts Options) *Advisor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{failFast: opts.FailFast, logger: logger.Named("advisor")}
}

// Recommendation is the advice for one column.
type Recommendation struct {
	Table       string              `json:"table" yaml:"table"`
	Column      string              `json:"column" yaml:"column"`
	ValueKind   ValueKind           `json:"value_kind" yaml:"value_kind"`
	Role        SemanticRole        `json:"semantic_role" yaml:"semantic_role"`
	Type        StorageType         `json:"type" yaml:"type"`
	Encoding    *EncodingDecision   `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Nullability NullabilityDecision `json:"nullability" yaml:"nullability"`
	Rationale   string              `json:"rationale" yaml:"rationale"`
}

// NeedsReview reports whether the recommendation contains a non-decision a
// human has to settle.
func (r Recommendation) NeedsReview() bool {
	return r.Nullability.NeedsReview() || (r.Encoding != nil && r.Encoding.BenchmarkRequired)
}

// TableAdvice is the advice for one table. Recommendations follow column
// declaration order; a column with an issue has no recommendation.
type TableAdvice struct {
	Table           string           `json:"table" yaml:"table"`
	Recommendations []Recommendation `json:"recommendations" yaml:"recommendations"`
	KeyPlan         *KeyOrderingPlan `json:"key_plan,omitempty" yaml:"key_plan,omitempty"`
	Issues          []error          `json:"-" yaml:"-"`
}

// Err joins all issues, or returns nil when there are none.
func (t *TableAdvice) Err() error {
	return errors.Join(t.Issues...)
}

// Recommendation returns the recommendation for column, if any.
func (t *TableAdvice) Recommendation(column string) (Recommendation, bool) {
	for _, r := range t.Recommendations {
		if r.Column == column {
			return r, true
		}
	}
	return Recommendation{}, false
}

// NeedsReview returns the recommendations a human has to look at.
func (t *TableAdvice) NeedsReview() []Recommendation {
	var out []Recommendation
	for _, r := range t.Recommendations {
		if r.NeedsReview() {
			out = append(out, r)
		}
	}
	return out
}

// AdviseTable produces recommendations and a key plan for one table.
// Without FailFast every failure is recorded in TableAdvice.Issues and the
// returned error is nil.
//
// Columns are advised before the key is planned. Only columns that got a
// recommendation resolved to NOT NULL are key candidates; every other column
// lands in KeyPlan.Excluded, so the key never names a column the
// recommendations leave out or mark nullable.
func (a *Advisor) AdviseTable(t TableInput) (*TableAdvice, error) {
	advice := &TableAdvice{Table: t.Name}
	fail := func(err error) error {
		err = inTable(err, t.Name)
		if a.failFast {
			return err
		}
		a.logger.Warn("issue", zap.String("table", t.Name), zap.Error(err))
		advice.Issues = append(advice.Issues, err)
		return nil
	}

	valid := true
	if err := validateTable(t); err != nil {
		if err := fail(err); err != nil {
			return nil, err
		}
		valid = false
	}

	requested := make(map[string]bool, len(t.SecondaryKeys))
	for _, name := range t.SecondaryKeys {
		requested[name] = true
	}
	excluded := make(map[string]string)
	var candidates []ColumnInput

	for _, c := range t.Columns {
		rec, err := a.adviseColumn(t.Name, c)
		if err != nil {
			if err := fail(err); err != nil {
				return nil, err
			}
			excluded[c.Profile.Name] = issueReason(err)
			continue
		}
		advice.Recommendations = append(advice.Recommendations, rec)
		if reason := nullableKeyReason(rec.Nullability); reason != "" &&
			(requested[c.Profile.Name] || keyExclusionReason(c.Profile) == "") {
			excluded[c.Profile.Name] = reason
			continue
		}
		candidates = append(candidates, c)
	}

	if valid {
		plan, dropped, err := planKey(t, candidates, excluded, fail)
		if err != nil {
			return nil, err
		}
		advice.KeyPlan = &plan
		if len(dropped) > 0 {
			kept := advice.Recommendations[:0]
			for _, rec := range advice.Recommendations {
				if !dropped[rec.Column] {
					kept = append(kept, rec)
				}
			}
			advice.Recommendations = kept
		}
	}

	a.logger.Debug("table advised",
		zap.String("table", t.Name),
		zap.Int("recommendations", len(advice.Recommendations)),
		zap.Int("issues", len(advice.Issues)))
	return advice, nil
}

// planKey orders the candidate columns and lists every other column of t as
// excluded, in declaration order. A planned column the caller asked to be
// nullable is an issue: it leaves the key and is returned in dropped so its
// recommendation can be removed.
func planKey(t TableInput, candidates []ColumnInput, excluded map[string]string, fail func(error) error) (plan KeyOrderingPlan, dropped map[string]bool, err error) {
	plan = KeyOrderingPlan{Table: t.Name}
	if len(candidates) > 0 {
		inPlan := make(map[string]bool, len(candidates))
		for _, c := range candidates {
			inPlan[c.Profile.Name] = true
		}
		sub := TableInput{Name: t.Name, AppendOnly: t.AppendOnly, Columns: candidates}
		for _, name := range t.SecondaryKeys {
			if inPlan[name] {
				sub.SecondaryKeys = append(sub.SecondaryKeys, name)
			}
		}
		// sub is a validated subset of t, so planning cannot fail.
		if plan, err = PlanKeyOrdering(sub); err != nil {
			return KeyOrderingPlan{}, nil, inTable(err, t.Name)
		}
	}
	for _, ex := range plan.Excluded {
		excluded[ex.Column] = ex.Reason
	}

	hints := make(map[string]ColumnInput, len(candidates))
	for _, c := range candidates {
		hints[c.Profile.Name] = c
	}
	positions := make([]KeyPosition, 0, len(plan.Positions))
	for _, pos := range plan.Positions {
		c := hints[pos.Column]
		if c.Hints.RequestNullable && c.Profile.SemanticRole != RoleKey {
			issue := newError(CodeKeyCannotBeNullable, t.Name, pos.Column,
				"column is part of the clustering key and cannot be nullable")
			if err := fail(issue); err != nil {
				return KeyOrderingPlan{}, nil, err
			}
			if dropped == nil {
				dropped = make(map[string]bool)
			}
			dropped[pos.Column] = true
			excluded[pos.Column] = string(CodeKeyCannotBeNullable)
			continue
		}
		positions = append(positions, pos)
	}
	plan.Positions = positions

	plan.Excluded = nil
	for _, c := range t.Columns {
		if reason, ok := excluded[c.Profile.Name]; ok && !plan.Contains(c.Profile.Name) {
			plan.Excluded = append(plan.Excluded, ExcludedColumn{Column: c.Profile.Name, Reason: reason})
		}
	}
	return plan, dropped, nil
}

// nullableKeyReason returns why a column whose nullability did not resolve
// to NOT NULL stays out of the key, or "".
func nullableKeyReason(d NullabilityDecision) string {
	switch d.Nullability {
	case Nullable:
		return "nullable column"
	case AmbiguousNullability:
		return "nullability needs review"
	}
	return ""
}

// issueReason names the failure that kept a column out of the key.
func issueReason(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return string(e.Code)
	}
	return "no recommendation"
}

func (a *Advisor) adviseColumn(table string, c ColumnInput) (Recommendation, error) {
	p, h := c.Profile, c.Hints
	if err := p.Validate(); err != nil {
		return Recommendation{}, err
	}

	rec := Recommendation{Table: table, Column: p.Name, ValueKind: p.ValueKind, Role: p.SemanticRole}
	if p.ValueKind == KindString {
		dec, err := DecideEncoding(p)
		if err != nil {
			return Recommendation{}, err
		}
		rec.Type = StringType(p, dec)
		rec.Encoding = &dec
		rec.Rationale = dec.Rationale
	} else {
		cls, err := ClassifyType(p, h)
		if err != nil {
			return Recommendation{}, err
		}
		rec.Type = cls.Type
		rec.Rationale = cls.Rationale
	}

	null, err := ResolveNullability(p, h)
	if err != nil {
		return Recommendation{}, err
	}
	rec.Nullability = null
	rec.Rationale = fmt.Sprintf("%s; %s", rec.Rationale, null.Rationale)
	return rec, nil
}

// AdviseAll advises every table concurrently. Results are in input order.
// With FailFast the returned error joins the failures of every table that
// stopped early; those tables have a nil entry.
func (a *Advisor) AdviseAll(ctx context.Context, tables []TableInput) ([]*TableAdvice, error) {
	results := make([]*TableAdvice, len(tables))
	errs := make([]error, len(tables))

	var wg sync.WaitGroup
	for i, t := range tables {
		wg.Add(1)
		go func(i int, t TableInput) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("table %s: %w", t.Name, err)
				return
			}
			results[i], errs[i] = a.AdviseTable(t)
		}(i, t)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return results, err
	}
	a.logger.Info("advice complete", zap.Int("tables", len(tables)))
	return results, nil
}
