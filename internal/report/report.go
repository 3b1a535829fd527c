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

// Package report renders advisor results and delivers them to a destination.
package report

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
)

// Report is the rendered view of one advisor run.
type Report struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	GeneratedAt time.Time     `json:"generated_at" yaml:"generated_at"`
	Source      string        `json:"source,omitempty" yaml:"source,omitempty"`
	Tables      []TableReport `json:"tables" yaml:"tables"`
	// Notes are advisory comments on findings that need review. They never
	// change a recommendation.
	Notes []Note `json:"notes,omitempty" yaml:"notes,omitempty"`
}

type TableReport struct {
	Table    string                   `json:"table" yaml:"table"`
	Columns  []ColumnReport           `json:"columns" yaml:"columns"`
	OrderBy  []advisor.KeyPosition    `json:"order_by" yaml:"order_by"`
	Excluded []advisor.ExcludedColumn `json:"excluded_from_key,omitempty" yaml:"excluded_from_key,omitempty"`
	Issues   []Issue                  `json:"issues,omitempty" yaml:"issues,omitempty"`

	// keyPlanned is false when the key planner failed for the table.
	keyPlanned bool
}

type ColumnReport struct {
	Column            string               `json:"column" yaml:"column"`
	ValueKind         advisor.ValueKind    `json:"value_kind" yaml:"value_kind"`
	Role              advisor.SemanticRole `json:"semantic_role" yaml:"semantic_role"`
	Type              string               `json:"type" yaml:"type"`
	Encoding          advisor.Encoding     `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	BenchmarkRequired bool                 `json:"benchmark_required,omitempty" yaml:"benchmark_required,omitempty"`
	Nullability       advisor.Nullability  `json:"nullability" yaml:"nullability"`
	Default           *string              `json:"default,omitempty" yaml:"default,omitempty"`
	NullRatio         float64              `json:"null_ratio" yaml:"null_ratio"`
	NeedsReview       bool                 `json:"needs_review,omitempty" yaml:"needs_review,omitempty"`
	Rationale         string               `json:"rationale" yaml:"rationale"`
}

// Issue is a failure attributed to a table and, usually, a column.
type Issue struct {
	Table   string       `json:"table" yaml:"table"`
	Column  string       `json:"column,omitempty" yaml:"column,omitempty"`
	Code    advisor.Code `json:"code,omitempty" yaml:"code,omitempty"`
	Message string       `json:"message" yaml:"message"`
}

// Note is an advisory comment attached to a column.
type Note struct {
	Table  string `json:"table" yaml:"table"`
	Column string `json:"column" yaml:"column"`
	Text   string `json:"text" yaml:"text"`
}

// New builds a report from advisor output. Nil entries (tables that stopped
// early in fail-fast mode) are skipped.
func New(source string, advice []*advisor.TableAdvice, notes []Note) *Report {
	r := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Source:      source,
		Tables:      make([]TableReport, 0, len(advice)),
		Notes:       notes,
	}
	for _, a := range advice {
		if a == nil {
			continue
		}
		r.Tables = append(r.Tables, tableReport(a))
	}
	sort.SliceStable(r.Notes, func(i, j int) bool {
		if r.Notes[i].Table != r.Notes[j].Table {
			return r.Notes[i].Table < r.Notes[j].Table
		}
		return r.Notes[i].Column < r.Notes[j].Column
	})
	return r
}

func tableReport(a *advisor.TableAdvice) TableReport {
	tr := TableReport{Table: a.Table, Columns: make([]ColumnReport, 0, len(a.Recommendations))}
	for _, rec := range a.Recommendations {
		cr := ColumnReport{
			Column:      rec.Column,
			ValueKind:   rec.ValueKind,
			Role:        rec.Role,
			Type:        rec.Type.String(),
			Nullability: rec.Nullability.Nullability,
			Default:     rec.Nullability.Default,
			NullRatio:   rec.Nullability.NullRatio,
			NeedsReview: rec.NeedsReview(),
			Rationale:   rec.Rationale,
		}
		if rec.Encoding != nil {
			cr.Encoding = rec.Encoding.Encoding
			cr.BenchmarkRequired = rec.Encoding.BenchmarkRequired
		}
		tr.Columns = append(tr.Columns, cr)
	}
	if a.KeyPlan != nil {
		tr.keyPlanned = true
		tr.OrderBy = a.KeyPlan.Positions
		tr.Excluded = a.KeyPlan.Excluded
	}
	for _, err := range a.Issues {
		tr.Issues = append(tr.Issues, issueFor(a.Table, err))
	}
	return tr
}

func issueFor(table string, err error) Issue {
	var ae *advisor.Error
	if errors.As(err, &ae) {
		return Issue{Table: table, Column: ae.Column, Code: ae.Code, Message: ae.Msg}
	}
	return Issue{Table: table, Message: err.Error()}
}

// IssueCount returns the number of issues across all tables.
func (r *Report) IssueCount() int {
	n := 0
	for _, t := range r.Tables {
		n += len(t.Issues)
	}
	return n
}

// ReviewCount returns the number of recommendations that need a human.
func (r *Report) ReviewCount() int {
	n := 0
	for _, t := range r.Tables {
		for _, c := range t.Columns {
			if c.NeedsReview {
				n++
			}
		}
	}
	return n
}

func (r *Report) notesFor(table, column string) []string {
	var out []string
	for _, n := range r.Notes {
		if n.Table == table && n.Column == column {
			out = append(out, n.Text)
		}
	}
	return out
}
