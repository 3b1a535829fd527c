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
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
)

// renderDDL writes one ClickHouse MergeTree CREATE TABLE per table. Findings
// that need a human are written as comments next to their column.
func renderDDL(w io.Writer, r *Report) error {
	ew := &errWriter{w: w}
	ew.printf("-- generated by olap_schema_advisor, run %s\n", r.RunID)
	for _, t := range r.Tables {
		ew.printf("\n")
		for _, is := range t.Issues {
			ew.printf("-- ISSUE %s\n", issueText(is))
		}
		ew.printf("CREATE TABLE %s\n(\n", quoteIdent(t.Table))
		for i, c := range t.Columns {
			sep := ","
			if i == len(t.Columns)-1 {
				sep = ""
			}
			ew.printf("    %s %s%s%s", quoteIdent(c.Column), columnType(c), defaultClause(c), sep)
			if comment := ddlComment(r, t.Table, c); comment != "" {
				ew.printf(" -- %s", comment)
			}
			ew.printf("\n")
		}
		ew.printf(")\nENGINE = MergeTree\n")
		ew.printf("ORDER BY %s;\n", orderByClause(t.OrderBy))
		for _, e := range t.Excluded {
			ew.printf("-- not in ORDER BY: %s (%s)\n", e.Column, e.Reason)
		}
	}
	return ew.err
}

const lowCardinality = "LowCardinality("

// columnType spells the column type with its nullability. Nullable goes
// inside LowCardinality, and JSON and Nested columns can never be Nullable.
func columnType(c ColumnReport) string {
	switch {
	case c.Nullability != advisor.Nullable || !wrapsNullable(c):
		return c.Type
	case strings.HasPrefix(c.Type, lowCardinality) && strings.HasSuffix(c.Type, ")"):
		inner := strings.TrimSuffix(strings.TrimPrefix(c.Type, lowCardinality), ")")
		return fmt.Sprintf("%sNullable(%s))", lowCardinality, inner)
	}
	return fmt.Sprintf("Nullable(%s)", c.Type)
}

func wrapsNullable(c ColumnReport) bool {
	return c.ValueKind != advisor.KindJSON && c.ValueKind != advisor.KindNested
}

// defaultClause emits DEFAULT only for caller-supplied defaults; the type
// default is what the engine fills in anyway.
func defaultClause(c ColumnReport) string {
	if c.Nullability != advisor.NotNullWithDefault || c.Default == nil {
		return ""
	}
	if *c.Default == advisor.TypeDefault(c.ValueKind) {
		return ""
	}
	if c.ValueKind.IsNumeric() || c.ValueKind == advisor.KindBoolean {
		return " DEFAULT " + *c.Default
	}
	return " DEFAULT " + quoteDefault(*c.Default)
}

func ddlComment(r *Report, table string, c ColumnReport) string {
	var parts []string
	if c.Encoding == advisor.EncodingEnum {
		parts = append(parts, "list the enum values")
	}
	if c.NeedsReview {
		parts = append(parts, "REVIEW: "+c.Rationale)
	}
	if c.Nullability == advisor.Nullable && !wrapsNullable(c) {
		parts = append(parts, fmt.Sprintf("REVIEW: %s columns cannot be Nullable; store NULL as an empty value", c.ValueKind))
	}
	for _, n := range r.notesFor(table, c.Column) {
		parts = append(parts, "note: "+n)
	}
	return strings.ReplaceAll(strings.Join(parts, "; "), "\n", " ")
}

func orderByClause(positions []advisor.KeyPosition) string {
	if len(positions) == 0 {
		return "tuple()"
	}
	cols := make([]string, len(positions))
	for i, p := range positions {
		cols[i] = quoteIdent(p.Column)
	}
	return "(" + strings.Join(cols, ", ") + ")"
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}
