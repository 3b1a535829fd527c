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

// Package usage derives per-column query usage (filtering, grouping and
// ordering) from a log of SQL statements. It is a keyword scanner, not a SQL
// parser: it only needs to find which identifiers appear in which clause.
package usage

import (
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/utils"
)

// ColumnUsage records how queries use one column.
type ColumnUsage struct {
	Filter  int `json:"filter" yaml:"filter"`
	GroupBy int `json:"group_by" yaml:"group_by"`
	OrderBy int `json:"order_by" yaml:"order_by"`
}

// Usage maps lower-cased table names to lower-cased column names.
type Usage map[string]map[string]*ColumnUsage

func (u Usage) column(table, column string) *ColumnUsage {
	cols, ok := u[table]
	if !ok {
		cols = make(map[string]*ColumnUsage)
		u[table] = cols
	}
	c, ok := cols[column]
	if !ok {
		c = &ColumnUsage{}
		cols[column] = c
	}
	return c
}

// Lookup returns the usage recorded for table.column, ignoring case.
func (u Usage) Lookup(table, column string) (ColumnUsage, bool) {
	c, ok := u[strings.ToLower(table)][strings.ToLower(column)]
	if !ok {
		return ColumnUsage{}, false
	}
	return *c, true
}

// Tables lists the tables with recorded usage, sorted.
func (u Usage) Tables() []string {
	out := make([]string, 0, len(u))
	for t := range u {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ExtractFile reads a query log and extracts usage from every statement.
func ExtractFile(path string, logger *zap.Logger) (Usage, error) {
	statements, err := utils.ReadSQLStatementsFromFile(path)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Named("usage").Info("query log read", zap.String("path", path), zap.Int("statements", len(statements)))
	}
	return Extract(statements), nil
}

// Extract scans statements and counts, per table and column, how many
// statements reference the column in a filtering, grouping or ordering
// clause. A statement counts at most once per column and clause.
func Extract(statements []string) Usage {
	u := make(Usage)
	for _, stmt := range statements {
		extractStatement(u, stmt)
	}
	return u
}

type clause int

const (
	clauseNone clause = iota
	clauseSelect
	clauseFrom
	clauseFilter
	clauseGroupBy
	clauseOrderBy
)

type reference struct {
	qualifier string
	column    string
	clause    clause
}

var keywords = map[string]bool{
	"select": true, "from": true, "where": true, "prewhere": true, "having": true,
	"join": true, "inner": true, "left": true, "right": true, "full": true, "outer": true,
	"cross": true, "on": true, "using": true, "group": true, "order": true, "by": true,
	"limit": true, "offset": true, "union": true, "intersect": true, "except": true,
	"all": true, "distinct": true, "as": true, "and": true, "or": true, "not": true,
	"in": true, "is": true, "null": true, "like": true, "ilike": true, "between": true,
	"case": true, "when": true, "then": true, "else": true, "end": true, "true": true,
	"false": true, "exists": true, "interval": true, "asc": true, "desc": true,
	"nulls": true, "first": true, "last": true, "with": true, "settings": true,
	"format": true, "final": true, "sample": true, "array": true, "global": true,
	"any": true, "some": true, "semi": true, "anti": true, "asof": true, "rollup": true,
	"cube": true, "totals": true, "lateral": true, "natural": true, "window": true,
	"over": true, "partition": true, "rows": true, "range": true, "fill": true,
}

// clauseEnders close the current clause without opening one we track.
var clauseEnders = map[string]bool{
	"limit": true, "offset": true, "union": true, "intersect": true, "except": true,
	"settings": true, "format": true, "window": true,
}

func extractStatement(u Usage, stmt string) {
	tokens := tokenize(stmt)

	var (
		refs    []reference
		tables  = make(map[string]bool)
		aliases = make(map[string]string)
		current = clauseNone
		stack   []clause
		// calls marks, per open parenthesis, whether it holds function
		// arguments, where FROM is syntax as in EXTRACT(YEAR FROM ts).
		calls []bool
		// expectTable is set right after FROM, JOIN or a comma in FROM.
		expectTable bool
		// lastTable is the table an alias would name.
		lastTable string
	)

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		lower := strings.ToLower(tok.text)
		next := ""
		if i+1 < len(tokens) {
			next = strings.ToLower(tokens[i+1].text)
		}

		if tok.kind == tokenPunct {
			switch tok.text {
			case "(":
				stack = append(stack, current)
				calls = append(calls, i > 0 && isCallee(tokens[i-1]))
			case ")":
				if n := len(stack); n > 0 {
					current = stack[n-1]
					stack = stack[:n-1]
					calls = calls[:n-1]
				}
				expectTable = false
			case ",":
				if current == clauseFrom {
					expectTable = true
				}
			}
			continue
		}

		if tok.kind == tokenWord && !tok.quoted && keywords[lower] {
			if lower == "from" && len(calls) > 0 && calls[len(calls)-1] {
				continue
			}
			switch {
			case lower == "select":
				current = clauseSelect
			case lower == "from" || lower == "join":
				current = clauseFrom
				expectTable = true
				continue
			case lower == "where" || lower == "prewhere" || lower == "having" || lower == "on" || lower == "using":
				current = clauseFilter
			case lower == "group" && next == "by":
				current = clauseGroupBy
				i++
			case lower == "order" && next == "by":
				current = clauseOrderBy
				i++
			case clauseEnders[lower]:
				current = clauseNone
			}
			expectTable = false
			if lower != "as" {
				lastTable = ""
			}
			continue
		}

		if tok.kind != tokenWord {
			continue
		}
		// Function calls and typed literals such as DATE '2025-01-01'.
		if next == "(" && !tok.quoted {
			continue
		}
		if i+1 < len(tokens) && tokens[i+1].kind == tokenOther && tokens[i+1].text == "'" {
			continue
		}

		parts := splitQualified(tok.text)
		name := strings.ToLower(parts[len(parts)-1])

		if current == clauseFrom {
			if expectTable {
				tables[name] = true
				lastTable = name
				expectTable = false
			} else if lastTable != "" {
				aliases[name] = lastTable
				lastTable = ""
			}
			continue
		}

		ref := reference{column: name, clause: current}
		if len(parts) > 1 {
			ref.qualifier = strings.ToLower(parts[len(parts)-2])
		}
		refs = append(refs, ref)
	}

	counted := make(map[string]bool)
	mark := func(table string, r reference) {
		key := table + "\x00" + r.column + "\x00" + string(rune('0'+int(r.clause)))
		if counted[key] {
			return
		}
		counted[key] = true
		c := u.column(table, r.column)
		switch r.clause {
		case clauseFilter:
			c.Filter++
		case clauseGroupBy:
			c.GroupBy++
		case clauseOrderBy:
			c.OrderBy++
		}
	}

	for _, r := range refs {
		if r.clause != clauseFilter && r.clause != clauseGroupBy && r.clause != clauseOrderBy {
			continue
		}
		if r.qualifier != "" {
			table := r.qualifier
			if t, ok := aliases[table]; ok {
				table = t
			}
			if tables[table] {
				mark(table, r)
			}
			continue
		}
		for table := range tables {
			mark(table, r)
		}
	}
}

// isCallee reports whether tok names a function when followed by "(".
func isCallee(tok token) bool {
	return tok.kind == tokenWord && !tok.quoted && !keywords[strings.ToLower(tok.text)]
}

// Unprofiled lists the tables with recorded usage that are missing from
// tables, sorted.
func (u Usage) Unprofiled(tables []advisor.TableInput) []string {
	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		known[strings.ToLower(t.Name)] = true
	}
	var out []string
	for _, t := range u.Tables() {
		if !known[t] {
			out = append(out, t)
		}
	}
	return out
}

// Apply returns copies of tables with usage flags set from u. Existing flags
// are kept; usage only ever adds signals.
func (u Usage) Apply(tables []advisor.TableInput) []advisor.TableInput {
	out := make([]advisor.TableInput, len(tables))
	for i, t := range tables {
		cp := t
		cp.Columns = make([]advisor.ColumnInput, len(t.Columns))
		for j, c := range t.Columns {
			if cu, ok := u.Lookup(t.Name, c.Profile.Name); ok {
				c.Profile.UsedInFilter = c.Profile.UsedInFilter || cu.Filter > 0
				c.Profile.UsedInGroupBy = c.Profile.UsedInGroupBy || cu.GroupBy > 0
				c.Profile.UsedInOrderByCandidate = c.Profile.UsedInOrderByCandidate || cu.OrderBy > 0
			}
			cp.Columns[j] = c
		}
		out[i] = cp
	}
	return out
}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenPunct
	tokenOther
)

type token struct {
	kind   tokenKind
	text   string
	quoted bool
}

// tokenize splits a statement into words (identifiers and keywords, with
// dotted qualification kept together), parentheses and commas. String
// literals, numbers, operators and comments are dropped or reduced to
// tokenOther.
func tokenize(s string) []token {
	var tokens []token
	r := []rune(s)
	n := len(r)

	for i := 0; i < n; {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '-' && i+1 < n && r[i+1] == '-':
			for i < n && r[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && r[i+1] == '*':
			i += 2
			for i < n && !(r[i] == '*' && i+1 < n && r[i+1] == '/') {
				i++
			}
			i += 2
		case c == '\'':
			i++
			for i < n {
				if r[i] == '\'' {
					if i+1 < n && r[i+1] == '\'' {
						i += 2
						continue
					}
					break
				}
				i++
			}
			i++
			tokens = append(tokens, token{kind: tokenOther, text: "'"})
		case c == '(' || c == ')' || c == ',':
			tokens = append(tokens, token{kind: tokenPunct, text: string(c)})
			i++
		case unicode.IsDigit(c):
			for i < n && (isIdentPart(r[i]) || r[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokenOther, text: "0"})
		case isIdentStart(c) || c == '"' || c == '`' || c == '[':
			start := i
			quoted := false
		scan:
			for i < n {
				switch {
				case r[i] == '"' || r[i] == '`' || r[i] == '[':
					closer := r[i]
					if closer == '[' {
						closer = ']'
					}
					quoted = true
					i++
					for i < n && r[i] != closer {
						i++
					}
					i++
				case isIdentPart(r[i]):
					for i < n && isIdentPart(r[i]) {
						i++
					}
				default:
					break scan
				}
				if i < n && r[i] == '.' {
					i++
					continue
				}
				break
			}
			if i > n {
				i = n
			}
			tokens = append(tokens, token{kind: tokenWord, text: string(r[start:i]), quoted: quoted})
		default:
			tokens = append(tokens, token{kind: tokenOther, text: string(c)})
			i++
		}
	}
	return tokens
}

func isIdentStart(c rune) bool {
	return c == '_' || unicode.IsLetter(c)
}

func isIdentPart(c rune) bool {
	return c == '_' || c == '$' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

// splitQualified splits a.b."c" into its unquoted parts.
func splitQualified(s string) []string {
	var (
		parts   []string
		current strings.Builder
		closer  rune
	)
	for _, c := range s {
		switch {
		case closer != 0:
			if c == closer {
				closer = 0
				continue
			}
			current.WriteRune(c)
		case c == '"' || c == '`':
			closer = c
		case c == '[':
			closer = ']'
		case c == '.':
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(c)
		}
	}
	return append(parts, current.String())
}
