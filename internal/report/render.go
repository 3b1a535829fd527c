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
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// Renderer writes a report in one format.
type Renderer func(w io.Writer, r *Report) error

var renderers = map[string]Renderer{
	"text": renderText,
	"json": renderJSON,
	"yaml": renderYAML,
	"ddl":  renderDDL,
}

// Formats lists the supported output formats.
func Formats() []string {
	names := make([]string, 0, len(renderers))
	for name := range renderers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckFormat returns an error naming the supported formats when format is
// not one of them.
func CheckFormat(format string) error {
	if _, ok := renderers[strings.ToLower(format)]; !ok {
		return fmt.Errorf("unsupported report format %q (supported: %s)", format, strings.Join(Formats(), ", "))
	}
	return nil
}

// Render writes r to w in the given format.
func Render(w io.Writer, r *Report, format string) error {
	if err := CheckFormat(format); err != nil {
		return err
	}
	return renderers[strings.ToLower(format)](w, r)
}

// ContentType returns the MIME type for a format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "json":
		return "application/json"
	case "yaml":
		return "application/yaml"
	case "ddl":
		return "application/sql"
	}
	return "text/plain; charset=utf-8"
}

func renderJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func renderYAML(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

var (
	headerColor = color.New(color.Bold)
	keyColor    = color.New(color.FgCyan)
	reviewColor = color.New(color.FgYellow, color.Bold)
	issueColor  = color.New(color.FgRed, color.Bold)
	noteColor   = color.New(color.FgMagenta)
)

func renderText(w io.Writer, r *Report) error {
	ew := &errWriter{w: w}
	for i, t := range r.Tables {
		if i > 0 {
			ew.printf("\n")
		}
		ew.color(headerColor, "--- Table: %s ---\n", t.Table)
		for _, c := range t.Columns {
			ew.printf("  %-24s %-26s %s", c.Column, c.Type, c.Nullability)
			if c.Default != nil {
				ew.printf(" DEFAULT %s", quoteDefault(*c.Default))
			}
			ew.printf("\n")
			if c.NeedsReview {
				ew.color(reviewColor, "    ! needs review: %s\n", c.Rationale)
			} else {
				ew.printf("    %s\n", c.Rationale)
			}
			for _, note := range r.notesFor(t.Table, c.Column) {
				ew.color(noteColor, "    note: %s\n", note)
			}
		}
		if t.keyPlanned || len(t.OrderBy) > 0 {
			cols := make([]string, len(t.OrderBy))
			for i, p := range t.OrderBy {
				cols[i] = p.Column
			}
			ew.color(keyColor, "  ORDER BY (%s)\n", strings.Join(cols, ", "))
			for _, p := range t.OrderBy {
				ew.printf("    %d. %s: %s\n", p.Rule, p.Column, p.Rationale)
			}
			for _, e := range t.Excluded {
				ew.printf("    excluded %s: %s\n", e.Column, e.Reason)
			}
		}
		for _, is := range t.Issues {
			ew.color(issueColor, "  ✗ %s\n", issueText(is))
		}
	}
	ew.printf("\n%d table(s), %d recommendation(s) need review, %d issue(s)\n",
		len(r.Tables), r.ReviewCount(), r.IssueCount())
	return ew.err
}

func issueText(is Issue) string {
	var b strings.Builder
	if is.Code != "" {
		b.WriteString(string(is.Code))
		b.WriteString(" ")
	}
	if is.Column != "" {
		fmt.Fprintf(&b, "Column[%s.%s]: ", is.Table, is.Column)
	} else {
		fmt.Fprintf(&b, "Table[%s]: ", is.Table)
	}
	b.WriteString(is.Message)
	return b.String()
}

func quoteDefault(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// errWriter keeps the first write error so renderers can write freely.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func (e *errWriter) color(c *color.Color, format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = c.Fprintf(e.w, format, args...)
}
