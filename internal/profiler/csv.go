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
package profiler

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
)

// DefaultNullTokens are the cell values treated as NULL in sample files.
var DefaultNullTokens = []string{"", "NULL", `\N`}

// CSVOptions configures ProfileCSV.
type CSVOptions struct {
	Table string
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// NullTokens replaces DefaultNullTokens when set.
	NullTokens []string
	// MaxRows stops reading after that many data rows. Zero reads everything.
	MaxRows int
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
}

var fractionalSeconds = regexp.MustCompile(`:\d{2}\.(\d+)`)

// csvColumn accumulates the statistics of one sample column. The not*
// flags record which kinds have been ruled out by some value.
type csvColumn struct {
	name   string
	rows   int64
	nulls  int64
	hashes map[uint64]struct{}

	min, max *big.Int

	notBool, notInt, notFloat, notDate, notDatetime, notJSON bool
	notUUID                                                   bool

	minLen, maxLen int
	fracDigits     int
}

func newCSVColumn(name string) *csvColumn {
	return &csvColumn{name: name, hashes: make(map[uint64]struct{}), minLen: -1}
}

func (c *csvColumn) observe(v string, isNull bool) {
	c.rows++
	if isNull {
		c.nulls++
		return
	}
	c.hashes[murmur3.Sum64([]byte(v))] = struct{}{}

	n := utf8.RuneCountInString(v)
	if c.minLen < 0 || n < c.minLen {
		c.minLen = n
	}
	if n > c.maxLen {
		c.maxLen = n
	}

	if !c.notBool {
		switch strings.ToLower(v) {
		case "true", "false":
		default:
			c.notBool = true
		}
	}
	if !c.notInt {
		if i, ok := new(big.Int).SetString(v, 10); ok {
			if c.min == nil || i.Cmp(c.min) < 0 {
				c.min = i
			}
			if c.max == nil || i.Cmp(c.max) > 0 {
				c.max = i
			}
		} else {
			c.notInt = true
		}
	}
	if !c.notFloat {
		if _, ok := new(big.Float).SetString(v); !ok {
			c.notFloat = true
		}
	}
	if !c.notDate {
		if _, err := time.Parse(time.DateOnly, v); err != nil {
			c.notDate = true
		}
	}
	if !c.notDatetime {
		if parseDateTime(v) {
			if m := fractionalSeconds.FindStringSubmatch(v); m != nil && len(m[1]) > c.fracDigits {
				c.fracDigits = len(m[1])
			}
		} else {
			c.notDatetime = true
		}
	}
	if !c.notJSON {
		t := strings.TrimSpace(v)
		if !(strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")) || !json.Valid([]byte(t)) {
			c.notJSON = true
		}
	}
	if !c.notUUID {
		if _, err := uuid.Parse(v); err != nil {
			c.notUUID = true
		}
	}
}

func parseDateTime(v string) bool {
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// kind picks the narrowest kind every non-null value satisfies.
func (c *csvColumn) kind() advisor.ValueKind {
	switch {
	case c.rows == c.nulls:
		return advisor.KindString
	case !c.notBool:
		return advisor.KindBoolean
	case !c.notInt:
		if c.min.Sign() >= 0 {
			return advisor.KindUnsignedInteger
		}
		return advisor.KindInteger
	case !c.notFloat:
		return advisor.KindFloat
	case !c.notDate:
		return advisor.KindDate
	case !c.notDatetime:
		return advisor.KindDatetime
	case !c.notJSON:
		return advisor.KindJSON
	}
	return advisor.KindString
}

func (c *csvColumn) input() advisor.ColumnInput {
	kind := c.kind()
	p := advisor.ColumnProfile{
		Name:          c.name,
		RowCount:      c.rows,
		NullCount:     c.nulls,
		DistinctCount: int64(len(c.hashes)),
		SemanticRole:  advisor.RoleDimension,
		ValueKind:     kind,
	}
	var h advisor.ColumnHints

	switch kind {
	case advisor.KindInteger, advisor.KindUnsignedInteger:
		p.ObservedMin, p.ObservedMax = c.min, c.max
	case advisor.KindDate:
		h.TimePrecision = advisor.PrecisionDate
	case advisor.KindDatetime:
		h.TimePrecision = precisionForDigits(c.fracDigits)
	case advisor.KindString:
		if c.rows > c.nulls {
			p.IsFixedLength = c.minLen == c.maxLen && c.maxLen > 0
			if p.IsFixedLength {
				p.FixedLength = c.maxLen
			}
			p.HighEntropyID = !c.notUUID
		}
	}
	return advisor.ColumnInput{Profile: p, Hints: h}
}

// ProfileCSV reads a sample file with a header row and profiles every column.
// Distinct values are counted on 64-bit murmur3 hashes.
func ProfileCSV(r io.Reader, opts CSVOptions) (advisor.TableInput, error) {
	if opts.Table == "" {
		return advisor.TableInput{}, &ErrInvalidInput{Msg: "table name is required for sample files"}
	}
	nullTokens := opts.NullTokens
	if len(nullTokens) == 0 {
		nullTokens = DefaultNullTokens
	}
	isNull := make(map[string]bool, len(nullTokens))
	for _, t := range nullTokens {
		isNull[t] = true
	}

	reader := csv.NewReader(r)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return advisor.TableInput{}, &ErrInvalidInput{Msg: "sample file is empty"}
	}
	if err != nil {
		return advisor.TableInput{}, &ErrInvalidInput{Msg: "reading header", Err: err}
	}

	columns := make([]*csvColumn, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if name == "" || seen[name] {
			return advisor.TableInput{}, &ErrInvalidInput{Msg: fmt.Sprintf("invalid or duplicate column name %q in header", name)}
		}
		seen[name] = true
		columns[i] = newCSVColumn(name)
	}

	for rows := 0; opts.MaxRows == 0 || rows < opts.MaxRows; rows++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return advisor.TableInput{}, &ErrInvalidInput{Msg: "reading sample rows", Err: err}
		}
		for i, v := range record {
			columns[i].observe(v, isNull[v])
		}
	}

	input := advisor.TableInput{Name: opts.Table, Columns: make([]advisor.ColumnInput, len(columns))}
	for i, c := range columns {
		input.Columns[i] = c.input()
	}
	return input, nil
}
