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

// Package manifest reads and writes the profile manifest: the serialized form
// of advisor table inputs, produced by "profile" and consumed by "advise".
// Integer bounds are decimal strings so 64-bit ranges survive exactly.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
)

// Version is the manifest format version written by this package.
const Version = 1

type Manifest struct {
	Version int     `yaml:"version"`
	Source  string  `yaml:"source,omitempty"`
	Tables  []Table `yaml:"tables"`
}

type Table struct {
	Name          string   `yaml:"name"`
	AppendOnly    bool     `yaml:"append_only,omitempty"`
	SecondaryKeys []string `yaml:"secondary_keys,omitempty"`
	Columns       []Column `yaml:"columns"`
}

type Column struct {
	Name         string `yaml:"name"`
	ValueKind    string `yaml:"value_kind"`
	SemanticRole string `yaml:"semantic_role,omitempty"`

	RowCount      int64 `yaml:"row_count"`
	DistinctCount int64 `yaml:"distinct_count"`
	NullCount     int64 `yaml:"null_count"`

	ObservedMin string `yaml:"observed_min,omitempty"`
	ObservedMax string `yaml:"observed_max,omitempty"`

	IsFixedLength bool `yaml:"is_fixed_length,omitempty"`
	FixedLength   int  `yaml:"fixed_length,omitempty"`
	IsStableEnum  bool `yaml:"is_stable_enum,omitempty"`
	HighEntropyID bool `yaml:"high_entropy_id,omitempty"`

	UsedInFilter           bool `yaml:"used_in_filter,omitempty"`
	UsedInGroupBy          bool `yaml:"used_in_group_by,omitempty"`
	UsedInOrderByCandidate bool `yaml:"used_in_order_by_candidate,omitempty"`

	Hints *Hints `yaml:"hints,omitempty"`
}

type Hints struct {
	PrecisionSensitive bool     `yaml:"precision_sensitive,omitempty"`
	DecimalPrecision   int      `yaml:"decimal_precision,omitempty"`
	DecimalScale       int      `yaml:"decimal_scale,omitempty"`
	TimePrecision      string   `yaml:"time_precision,omitempty"`
	RequestNullable    bool     `yaml:"request_nullable,omitempty"`
	Default            *string  `yaml:"default,omitempty"`
	JSONSubpaths       []string `yaml:"json_subpaths,omitempty"`
}

func (h *Hints) empty() bool {
	return !h.PrecisionSensitive && h.DecimalPrecision == 0 && h.DecimalScale == 0 &&
		h.TimePrecision == "" && !h.RequestNullable && h.Default == nil && len(h.JSONSubpaths) == 0
}

// FromTableInputs builds a manifest from advisor inputs.
func FromTableInputs(source string, tables []advisor.TableInput) *Manifest {
	m := &Manifest{Version: Version, Source: source, Tables: make([]Table, 0, len(tables))}
	for _, t := range tables {
		mt := Table{
			Name:          t.Name,
			AppendOnly:    t.AppendOnly,
			SecondaryKeys: t.SecondaryKeys,
			Columns:       make([]Column, 0, len(t.Columns)),
		}
		for _, c := range t.Columns {
			mt.Columns = append(mt.Columns, fromColumnInput(c))
		}
		m.Tables = append(m.Tables, mt)
	}
	return m
}

func fromColumnInput(c advisor.ColumnInput) Column {
	p := c.Profile
	col := Column{
		Name:                   p.Name,
		ValueKind:              string(p.ValueKind),
		SemanticRole:           string(p.SemanticRole),
		RowCount:               p.RowCount,
		DistinctCount:          p.DistinctCount,
		NullCount:              p.NullCount,
		IsFixedLength:          p.IsFixedLength,
		FixedLength:            p.FixedLength,
		IsStableEnum:           p.IsStableEnum,
		HighEntropyID:          p.HighEntropyID,
		UsedInFilter:           p.UsedInFilter,
		UsedInGroupBy:          p.UsedInGroupBy,
		UsedInOrderByCandidate: p.UsedInOrderByCandidate,
	}
	if p.ObservedMin != nil {
		col.ObservedMin = p.ObservedMin.String()
	}
	if p.ObservedMax != nil {
		col.ObservedMax = p.ObservedMax.String()
	}
	h := &Hints{
		PrecisionSensitive: c.Hints.PrecisionSensitive,
		DecimalPrecision:   c.Hints.DecimalPrecision,
		DecimalScale:       c.Hints.DecimalScale,
		TimePrecision:      string(c.Hints.TimePrecision),
		RequestNullable:    c.Hints.RequestNullable,
		Default:            c.Hints.Default,
		JSONSubpaths:       c.Hints.JSONSubpaths,
	}
	if !h.empty() {
		col.Hints = h
	}
	return col
}

// TableInputs converts the manifest back to advisor inputs. A column without
// a semantic role is a dimension.
func (m *Manifest) TableInputs() ([]advisor.TableInput, error) {
	out := make([]advisor.TableInput, 0, len(m.Tables))
	for _, t := range m.Tables {
		in := advisor.TableInput{
			Name:          t.Name,
			AppendOnly:    t.AppendOnly,
			SecondaryKeys: t.SecondaryKeys,
			Columns:       make([]advisor.ColumnInput, 0, len(t.Columns)),
		}
		for _, c := range t.Columns {
			ci, err := c.columnInput()
			if err != nil {
				return nil, fmt.Errorf("table %s column %s: %w", t.Name, c.Name, err)
			}
			in.Columns = append(in.Columns, ci)
		}
		out = append(out, in)
	}
	return out, nil
}

func (c Column) columnInput() (advisor.ColumnInput, error) {
	role := advisor.SemanticRole(c.SemanticRole)
	if role == "" {
		role = advisor.RoleDimension
	}
	p := advisor.ColumnProfile{
		Name:                   c.Name,
		ValueKind:              advisor.ValueKind(c.ValueKind),
		SemanticRole:           role,
		RowCount:               c.RowCount,
		DistinctCount:          c.DistinctCount,
		NullCount:              c.NullCount,
		IsFixedLength:          c.IsFixedLength,
		FixedLength:            c.FixedLength,
		IsStableEnum:           c.IsStableEnum,
		HighEntropyID:          c.HighEntropyID,
		UsedInFilter:           c.UsedInFilter,
		UsedInGroupBy:          c.UsedInGroupBy,
		UsedInOrderByCandidate: c.UsedInOrderByCandidate,
	}
	var err error
	if p.ObservedMin, err = parseBound("observed_min", c.ObservedMin); err != nil {
		return advisor.ColumnInput{}, err
	}
	if p.ObservedMax, err = parseBound("observed_max", c.ObservedMax); err != nil {
		return advisor.ColumnInput{}, err
	}

	var h advisor.ColumnHints
	if c.Hints != nil {
		if tp := advisor.TimePrecision(c.Hints.TimePrecision); tp != "" && !tp.Valid() {
			return advisor.ColumnInput{}, fmt.Errorf("invalid time_precision %q: want date, second, millisecond, microsecond or nanosecond", tp)
		}
		h = advisor.ColumnHints{
			PrecisionSensitive: c.Hints.PrecisionSensitive,
			DecimalPrecision:   c.Hints.DecimalPrecision,
			DecimalScale:       c.Hints.DecimalScale,
			TimePrecision:      advisor.TimePrecision(c.Hints.TimePrecision),
			RequestNullable:    c.Hints.RequestNullable,
			Default:            c.Hints.Default,
			JSONSubpaths:       c.Hints.JSONSubpaths,
		}
	}
	return advisor.ColumnInput{Profile: p, Hints: h}, nil
}

func parseBound(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s %q is not an integer", field, s)
	}
	return v, nil
}

// Read decodes a manifest. JSON documents are accepted since YAML is a
// superset of JSON. Unknown fields are rejected.
func Read(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	m := &Manifest{}
	if err := dec.Decode(m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest is empty")
		}
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if m.Version == 0 {
		m.Version = Version
	}
	if m.Version != Version {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return m, nil
}

// ReadFile reads a manifest from path.
func ReadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Write encodes m as YAML.
func Write(w io.Writer, m *Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return enc.Close()
}
