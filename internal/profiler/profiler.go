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

// Package profiler turns live tables and sample files into advisor inputs.
package profiler

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/database"
)

// Options configures a Service.
type Options struct {
	// SampleSize is the number of values fetched per text column for
	// identifier detection. Zero disables sampling.
	SampleSize     int
	MaxConcurrency int
	// QueryTimeout bounds each statistics query. Zero means no bound.
	QueryTimeout time.Duration
	Retry        RetryOptions
	Logger       *zap.Logger
}

// OptionsFromConfig maps the profiler config section to Options.
func OptionsFromConfig(cfg config.ProfilerConfig, logger *zap.Logger) Options {
	return Options{
		SampleSize:     cfg.SampleSize,
		MaxConcurrency: cfg.MaxConcurrency,
		QueryTimeout:   cfg.QueryTimeout,
		Retry:          RetryOptionsFromConfig(cfg),
		Logger:         logger,
	}
}

type Service struct {
	dbAdapter database.DBAdapter
	opts      Options
	logger    *zap.Logger
}

func NewService(db database.DBAdapter, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryOptions
	}
	return &Service{
		dbAdapter: db,
		opts:      opts,
		logger:    logger.Named("profiler"),
	}
}

// ProfileParams selects what to profile.
type ProfileParams struct {
	// TableFilters maps table names to the columns to keep. An empty map
	// selects every table and an empty column list selects every column.
	TableFilters map[string][]string
	// AppendOnly marks every profiled table as append-only.
	AppendOnly bool
}

// ProfileTables collects statistics for every selected table. Tables are
// returned sorted by name and columns in declaration order.
func (s *Service) ProfileTables(ctx context.Context, params ProfileParams) ([]advisor.TableInput, error) {
	startTime := time.Now()
	s.logger.Info("starting statistics collection")

	tables, err := withRetry(ctx, s.logger, s.opts.Retry, func(ctx context.Context) ([]string, error) {
		tables, err := s.dbAdapter.ListTables(ctx)
		return tables, classify("list tables", err)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	filteredTables := filterTables(tables, params.TableFilters)
	if len(filteredTables) == 0 {
		s.logger.Info("no tables match the provided filters (--tables)")
		return []advisor.TableInput{}, nil
	}

	var (
		results      []advisor.TableInput
		wg           sync.WaitGroup
		mu           sync.Mutex
		errorChannel = make(chan error, len(filteredTables))
		sem          = make(chan struct{}, s.opts.MaxConcurrency)
	)

	s.logger.Info("processing filtered tables", zap.Int("tables", len(filteredTables)))

	for _, tableName := range filteredTables {
		wg.Add(1)
		go func(table string) {
			defer wg.Done()
			input, err := s.profileTable(ctx, table, params.TableFilters[table], sem)
			if err != nil {
				s.logger.Error("failed to profile table", zap.String("table", table), zap.Error(err))
				errorChannel <- fmt.Errorf("Table[%s]: %w", table, err)
				return
			}
			input.AppendOnly = params.AppendOnly
			mu.Lock()
			results = append(results, input)
			mu.Unlock()
		}(tableName)
	}

	wg.Wait()
	close(errorChannel)

	var allErrors []error
	for err := range errorChannel {
		allErrors = append(allErrors, err)
	}
	if len(allErrors) > 0 {
		errorMessages := make([]string, len(allErrors))
		for i, e := range allErrors {
			errorMessages[i] = e.Error()
		}
		sort.Strings(errorMessages)
		return nil, fmt.Errorf("encountered %d error(s) during profiling:\n- %s",
			len(allErrors), strings.Join(errorMessages, "\n- "))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	s.logger.Info("statistics collection completed",
		zap.Duration("elapsed", time.Since(startTime)),
		zap.Int("tables", len(results)))
	return results, nil
}

func (s *Service) profileTable(ctx context.Context, table string, columnFilter []string, sem chan struct{}) (advisor.TableInput, error) {
	logger := s.logger.With(zap.String("table", table))

	columnInfos, err := withRetry(ctx, logger, s.opts.Retry, func(ctx context.Context) ([]database.ColumnInfo, error) {
		cols, err := s.dbAdapter.ListColumns(ctx, table)
		return cols, classify("list columns", err)
	})
	if err != nil {
		return advisor.TableInput{}, err
	}
	keys, err := withRetry(ctx, logger, s.opts.Retry, func(ctx context.Context) ([]string, error) {
		keys, err := s.dbAdapter.GetPrimaryKeys(ctx, table)
		return keys, classify("get primary keys", err)
	})
	if err != nil {
		return advisor.TableInput{}, err
	}
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	filtered := filterColumns(columnInfos, columnFilter)
	columns := make([]advisor.ColumnInput, len(filtered))
	errs := make([]error, len(filtered))

	var colWg sync.WaitGroup
	for i, colInfo := range filtered {
		colWg.Add(1)
		go func(i int, ci database.ColumnInfo) {
			defer colWg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			col, err := s.profileColumn(ctx, table, ci, isKey[ci.Name])
			if err != nil {
				logger.Error("failed to collect column statistics", zap.String("column", ci.Name), zap.Error(err))
				errs[i] = fmt.Errorf("Column[%s.%s]: %w", table, ci.Name, err)
				return
			}
			columns[i] = col
		}(i, colInfo)
	}
	colWg.Wait()

	for _, err := range errs {
		if err != nil {
			return advisor.TableInput{}, err
		}
	}
	logger.Debug("table profiled", zap.Int("columns", len(columns)))
	return advisor.TableInput{Name: table, Columns: columns}, nil
}

func (s *Service) profileColumn(ctx context.Context, table string, ci database.ColumnInfo, isKey bool) (advisor.ColumnInput, error) {
	kind := s.dbAdapter.ValueKind(ci.DataType)
	stats, err := withRetry(ctx, s.logger, s.opts.Retry, func(ctx context.Context) (*database.ColumnStats, error) {
		if s.opts.QueryTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
			defer cancel()
		}
		stats, err := s.dbAdapter.GetColumnStats(ctx, table, ci, s.opts.SampleSize)
		return stats, classify("collect column statistics", err)
	})
	if err != nil {
		return advisor.ColumnInput{}, err
	}
	return buildColumn(ci, kind, stats, isKey, s.logger), nil
}

// buildColumn converts raw statistics into a profile plus the hints that can
// be read off the declared data type.
func buildColumn(ci database.ColumnInfo, kind advisor.ValueKind, stats *database.ColumnStats, isKey bool, logger *zap.Logger) advisor.ColumnInput {
	p := advisor.ColumnProfile{
		Name:          ci.Name,
		RowCount:      stats.RowCount,
		DistinctCount: stats.DistinctCount,
		NullCount:     stats.NullCount,
		SemanticRole:  advisor.RoleDimension,
		ValueKind:     kind,
	}
	if isKey {
		p.SemanticRole = advisor.RoleKey
	}

	if kind == advisor.KindInteger || kind == advisor.KindUnsignedInteger {
		p.ObservedMin = parseBound(stats.Min.String, stats.Min.Valid, ci.Name, logger)
		p.ObservedMax = parseBound(stats.Max.String, stats.Max.Valid, ci.Name, logger)
	}

	if stats.MinLength.Valid && stats.MaxLength.Valid &&
		stats.MinLength.Int64 == stats.MaxLength.Int64 && stats.MaxLength.Int64 > 0 {
		p.IsFixedLength = true
		p.FixedLength = int(stats.MaxLength.Int64)
	}

	if kind == advisor.KindString && looksLikeIdentifiers(stats.Samples) {
		p.HighEntropyID = true
	}

	return advisor.ColumnInput{Profile: p, Hints: hintsFromColumn(ci, kind)}
}

func parseBound(s string, valid bool, column string, logger *zap.Logger) *big.Int {
	if !valid {
		return nil
	}
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		logger.Warn("ignoring non-integer bound", zap.String("column", column), zap.String("value", s))
		return nil
	}
	return v
}

// looksLikeIdentifiers reports whether every sample is UUID shaped.
func looksLikeIdentifiers(samples []string) bool {
	if len(samples) == 0 {
		return false
	}
	for _, s := range samples {
		if _, err := uuid.Parse(strings.TrimSpace(s)); err != nil {
			return false
		}
	}
	return true
}

var typeModifiers = regexp.MustCompile(`\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)`)

// hintsFromColumn reads decimal precision/scale and fractional second digits
// for a column. Catalog modifiers win; otherwise they are parsed from
// declarations such as "numeric(10,2)" or "datetime(3)".
func hintsFromColumn(ci database.ColumnInfo, kind advisor.ValueKind) advisor.ColumnHints {
	var h advisor.ColumnHints
	m := typeModifiers.FindStringSubmatch(ci.DataType)
	switch kind {
	case advisor.KindDecimal:
		switch {
		case ci.NumericPrecision.Valid:
			h.DecimalPrecision = int(ci.NumericPrecision.Int64)
			h.DecimalScale = int(ci.NumericScale.Int64)
		case m != nil:
			h.DecimalPrecision, _ = strconv.Atoi(m[1])
			if m[2] != "" {
				h.DecimalScale, _ = strconv.Atoi(m[2])
			}
		}
	case advisor.KindDate:
		h.TimePrecision = advisor.PrecisionDate
	case advisor.KindDatetime:
		digits := 0
		switch {
		case ci.DateTimePrecision.Valid:
			digits = int(ci.DateTimePrecision.Int64)
		case m != nil:
			digits, _ = strconv.Atoi(m[1])
		}
		h.TimePrecision = precisionForDigits(digits)
	}
	return h
}

func precisionForDigits(digits int) advisor.TimePrecision {
	switch {
	case digits <= 0:
		return advisor.PrecisionSecond
	case digits <= 3:
		return advisor.PrecisionMillisecond
	case digits <= 6:
		return advisor.PrecisionMicrosecond
	}
	return advisor.PrecisionNanosecond
}

func filterTables(allTables []string, tableFilters map[string][]string) []string {
	if len(tableFilters) == 0 {
		out := append([]string(nil), allTables...)
		sort.Strings(out)
		return out
	}
	filtered := make([]string, 0, len(tableFilters))
	for _, table := range allTables {
		if _, ok := tableFilters[table]; ok {
			filtered = append(filtered, table)
		}
	}
	sort.Strings(filtered)
	return filtered
}

// filterColumns keeps declaration order, which the key planner uses to
// break ties.
func filterColumns(allColumns []database.ColumnInfo, columnFilter []string) []database.ColumnInfo {
	if len(columnFilter) == 0 {
		return allColumns
	}
	allowed := make(map[string]bool, len(columnFilter))
	for _, colName := range columnFilter {
		allowed[colName] = true
	}
	filtered := make([]database.ColumnInfo, 0, len(columnFilter))
	for _, colInfo := range allColumns {
		if allowed[colInfo.Name] {
			filtered = append(filtered, colInfo)
		}
	}
	return filtered
}
