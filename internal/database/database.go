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
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
)

// DBAdapter defines the database operations needed by the profiler.
type DBAdapter interface {
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, tableName string) ([]ColumnInfo, error)
	GetPrimaryKeys(ctx context.Context, tableName string) ([]string, error)
	GetColumnStats(ctx context.Context, tableName string, column ColumnInfo, sampleSize int) (*ColumnStats, error)
	ValueKind(dataType string) advisor.ValueKind
	Ping(ctx context.Context) error
	Close() error
	GetConfig() config.DatabaseConfig
}

var _ DBAdapter = (*DB)(nil)

// DB holds the database connection pool and dialect handler.
type DB struct {
	Pool    *sql.DB
	Handler DialectHandler
	Config  config.DatabaseConfig
	Logger  *zap.Logger
}

// ColumnInfo holds basic information about a database column.
type ColumnInfo struct {
	Name     string
	DataType string
	// Catalog type modifiers. They are unset when the dialect reports them
	// inside DataType instead, as in MySQL's "decimal(10,2)".
	NumericPrecision  sql.NullInt64
	NumericScale      sql.NullInt64
	DateTimePrecision sql.NullInt64
}

// ColumnStats is the result of one aggregate scan over a column.
type ColumnStats struct {
	RowCount      int64
	DistinctCount int64
	NullCount     int64
	// Min and Max are the textual extremes of integer columns.
	Min sql.NullString
	Max sql.NullString
	// MinLength and MaxLength are set for text columns.
	MinLength sql.NullInt64
	MaxLength sql.NullInt64
	// Samples are non-null values of text columns, rendered as text.
	Samples []string
}

// DialectHandler hides the SQL differences between database engines.
type DialectHandler interface {
	CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error)
	CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error)
	QuoteIdentifier(name string) string
	ListTables(ctx context.Context, db *DB) ([]string, error)
	ListColumns(ctx context.Context, db *DB, tableName string) ([]ColumnInfo, error)
	GetPrimaryKeys(ctx context.Context, db *DB, tableName string) ([]string, error)
	// ValueKind maps a catalog data type to the advisor value kind.
	ValueKind(dataType string) advisor.ValueKind
	// CastToText renders expr as a text expression.
	CastToText(expr string) string
	// LengthFunction is the character length function name.
	LengthFunction() string
	// SampleQuery selects up to limit non-null values of column as text.
	SampleQuery(tableName, columnName string, limit int) string
}

var (
	dialectHandlers = make(map[string]DialectHandler)
	mu              sync.RWMutex
)

func RegisterDialectHandler(dialect string, handler DialectHandler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := dialectHandlers[dialect]; exists {
		zap.L().Warn("dialect handler is being overwritten", zap.String("dialect", dialect))
	}
	dialectHandlers[dialect] = handler
}

func GetDialectHandler(dialect string) (DialectHandler, error) {
	mu.RLock()
	defer mu.RUnlock()
	handler, ok := dialectHandlers[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}
	return handler, nil
}

// Dialects lists the registered dialect names.
func Dialects() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(dialectHandlers))
	for name := range dialectHandlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func New(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler, err := GetDialectHandler(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	var pool *sql.DB
	if strings.HasPrefix(cfg.Dialect, "cloudsql") {
		pool, err = handler.CreateCloudSQLPool(cfg)
	} else {
		pool, err = handler.CreateStandardPool(cfg)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create database pool for dialect %s: %w", cfg.Dialect, err)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database (ping failed) for dialect %s: %w", cfg.Dialect, err)
	}

	return &DB{
		Pool:    pool,
		Handler: handler,
		Config:  cfg,
		Logger:  logger.Named("database").With(zap.String("dialect", cfg.Dialect)),
	}, nil
}

func (db *DB) GetConfig() config.DatabaseConfig {
	return db.Config
}

func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database connection pool is not initialized")
	}
	return db.Pool.PingContext(ctx)
}

func (db *DB) Close() error {
	if db.Pool != nil {
		return db.Pool.Close()
	}
	db.logger().Warn("attempted to close a nil database connection pool")
	return nil
}

func (db *DB) logger() *zap.Logger {
	if db.Logger == nil {
		return zap.NewNop()
	}
	return db.Logger
}

func (db *DB) ListTables(ctx context.Context) ([]string, error) {
	if db.Handler == nil {
		return nil, fmt.Errorf("dialect handler not initialized")
	}
	return db.Handler.ListTables(ctx, db)
}

func (db *DB) ListColumns(ctx context.Context, tableName string) ([]ColumnInfo, error) {
	if db.Handler == nil {
		return nil, fmt.Errorf("dialect handler not initialized")
	}
	return db.Handler.ListColumns(ctx, db, tableName)
}

func (db *DB) GetPrimaryKeys(ctx context.Context, tableName string) ([]string, error) {
	if db.Handler == nil {
		return nil, fmt.Errorf("dialect handler not initialized")
	}
	return db.Handler.GetPrimaryKeys(ctx, db, tableName)
}

func (db *DB) ValueKind(dataType string) advisor.ValueKind {
	if db.Handler == nil {
		return advisor.KindString
	}
	return db.Handler.ValueKind(dataType)
}

// GetColumnStats runs the aggregate statistics query for one column and,
// for text columns, fetches up to sampleSize sample values.
func (db *DB) GetColumnStats(ctx context.Context, tableName string, column ColumnInfo, sampleSize int) (*ColumnStats, error) {
	if db.Handler == nil {
		return nil, fmt.Errorf("dialect handler not initialized")
	}
	if db.Pool == nil {
		return nil, fmt.Errorf("database connection pool is not initialized")
	}
	kind := db.Handler.ValueKind(column.DataType)

	query := BuildStatsQuery(db.Handler, tableName, column.Name, kind)
	stats := &ColumnStats{}
	err := db.Pool.QueryRowContext(ctx, query).Scan(
		&stats.RowCount, &stats.DistinctCount, &stats.NullCount,
		&stats.Min, &stats.Max, &stats.MinLength, &stats.MaxLength,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to collect statistics for %s.%s: %w", tableName, column.Name, err)
	}

	if kind == advisor.KindString && sampleSize > 0 {
		samples, err := QueryStrings(ctx, db.Pool, db.Handler.SampleQuery(tableName, column.Name, sampleSize))
		if err != nil {
			return nil, fmt.Errorf("failed to sample %s.%s: %w", tableName, column.Name, err)
		}
		stats.Samples = samples
	}

	db.logger().Debug("column statistics collected",
		zap.String("table", tableName),
		zap.String("column", column.Name),
		zap.Int64("rows", stats.RowCount),
		zap.Int64("distinct", stats.DistinctCount),
		zap.Int64("nulls", stats.NullCount))
	return stats, nil
}
