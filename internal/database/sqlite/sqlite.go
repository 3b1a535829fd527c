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

// Package sqlite profiles local SQLite files. The database name is the file
// path; host, port and credentials are ignored.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/database"
)

type sqliteHandler struct{}

var _ database.DialectHandler = (*sqliteHandler)(nil)

func (h sqliteHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	return nil, fmt.Errorf("sqlite has no Cloud SQL variant")
}

// CreateStandardPool opens the file read-only.
func (h sqliteHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DBName == "" {
		return nil, fmt.Errorf("sqlite requires a database file path")
	}
	dbPool, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", cfg.DBName))
	if err != nil {
		return nil, fmt.Errorf("sql.Open (sqlite): %w", err)
	}
	return dbPool, nil
}

func (h sqliteHandler) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (h sqliteHandler) ListTables(ctx context.Context, db *database.DB) ([]string, error) {
	query := "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	tables, err := database.QueryStrings(ctx, db.Pool, query)
	if err != nil {
		return nil, fmt.Errorf("error querying tables: %w", err)
	}
	return tables, nil
}

func (h sqliteHandler) ListColumns(ctx context.Context, db *database.DB, tableName string) ([]database.ColumnInfo, error) {
	query := "SELECT name, type FROM pragma_table_info(?) ORDER BY cid"
	columns, err := database.QueryColumns(ctx, db.Pool, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("error querying columns for table %s: %w", tableName, err)
	}
	return columns, nil
}

func (h sqliteHandler) GetPrimaryKeys(ctx context.Context, db *database.DB, tableName string) ([]string, error) {
	query := "SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk"
	keys, err := database.QueryStrings(ctx, db.Pool, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("error querying primary keys for table %s: %w", tableName, err)
	}
	return keys, nil
}

// ValueKind maps declared types with the common names first and then the
// SQLite type affinity rules.
func (h sqliteHandler) ValueKind(dataType string) advisor.ValueKind {
	if kind := database.CommonValueKind(dataType); kind != advisor.KindString {
		return kind
	}
	t := strings.ToUpper(dataType)
	switch {
	case strings.Contains(t, "INT"):
		return advisor.KindInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return advisor.KindString
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return advisor.KindFloat
	}
	return advisor.KindString
}

func (h sqliteHandler) CastToText(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (h sqliteHandler) LengthFunction() string {
	return "LENGTH"
}

func (h sqliteHandler) SampleQuery(tableName, columnName string, limit int) string {
	col := h.QuoteIdentifier(columnName)
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
		h.CastToText(col), h.QuoteIdentifier(tableName), col, limit)
}

func init() {
	database.RegisterDialectHandler("sqlite", sqliteHandler{})
}
