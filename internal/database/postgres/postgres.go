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
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/database"
)

// postgresHandler struct implements database.DialectHandler for PostgreSQL.
type postgresHandler struct{}

var _ database.DialectHandler = (*postgresHandler)(nil)

// CreateCloudSQLPool for PostgreSQL
func (h postgresHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	getenv := func(k string, v string) string {
		if v == "" {
			return os.Getenv(k)
		}
		return v
	}

	dbUser := getenv("user_name", cfg.User)
	dbPwd := getenv("password", cfg.Password)
	dbName := getenv("database_name", cfg.DBName)
	instanceConnectionName := getenv("instance_name", cfg.CloudSQLInstanceConnectionName)
	usePrivate := ""
	if cfg.UsePrivateIP {
		usePrivate = "true"
	}
	usePrivate = getenv("PRIVATE_IP", usePrivate)

	dsn := fmt.Sprintf("user=%s password=%s database=%s", dbUser, dbPwd, dbName)
	pgxConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	var opts []cloudsqlconn.Option
	if usePrivate != "" && strings.ToLower(usePrivate) != "false" && usePrivate != "0" {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	d, err := cloudsqlconn.NewDialer(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	pgxConfig.DialFunc = func(ctx context.Context, network, instance string) (net.Conn, error) {
		return d.Dial(ctx, instanceConnectionName)
	}
	dbURI := stdlib.RegisterConnConfig(pgxConfig)
	dbPool, err := sql.Open("pgx", dbURI)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	return dbPool, nil
}

// CreateStandardPool creates a standard PostgreSQL connection pool
func (h postgresHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	dbPool, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return dbPool, nil
}

// QuoteIdentifier for PostgreSQL
func (h postgresHandler) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// ListTables for PostgreSQL
func (h postgresHandler) ListTables(ctx context.Context, db *database.DB) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_type = 'BASE TABLE'
		ORDER BY table_name;`

	tables, err := database.QueryStrings(ctx, db.Pool, query)
	if err != nil {
		return nil, fmt.Errorf("error querying tables: %w", err)
	}
	return tables, nil
}

// ListColumns for PostgreSQL. data_type carries no modifiers, so precision,
// scale and fractional second digits come from their own catalog columns.
func (h postgresHandler) ListColumns(ctx context.Context, db *database.DB, tableName string) ([]database.ColumnInfo, error) {
	query := `
		SELECT column_name, data_type, numeric_precision, numeric_scale, datetime_precision
		FROM information_schema.columns
		WHERE table_schema = 'public'
		AND table_name = $1
		ORDER BY ordinal_position;`

	columns, err := database.QueryColumns(ctx, db.Pool, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("error querying columns for table %s: %w", tableName, err)
	}
	return columns, nil
}

// GetPrimaryKeys for PostgreSQL returns the primary key columns in key order.
func (h postgresHandler) GetPrimaryKeys(ctx context.Context, db *database.DB, tableName string) ([]string, error) {
	query := `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = 'public'
			AND tc.table_name = $1
		ORDER BY kcu.ordinal_position;`

	keys, err := database.QueryStrings(ctx, db.Pool, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("error querying primary keys for table %s: %w", tableName, err)
	}
	return keys, nil
}

// ValueKind for PostgreSQL. information_schema reports arrays as "ARRAY" and
// enums or domains as "USER-DEFINED".
func (h postgresHandler) ValueKind(dataType string) advisor.ValueKind {
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "uuid", "user-defined", "inet", "cidr", "interval":
		return advisor.KindString
	case "hstore":
		return advisor.KindJSON
	}
	return database.CommonValueKind(dataType)
}

func (h postgresHandler) CastToText(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (h postgresHandler) LengthFunction() string {
	return "LENGTH"
}

func (h postgresHandler) SampleQuery(tableName, columnName string, limit int) string {
	col := h.QuoteIdentifier(columnName)
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
		h.CastToText(col), h.QuoteIdentifier(tableName), col, limit)
}

func init() {
	database.RegisterDialectHandler("postgres", postgresHandler{})
	database.RegisterDialectHandler("cloudsqlpostgres", postgresHandler{})
}
