package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
)

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// BuildStatsQuery returns a single aggregate query selecting, in order:
// row count, distinct count, null count, min, max, min length, max length.
// Columns that do not apply to the kind are selected as NULL.
func BuildStatsQuery(h DialectHandler, tableName, columnName string, kind advisor.ValueKind) string {
	table := h.QuoteIdentifier(tableName)
	col := h.QuoteIdentifier(columnName)

	distinctExpr := col
	if kind == advisor.KindJSON || kind == advisor.KindNested {
		distinctExpr = h.CastToText(col)
	}

	minMax := "NULL, NULL"
	if kind == advisor.KindInteger || kind == advisor.KindUnsignedInteger {
		minMax = fmt.Sprintf("%s, %s", h.CastToText("MIN("+col+")"), h.CastToText("MAX("+col+")"))
	}

	lengths := "NULL, NULL"
	if kind == advisor.KindString {
		fn := h.LengthFunction()
		lengths = fmt.Sprintf("MIN(%s(%s)), MAX(%s(%s))", fn, col, fn, col)
	}

	return fmt.Sprintf("SELECT COUNT(*), COUNT(DISTINCT %s), COUNT(*) - COUNT(%s), %s, %s FROM %s",
		distinctExpr, col, minMax, lengths, table)
}

// QueryStrings runs query and scans the first column of every row. NULL
// values are skipped.
func QueryStrings(ctx context.Context, q Queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("error scanning value: %w", err)
		}
		if v.Valid {
			out = append(out, v.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// QueryColumns runs a (name, data type) catalog query. A query returning
// five columns also fills numeric precision, numeric scale and datetime
// precision, in that order.
func QueryColumns(ctx context.Context, q Queryer, query string, args ...any) ([]ColumnInfo, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("error reading column list: %w", err)
	}
	withModifiers := len(names) >= 5

	var columns []ColumnInfo
	for rows.Next() {
		var colInfo ColumnInfo
		dest := []any{&colInfo.Name, &colInfo.DataType}
		if withModifiers {
			dest = append(dest, &colInfo.NumericPrecision, &colInfo.NumericScale, &colInfo.DateTimePrecision)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("error scanning column name and data type: %w", err)
		}
		columns = append(columns, colInfo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column rows: %w", err)
	}
	return columns, nil
}

// baseTypeName lowercases a type name and strips modifiers such as "(10,2)"
// and trailing words like "unsigned" or "with time zone".
func baseTypeName(dataType string) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexAny(t, "( "); i >= 0 {
		t = t[:i]
	}
	return t
}

// CommonValueKind maps the type names shared by most SQL engines. Dialects
// handle their own special cases before falling back to it.
func CommonValueKind(dataType string) advisor.ValueKind {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if strings.HasSuffix(t, "[]") {
		return advisor.KindNested
	}
	unsigned := strings.Contains(t, "unsigned")

	switch baseTypeName(t) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"int2", "int4", "int8", "serial", "smallserial", "bigserial", "year":
		if unsigned {
			return advisor.KindUnsignedInteger
		}
		return advisor.KindInteger
	case "real", "float", "float4", "float8", "double":
		return advisor.KindFloat
	case "numeric", "decimal", "money", "smallmoney", "number":
		return advisor.KindDecimal
	case "bool", "boolean", "bit":
		return advisor.KindBoolean
	case "date":
		return advisor.KindDate
	case "timestamp", "timestamptz", "datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return advisor.KindDatetime
	case "json", "jsonb":
		return advisor.KindJSON
	case "array":
		return advisor.KindNested
	}
	return advisor.KindString
}
