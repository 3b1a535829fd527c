package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/database"
)

type mysqlHandler struct{}

var _ database.DialectHandler = (*mysqlHandler)(nil)

func (h mysqlHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	instanceConnectionName := cfg.CloudSQLInstanceConnectionName
	if cfg.User == "" || cfg.Password == "" || cfg.DBName == "" || instanceConnectionName == "" {
		return nil, fmt.Errorf("missing required CloudSQL connection parameter (user, pass, db, instance)")
	}

	d, err := cloudsqlconn.NewDialer(context.Background())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}

	var opts []cloudsqlconn.DialOption
	if cfg.UsePrivateIP {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}

	network := fmt.Sprintf("cloudsql-%s", instanceConnectionName)

	mysql.RegisterDialContext(network,
		func(ctx context.Context, addr string) (net.Conn, error) {
			conn, dialErr := d.Dial(ctx, instanceConnectionName, opts...)
			if dialErr != nil {
				zap.L().Error("cloud sql dial failed",
					zap.String("instance", instanceConnectionName), zap.Error(dialErr))
			}
			return conn, dialErr
		})

	mysqlCfg := mysql.Config{
		User:                 cfg.User,
		Passwd:               cfg.Password,
		Net:                  network,
		Addr:                 instanceConnectionName,
		DBName:               cfg.DBName,
		AllowNativePasswords: true,
		ParseTime:            true,
	}

	dbPool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		mysql.DeregisterDialContext(network)
		d.Close()
		return nil, fmt.Errorf("sql.Open failed for CloudSQL MySQL: %w", err)
	}
	return dbPool, nil
}

func (h mysqlHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	mysqlCfg := mysql.Config{
		User:                 cfg.User,
		Passwd:               cfg.Password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DBName:               cfg.DBName,
		AllowNativePasswords: true,
		ParseTime:            true,
	}
	connStr := mysqlCfg.FormatDSN()

	dbPool, err := sql.Open("mysql", connStr)
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard mysql): %w", err)
	}
	return dbPool, nil
}

func (h mysqlHandler) QuoteIdentifier(name string) string {
	name = strings.ReplaceAll(name, "`", "``")
	return fmt.Sprintf("`%s`", name)
}

func (h mysqlHandler) ListTables(ctx context.Context, db *database.DB) ([]string, error) {
	query := "SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME"

	tables, err := database.QueryStrings(ctx, db.Pool, query)
	if err != nil {
		return nil, fmt.Errorf("error querying tables: %w", err)
	}
	return tables, nil
}

// ListColumns reports COLUMN_TYPE rather than DATA_TYPE so that "unsigned"
// and "tinyint(1)" survive.
func (h mysqlHandler) ListColumns(ctx context.Context, db *database.DB, tableName string) ([]database.ColumnInfo, error) {
	query := `
		  SELECT COLUMN_NAME, COLUMN_TYPE
		  FROM information_schema.COLUMNS
		  WHERE TABLE_SCHEMA = DATABASE()
			AND TABLE_NAME = ?
		  ORDER BY ORDINAL_POSITION;`

	columns, err := database.QueryColumns(ctx, db.Pool, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("error querying columns for table %s: %w", tableName, err)
	}
	return columns, nil
}

func (h mysqlHandler) GetPrimaryKeys(ctx context.Context, db *database.DB, tableName string) ([]string, error) {
	query := `
		  SELECT COLUMN_NAME
		  FROM information_schema.KEY_COLUMN_USAGE
		  WHERE TABLE_SCHEMA = DATABASE()
			AND TABLE_NAME = ?
			AND CONSTRAINT_NAME = 'PRIMARY'
		  ORDER BY ORDINAL_POSITION;`

	keys, err := database.QueryStrings(ctx, db.Pool, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("error querying primary keys for table %s: %w", tableName, err)
	}
	return keys, nil
}

func (h mysqlHandler) ValueKind(dataType string) advisor.ValueKind {
	t := strings.ToLower(strings.TrimSpace(dataType))
	switch {
	case strings.HasPrefix(t, "tinyint(1)"), t == "bit(1)":
		return advisor.KindBoolean
	case strings.HasPrefix(t, "enum("), strings.HasPrefix(t, "set("), t == "time":
		return advisor.KindString
	}
	return database.CommonValueKind(t)
}

func (h mysqlHandler) CastToText(expr string) string {
	return fmt.Sprintf("CAST(%s AS CHAR)", expr)
}

func (h mysqlHandler) LengthFunction() string {
	return "CHAR_LENGTH"
}

func (h mysqlHandler) SampleQuery(tableName, columnName string, limit int) string {
	col := h.QuoteIdentifier(columnName)
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
		h.CastToText(col), h.QuoteIdentifier(tableName), col, limit)
}

func init() {
	database.RegisterDialectHandler("mysql", mysqlHandler{})
	database.RegisterDialectHandler("cloudsqlmysql", mysqlHandler{})
}
