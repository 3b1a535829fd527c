package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
)

// Mock DialectHandler implementation
type mockDialectHandler struct {
	mu                   sync.Mutex
	createCloudSQLPoolFn func(cfg config.DatabaseConfig) (*sql.DB, error)
	createStandardPoolFn func(cfg config.DatabaseConfig) (*sql.DB, error)
	listTablesFn         func(db *DB) ([]string, error)
	listColumnsFn        func(db *DB, tableName string) ([]ColumnInfo, error)
	getPrimaryKeysFn     func(db *DB, tableName string) ([]string, error)

	// Call counters
	listTablesCalls     int
	listColumnsCalls    int
	getPrimaryKeysCalls int
}

func (m *mockDialectHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createCloudSQLPoolFn != nil {
		return m.createCloudSQLPoolFn(cfg)
	}
	mockDb, _, _ := sqlmock.New()
	return mockDb, nil
}

func (m *mockDialectHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createStandardPoolFn != nil {
		return m.createStandardPoolFn(cfg)
	}
	mockDb, _, _ := sqlmock.New()
	return mockDb, nil
}

func (m *mockDialectHandler) QuoteIdentifier(name string) string { return fmt.Sprintf(`"%s"`, name) }

func (m *mockDialectHandler) ListTables(ctx context.Context, db *DB) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listTablesCalls++
	if m.listTablesFn != nil {
		return m.listTablesFn(db)
	}
	return []string{"table1"}, nil
}

func (m *mockDialectHandler) ListColumns(ctx context.Context, db *DB, tableName string) ([]ColumnInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listColumnsCalls++
	if m.listColumnsFn != nil {
		return m.listColumnsFn(db, tableName)
	}
	return []ColumnInfo{{Name: "col1", DataType: "int"}}, nil
}

func (m *mockDialectHandler) GetPrimaryKeys(ctx context.Context, db *DB, tableName string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getPrimaryKeysCalls++
	if m.getPrimaryKeysFn != nil {
		return m.getPrimaryKeysFn(db, tableName)
	}
	return []string{"col1"}, nil
}

func (m *mockDialectHandler) ValueKind(dataType string) advisor.ValueKind {
	return CommonValueKind(dataType)
}

func (m *mockDialectHandler) CastToText(expr string) string { return "TEXT(" + expr + ")" }

func (m *mockDialectHandler) LengthFunction() string { return "LEN" }

func (m *mockDialectHandler) SampleQuery(tableName, columnName string, limit int) string {
	return fmt.Sprintf(`SELECT "%s" FROM "%s" LIMIT %d`, columnName, tableName, limit)
}

// swapHandlers replaces the registry for one test.
func swapHandlers(t *testing.T) {
	t.Helper()
	mu.Lock()
	original := dialectHandlers
	dialectHandlers = make(map[string]DialectHandler)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		dialectHandlers = original
		mu.Unlock()
	})
}

func TestRegisterAndGetDialectHandler(t *testing.T) {
	swapHandlers(t)

	mockHandler := &mockDialectHandler{}
	testDialect := "testdialect"

	_, err := GetDialectHandler(testDialect)
	if err == nil {
		t.Errorf("Expected error when getting unregistered dialect, got nil")
	}

	RegisterDialectHandler(testDialect, mockHandler)
	handler, err := GetDialectHandler(testDialect)
	if err != nil {
		t.Errorf("Unexpected error getting registered dialect: %v", err)
	}
	if handler != mockHandler {
		t.Errorf("Got wrong handler back, expected mock, got %T", handler)
	}

	mockHandler2 := &mockDialectHandler{}
	RegisterDialectHandler(testDialect, mockHandler2)
	handler, err = GetDialectHandler(testDialect)
	require.NoError(t, err)
	if handler != mockHandler2 {
		t.Errorf("Got wrong handler back after overwrite, expected mock2, got %T", handler)
	}

	RegisterDialectHandler("another", mockHandler)
	assert.Equal(t, []string{"another", "testdialect"}, Dialects())
}

func TestNew(t *testing.T) {
	swapHandlers(t)
	ctx := context.Background()

	t.Run("standard pool", func(t *testing.T) {
		mockDb, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		mock.ExpectPing()
		RegisterDialectHandler("mockdb", &mockDialectHandler{
			createStandardPoolFn: func(cfg config.DatabaseConfig) (*sql.DB, error) { return mockDb, nil },
		})

		db, err := New(ctx, config.DatabaseConfig{Dialect: "mockdb"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "mockdb", db.GetConfig().Dialect)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cloudsql prefix uses the cloud pool", func(t *testing.T) {
		called := false
		RegisterDialectHandler("cloudsqlmock", &mockDialectHandler{
			createCloudSQLPoolFn: func(cfg config.DatabaseConfig) (*sql.DB, error) {
				called = true
				mockDb, _, err := sqlmock.New()
				return mockDb, err
			},
		})
		_, err := New(ctx, config.DatabaseConfig{Dialect: "cloudsqlmock"}, nil)
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("pool error", func(t *testing.T) {
		RegisterDialectHandler("broken", &mockDialectHandler{
			createStandardPoolFn: func(cfg config.DatabaseConfig) (*sql.DB, error) { return nil, errors.New("boom") },
		})
		_, err := New(ctx, config.DatabaseConfig{Dialect: "broken"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create database pool for dialect broken")
	})

	t.Run("ping error", func(t *testing.T) {
		mockDb, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		mock.ExpectPing().WillReturnError(errors.New("refused"))
		mock.ExpectClose()
		RegisterDialectHandler("unreachable", &mockDialectHandler{
			createStandardPoolFn: func(cfg config.DatabaseConfig) (*sql.DB, error) { return mockDb, nil },
		})
		_, err = New(ctx, config.DatabaseConfig{Dialect: "unreachable"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ping failed")
	})

	t.Run("unknown dialect", func(t *testing.T) {
		_, err := New(ctx, config.DatabaseConfig{Dialect: "oracle"}, nil)
		assert.EqualError(t, err, "unsupported database dialect: oracle")
	})
}

func newTestDB(t *testing.T, handler DialectHandler) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { mockDb.Close() })
	return &DB{Pool: mockDb, Handler: handler, Config: config.DatabaseConfig{Dialect: "mock"}}, mock
}

func TestDBMethodsDelegateToHandler(t *testing.T) {
	mockHandler := &mockDialectHandler{}
	db, _ := newTestDB(t, mockHandler)
	ctx := context.Background()

	tables, err := db.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"table1"}, tables)

	cols, err := db.ListColumns(ctx, "table1")
	require.NoError(t, err)
	assert.Equal(t, []ColumnInfo{{Name: "col1", DataType: "int"}}, cols)

	keys, err := db.GetPrimaryKeys(ctx, "table1")
	require.NoError(t, err)
	assert.Equal(t, []string{"col1"}, keys)

	assert.Equal(t, advisor.KindInteger, db.ValueKind("int"))
	assert.Equal(t, 1, mockHandler.listTablesCalls)
	assert.Equal(t, 1, mockHandler.listColumnsCalls)
	assert.Equal(t, 1, mockHandler.getPrimaryKeysCalls)
}

func TestDBMethodsWithoutHandler(t *testing.T) {
	db := &DB{}
	ctx := context.Background()

	_, err := db.ListTables(ctx)
	assert.EqualError(t, err, "dialect handler not initialized")
	_, err = db.ListColumns(ctx, "t")
	assert.Error(t, err)
	_, err = db.GetPrimaryKeys(ctx, "t")
	assert.Error(t, err)
	_, err = db.GetColumnStats(ctx, "t", ColumnInfo{Name: "c"}, 1)
	assert.Error(t, err)
	assert.Equal(t, advisor.KindString, db.ValueKind("int"))
	assert.Error(t, db.Ping(ctx))
	assert.NoError(t, db.Close())
}

func TestGetColumnStats(t *testing.T) {
	ctx := context.Background()
	statsCols := []string{"rows", "distinct", "nulls", "min", "max", "min_len", "max_len"}

	t.Run("integer column", func(t *testing.T) {
		db, mock := newTestDB(t, &mockDialectHandler{})
		mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(DISTINCT "id"\), COUNT\(\*\) - COUNT\("id"\), TEXT\(MIN\("id"\)\), TEXT\(MAX\("id"\)\), NULL, NULL FROM "orders"`).
			WillReturnRows(sqlmock.NewRows(statsCols).AddRow(100, 100, 0, "1", "100", nil, nil))

		stats, err := db.GetColumnStats(ctx, "orders", ColumnInfo{Name: "id", DataType: "bigint"}, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(100), stats.RowCount)
		assert.Equal(t, int64(100), stats.DistinctCount)
		assert.Equal(t, int64(0), stats.NullCount)
		assert.Equal(t, sql.NullString{String: "1", Valid: true}, stats.Min)
		assert.Equal(t, sql.NullString{String: "100", Valid: true}, stats.Max)
		assert.False(t, stats.MinLength.Valid)
		assert.Nil(t, stats.Samples)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("text column with samples", func(t *testing.T) {
		db, mock := newTestDB(t, &mockDialectHandler{})
		mock.ExpectQuery(`MIN\(LEN\("country"\)\), MAX\(LEN\("country"\)\) FROM "orders"`).
			WillReturnRows(sqlmock.NewRows(statsCols).AddRow(10, 2, 1, nil, nil, 2, 2))
		mock.ExpectQuery(`SELECT "country" FROM "orders" LIMIT 3`).
			WillReturnRows(sqlmock.NewRows([]string{"country"}).AddRow("US").AddRow(nil).AddRow("DE"))

		stats, err := db.GetColumnStats(ctx, "orders", ColumnInfo{Name: "country", DataType: "varchar(2)"}, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.MinLength.Int64)
		assert.Equal(t, int64(2), stats.MaxLength.Int64)
		assert.Equal(t, []string{"US", "DE"}, stats.Samples)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := newTestDB(t, &mockDialectHandler{})
		mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errors.New("relation does not exist"))

		_, err := db.GetColumnStats(ctx, "missing", ColumnInfo{Name: "c", DataType: "text"}, 0)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "failed to collect statistics for missing.c"))
	})

	t.Run("sample error", func(t *testing.T) {
		db, mock := newTestDB(t, &mockDialectHandler{})
		mock.ExpectQuery(`SELECT COUNT`).WillReturnRows(sqlmock.NewRows(statsCols).AddRow(1, 1, 0, nil, nil, 1, 1))
		mock.ExpectQuery(`SELECT "c"`).WillReturnError(errors.New("timeout"))

		_, err := db.GetColumnStats(ctx, "t", ColumnInfo{Name: "c", DataType: "text"}, 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to sample t.c")
	})
}
