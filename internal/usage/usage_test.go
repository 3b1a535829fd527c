package usage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/advisor"
)

func TestExtractClauses(t *testing.T) {
	u := Extract([]string{
		`SELECT status, count(*) FROM orders WHERE created_at >= DATE '2025-01-01' AND tenant_id = 7 GROUP BY status ORDER BY status`,
		`SELECT o.amount FROM shop.orders AS o JOIN users u ON u.id = o.user_id WHERE u.country IN ('US', 'DE') ORDER BY o.created_at DESC LIMIT 10`,
		`SELECT "Status" FROM "orders" PREWHERE "tenant_id" = 1`,
	})

	tests := []struct {
		table, column string
		want          ColumnUsage
	}{
		{"orders", "created_at", ColumnUsage{Filter: 1, OrderBy: 1}},
		{"orders", "tenant_id", ColumnUsage{Filter: 2}},
		{"orders", "status", ColumnUsage{GroupBy: 1, OrderBy: 1}},
		{"orders", "user_id", ColumnUsage{Filter: 1}},
		{"users", "id", ColumnUsage{Filter: 1}},
		{"users", "country", ColumnUsage{Filter: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.table+"."+tt.column, func(t *testing.T) {
			got, ok := u.Lookup(tt.table, tt.column)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := u.Lookup("orders", "amount")
	assert.False(t, ok, "select-list columns are not usage signals")
	_, ok = u.Lookup("orders", "date")
	assert.False(t, ok, "typed literal prefixes are not columns")
	_, ok = u.Lookup("orders", "count")
	assert.False(t, ok, "function names are not columns")
	_, ok = u.Lookup("users", "created_at")
	assert.False(t, ok, "qualified references stay with their table")
	assert.Equal(t, []string{"orders", "users"}, u.Tables())
}

func TestExtractSubqueryRestoresClause(t *testing.T) {
	u := Extract([]string{
		`SELECT * FROM events WHERE user_id IN (SELECT id FROM users WHERE banned) AND kind = 'click' GROUP BY day`,
	})

	kind, ok := u.Lookup("events", "kind")
	require.True(t, ok)
	assert.Equal(t, 1, kind.Filter)

	day, ok := u.Lookup("events", "day")
	require.True(t, ok)
	assert.Equal(t, 1, day.GroupBy)

	banned, ok := u.Lookup("users", "banned")
	require.True(t, ok)
	assert.Equal(t, 1, banned.Filter)
}

func TestExtractFunctionFromIsNotATable(t *testing.T) {
	u := Extract([]string{
		`SELECT count(*) FROM events WHERE EXTRACT(YEAR FROM ts) = 2025 AND substring(name FROM 2) = 'x' GROUP BY kind`,
	})
	assert.Equal(t, []string{"events"}, u.Tables())

	ts, ok := u.Lookup("events", "ts")
	require.True(t, ok)
	assert.Equal(t, 1, ts.Filter)

	name, ok := u.Lookup("events", "name")
	require.True(t, ok)
	assert.Equal(t, 1, name.Filter)

	kind, ok := u.Lookup("events", "kind")
	require.True(t, ok)
	assert.Equal(t, 1, kind.GroupBy)
}

func TestUnprofiled(t *testing.T) {
	u := Extract([]string{
		`SELECT 1 FROM orders o JOIN refunds r ON r.order_id = o.id WHERE o.status = 'paid'`,
		`SELECT 1 FROM audit WHERE at > now()`,
	})
	got := u.Unprofiled([]advisor.TableInput{{Name: "Orders"}})
	assert.Equal(t, []string{"audit", "refunds"}, got)
	assert.Empty(t, u.Unprofiled([]advisor.TableInput{{Name: "orders"}, {Name: "refunds"}, {Name: "audit"}}))
}

func TestExtractCountsOncePerStatement(t *testing.T) {
	u := Extract([]string{
		`SELECT 1 FROM t WHERE a = 1 OR a = 2`,
		`SELECT 1 FROM t WHERE a > 5 -- a comment mentioning b`,
	})
	a, ok := u.Lookup("T", "A")
	require.True(t, ok)
	assert.Equal(t, 2, a.Filter)
	_, ok = u.Lookup("t", "b")
	assert.False(t, ok)
}

func TestApply(t *testing.T) {
	u := Extract([]string{`SELECT 1 FROM orders WHERE status = 'x' GROUP BY region ORDER BY ts`})
	in := []advisor.TableInput{{
		Name: "Orders",
		Columns: []advisor.ColumnInput{
			{Profile: advisor.ColumnProfile{Name: "status"}},
			{Profile: advisor.ColumnProfile{Name: "region"}},
			{Profile: advisor.ColumnProfile{Name: "ts"}},
			{Profile: advisor.ColumnProfile{Name: "note", UsedInFilter: true}},
		},
	}}

	out := u.Apply(in)
	cols := out[0].Columns
	assert.True(t, cols[0].Profile.UsedInFilter)
	assert.True(t, cols[1].Profile.UsedInGroupBy)
	assert.True(t, cols[2].Profile.UsedInOrderByCandidate)
	assert.True(t, cols[3].Profile.UsedInFilter)
	assert.False(t, in[0].Columns[0].Profile.UsedInFilter, "input is not modified")
}

func TestExtractFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 1 FROM t WHERE a = ';';\nSELECT 1 FROM t ORDER BY b;\n"), 0o644))

	u, err := ExtractFile(path, zap.NewNop())
	require.NoError(t, err)
	a, _ := u.Lookup("t", "a")
	b, _ := u.Lookup("t", "b")
	assert.Equal(t, 1, a.Filter)
	assert.Equal(t, 1, b.OrderBy)

	_, err = ExtractFile(filepath.Join(t.TempDir(), "missing.sql"), nil)
	assert.Error(t, err)
}

func TestTokenize(t *testing.T) {
	toks := tokenize(`SELECT a.b, "x y".[z] FROM t WHERE c = 'it''s' AND d > 1e5 /* e */`)
	var words []string
	for _, tok := range toks {
		if tok.kind == tokenWord {
			words = append(words, tok.text)
		}
	}
	assert.Equal(t, []string{"SELECT", "a.b", `"x y".[z]`, "FROM", "t", "WHERE", "c", "AND", "d"}, words)
	assert.Equal(t, []string{"x y", "z"}, splitQualified(`"x y".[z]`))
}
