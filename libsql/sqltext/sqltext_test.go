package sqltext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "semicolon inside single quotes",
			sql:  "INSERT INTO t(v) VALUES ('a;b');",
			want: []string{"INSERT INTO t(v) VALUES ('a;b')"},
		},
		{
			name: "semicolon inside double quotes",
			sql:  `SELECT "a;b" FROM t; SELECT 2`,
			want: []string{`SELECT "a;b" FROM t`, "SELECT 2"},
		},
		{
			name: "trailing whitespace dropped",
			sql:  "SELECT 1;\n  \t",
			want: []string{"SELECT 1"},
		},
		{
			name: "unterminated trailing statement kept",
			sql:  "DELETE FROM a; UPDATE b SET x = 1",
			want: []string{"DELETE FROM a", "UPDATE b SET x = 1"},
		},
		{
			name: "empty statements dropped",
			sql:  ";;SELECT 1;;",
			want: []string{"SELECT 1"},
		},
		{
			name: "doubled quote toggles",
			sql:  "SELECT 'it''s;fine'; SELECT 3",
			want: []string{"SELECT 'it''s;fine'", "SELECT 3"},
		},
		{
			name: "empty",
			sql:  "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Split(tt.sql))
		})
	}
}

func TestSplitClassifyAgree(t *testing.T) {
	stmts := Split("INSERT INTO t(v) VALUES ('x; UPDATE y'); update t set v = 'DELETE;'; select 1")
	require.Len(t, stmts, 3)
	require.Equal(t, []Kind{Insert, Update, Other}, ClassifyEach(stmts))
}

func TestClassifyPolicies(t *testing.T) {
	tests := []struct {
		stmt     string
		prefix   Kind
		contains Kind
	}{
		{stmt: "  update t set a = 1", prefix: Update, contains: Update},
		{stmt: "INSERT INTO t VALUES (1)", prefix: Insert, contains: Insert},
		{stmt: "\nDELETE FROM t", prefix: Delete, contains: Delete},
		{stmt: "SELECT 'UPDATE' FROM t", prefix: Other, contains: Update},
		{stmt: "WITH x AS (SELECT 1) INSERT INTO t SELECT * FROM x", prefix: Other, contains: Insert},
		{stmt: "SELECT COUNT(*) FROM sqlite_master", prefix: Other, contains: Other},
	}

	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			require.Equal(t, tt.prefix, Classify(tt.stmt, PrefixPolicy))
			require.Equal(t, tt.contains, Classify(tt.stmt, ContainsPolicy))
		})
	}
}

func TestRewrite(t *testing.T) {
	sql, names := Rewrite(`UPDATE "Blogs" SET "Name" = @p0, "Alt" = @p0 WHERE "Id" = @p1 AND "Note" = '@notaparam'`)
	require.Equal(t, `UPDATE "Blogs" SET "Name" = ?1, "Alt" = ?1 WHERE "Id" = ?2 AND "Note" = '@notaparam'`, sql)
	require.Equal(t, []string{"p0", "p1"}, names)

	require.Equal(t, []string{"b", "a"}, Placeholders("SELECT @b, @a, @B"))
	require.Empty(t, Placeholders("SELECT 'a@b.c'"))
}

func TestTableName(t *testing.T) {
	tests := []struct {
		stmt string
		want string
		ok   bool
	}{
		{stmt: `UPDATE "Blogs" SET "Name" = @p0`, want: "Blogs", ok: true},
		{stmt: `delete from posts where id = @p0`, want: "posts", ok: true},
		{stmt: `INSERT INTO t(v) VALUES (1)`, want: "t", ok: true},
		{stmt: "INSERT OR REPLACE INTO `kv` VALUES (1)", want: "kv", ok: true},
		{stmt: `UPDATE [Weird Name] SET a = 1`, want: "Weird Name", ok: true},
		{stmt: `UPDATE "say ""hi""" SET a = 1`, want: `say "hi"`, ok: true},
		{stmt: `UPDATE "main"."Blogs" SET "Name" = @p0`, want: "main.Blogs", ok: true},
		{stmt: `UPDATE main.Blogs SET "Name" = @p0`, want: "main.Blogs", ok: true},
		{stmt: `DELETE FROM main . [Blogs] WHERE id = @p0`, want: "main.Blogs", ok: true},
		{stmt: `UPDATE a.b.c SET x = 1`, ok: false},
		{stmt: `UPDATE "" SET x = 1`, ok: false},
		{stmt: `SELECT * FROM t`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			got, ok := TableName(tt.stmt)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTableIdent(t *testing.T) {
	parts, ok := TableIdent(`UPDATE "main"."my ""blogs""" SET a = 1`)
	require.True(t, ok)
	require.Equal(t, []string{"main", `my "blogs"`}, parts)
	require.Equal(t, `"main"."my ""blogs"""`, QuoteQualified(parts))

	parts, ok = TableIdent("INSERT INTO `kv`(k) VALUES (1)")
	require.True(t, ok)
	require.Equal(t, []string{"kv"}, parts)
}

func TestIDPredicate(t *testing.T) {
	param, ok := IDPredicate(`UPDATE "Blogs" SET "Name" = @p0 WHERE "Id" = @p1 AND "Version" = @p2`)
	require.True(t, ok)
	require.Equal(t, "p1", param)

	preds := Predicates(`DELETE FROM "Blogs" WHERE "Id" = @p0 AND "Version" = @p1`)
	require.Equal(t, []Predicate{{Column: "Id", Param: "p0"}, {Column: "Version", Param: "p1"}}, preds)

	_, ok = IDPredicate(`UPDATE t SET "Id" = @p0`)
	require.False(t, ok)

	_, ok = IDPredicate(`DELETE FROM t WHERE "BlogId" = @p0`)
	require.False(t, ok)
}

func TestPredicatesSkipSubqueries(t *testing.T) {
	tests := []struct {
		name  string
		stmt  string
		param string
		ok    bool
	}{
		{
			name:  "subquery in SET",
			stmt:  `UPDATE "Blogs" SET "Rating" = (SELECT MAX(r) FROM "Votes" WHERE "Id" = @p9) WHERE "Id" = @p0`,
			param: "p0",
			ok:    true,
		},
		{
			name: "only nested id",
			stmt: `DELETE FROM "Blogs" WHERE "Owner" IN (SELECT o FROM "Owners" WHERE "Id" = @p1)`,
		},
		{
			name:  "nested after own predicate",
			stmt:  `UPDATE t SET a = @p0 WHERE id = @p1 AND b IN (SELECT b FROM u WHERE id = @p2)`,
			param: "p1",
			ok:    true,
		},
		{
			name:  "WHERE inside a literal",
			stmt:  `UPDATE t SET note = 'x WHERE y' WHERE "Id" = @p3`,
			param: "p3",
			ok:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			param, ok := IDPredicate(tt.stmt)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.param, param)
		})
	}

	preds := Predicates(`UPDATE t SET a = (SELECT 1 FROM u WHERE "Version" = @p5) WHERE "Id" = @p0 AND "Version" = @p1`)
	require.Equal(t, []Predicate{{Column: "Id", Param: "p0"}, {Column: "Version", Param: "p1"}}, preds)
}

func TestNumberPositional(t *testing.T) {
	tests := []struct {
		stmt string
		want string
		ok   bool
	}{
		{stmt: "SELECT * FROM t WHERE a = ? AND b = ?", want: "SELECT * FROM t WHERE a = @p0 AND b = @p1", ok: true},
		{stmt: "SELECT ?2, ?1, ?", want: "SELECT @p1, @p0, @p2", ok: true},
		{stmt: "SELECT '?', \"?\" FROM t WHERE a = ?", want: "SELECT '?', \"?\" FROM t WHERE a = @p0", ok: true},
		{stmt: "INSERT INTO t VALUES (?); INSERT INTO t VALUES (?)", want: "INSERT INTO t VALUES (@p0); INSERT INTO t VALUES (@p1)", ok: true},
		{stmt: "SELECT ?0", want: "SELECT ?0", ok: false},
		{stmt: "SELECT @p0", want: "SELECT @p0", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			got, ok := NumberPositional(tt.stmt)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestHasAggregateMarker(t *testing.T) {
	require.True(t, HasAggregateMarker("SELECT COUNT(*) FROM sqlite_master WHERE type='table'"))
	require.True(t, HasAggregateMarker("select name from SQLITE_MASTER"))
	require.False(t, HasAggregateMarker("SELECT 1"))
}
