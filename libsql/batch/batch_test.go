package batch_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/libsqlhttp/libsql/batch"
	"github.com/tomyedwab/libsqlhttp/libsql/codec"
	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/sqltext"
	"github.com/tomyedwab/libsqlhttp/libsql/types"
)

func TestBuildUpdateOrder(t *testing.T) {
	params := batch.Params{
		codec.NewParameter("@p0", "new name"),
		codec.NewParameter("@p1", int64(42)),
	}
	stmt := `UPDATE "Blogs" SET "Name" = @p0 WHERE "Id" = @p1`

	plan, err := batch.Build(sqltext.Update, stmt, params)
	require.NoError(t, err)
	require.Equal(t, []batch.Step{batch.StepVerify, batch.StepMain, batch.StepChanges, batch.StepRefresh, batch.StepClose}, plan.Steps)
	require.Equal(t, "Blogs", plan.Table)
	require.Equal(t, int64(42), plan.IDValue)

	reqs := plan.Requests
	require.Equal(t, `SELECT COUNT(*) FROM "Blogs" WHERE "Id" = ?1`, reqs[0].Stmt.SQL)
	require.Equal(t, []types.Value{types.Integer(42).Named("@p1")}, reqs[0].Stmt.Args)

	require.Equal(t, `UPDATE "Blogs" SET "Name" = ?1 WHERE "Id" = ?2`, reqs[1].Stmt.SQL)
	require.Equal(t, []types.Value{types.Text("new name").Named("@p0"), types.Integer(42).Named("@p1")}, reqs[1].Stmt.Args)

	require.Equal(t, "SELECT changes();", reqs[2].Stmt.SQL)
	require.Equal(t, `SELECT * FROM "Blogs" WHERE "Id" = ?1`, reqs[3].Stmt.SQL)
	require.Equal(t, types.RequestClose, reqs[4].Type)
	require.Nil(t, reqs[4].Stmt)
}

func TestBuildDeleteHasNoRefresh(t *testing.T) {
	params := batch.Params{
		codec.NewParameter("p0", int64(1)),
		codec.NewParameter("p1", "v3"),
	}

	plan, err := batch.Build(sqltext.Delete, `DELETE FROM "Blogs" WHERE "Id" = @p0 AND "Version" = @p1`, params)
	require.NoError(t, err)
	require.Equal(t, []batch.Step{batch.StepVerify, batch.StepMain, batch.StepChanges, batch.StepClose}, plan.Steps)
	require.Equal(t, []batch.Expectation{{Column: "Version", Value: "v3"}}, plan.Expected)
}

func TestBuildWithoutIDPredicate(t *testing.T) {
	plan, err := batch.Build(sqltext.Update, `UPDATE "Blogs" SET "Rank" = 0`, nil)
	require.NoError(t, err)
	require.Equal(t, []batch.Step{batch.StepMain, batch.StepChanges, batch.StepClose}, plan.Steps)
}

func TestBuildQualifiedTable(t *testing.T) {
	params := batch.Params{
		codec.NewParameter("p0", "renamed"),
		codec.NewParameter("p1", int64(7)),
	}

	for _, stmt := range []string{
		`UPDATE "main"."Blogs" SET "Name" = @p0 WHERE "Id" = @p1`,
		`UPDATE main.Blogs SET "Name" = @p0 WHERE "Id" = @p1`,
	} {
		plan, err := batch.Build(sqltext.Update, stmt, params)
		require.NoError(t, err)
		require.Equal(t, "main.Blogs", plan.Table)
		require.Equal(t, `SELECT COUNT(*) FROM "main"."Blogs" WHERE "Id" = ?1`, plan.Requests[0].Stmt.SQL)
		require.Equal(t, `SELECT * FROM "main"."Blogs" WHERE "Id" = ?1`, plan.Requests[3].Stmt.SQL)
	}
}

func TestBuildUnresolvedTable(t *testing.T) {
	plan, err := batch.Build(sqltext.Update, `  UPDATE`, nil)
	require.NoError(t, err)
	require.Equal(t, []batch.Step{batch.StepMain, batch.StepClose}, plan.Steps)
	require.False(t, plan.Has(batch.StepChanges))
}

func TestBuildInsert(t *testing.T) {
	params := batch.Params{codec.NewParameter("p0", "a;b")}

	plan, err := batch.Build(sqltext.Insert, `INSERT INTO t(v) VALUES (@p0)`, params)
	require.NoError(t, err)
	require.Equal(t, []batch.Step{batch.StepMain, batch.StepClose}, plan.Steps)

	raw, err := json.Marshal(plan.Pipeline())
	require.NoError(t, err)
	require.JSONEq(t, `{"requests":[
		{"type":"execute","stmt":{"sql":"INSERT INTO t(v) VALUES (?1)","args":[{"name":"@p0","type":"text","value":"a;b"}]}},
		{"type":"close"}
	]}`, string(raw))
}

func TestStatementDeduplicatesParameters(t *testing.T) {
	params := batch.Params{codec.NewParameter("p0", int64(5))}

	req, err := batch.Statement("SELECT @p0 + @p0, @P0", params)
	require.NoError(t, err)
	require.Equal(t, "SELECT ?1 + ?1, ?1", req.Stmt.SQL)
	require.Len(t, req.Stmt.Args, 1)
}

func TestStatementUnboundParameter(t *testing.T) {
	_, err := batch.Statement("SELECT @missing", batch.Params{})
	require.True(t, dberr.IsKind(err, dberr.KindInvalidParameter))
}

func TestBuildScript(t *testing.T) {
	plan, err := batch.BuildScript([]string{"SELECT 1", "SELECT @p0"}, batch.Params{codec.NewParameter("p0", true)})
	require.NoError(t, err)
	require.Equal(t, []batch.Step{batch.StepMain, batch.StepMain, batch.StepClose}, plan.Steps)
	require.Empty(t, plan.Requests[0].Stmt.Args)
	require.Equal(t, types.Integer(1).Named("@p0"), plan.Requests[1].Stmt.Args[0])
}
