package interpret_test

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/libsqlhttp/libsql/batch"
	"github.com/tomyedwab/libsqlhttp/libsql/codec"
	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/interpret"
	"github.com/tomyedwab/libsqlhttp/libsql/sqltext"
	"github.com/tomyedwab/libsqlhttp/libsql/transport"
	"github.com/tomyedwab/libsqlhttp/libsql/types"
)

const closeOK = `{"type":"ok","response":{"type":"close"}}`

func exchange(t *testing.T, body string) *transport.Exchange {
	t.Helper()
	var pr types.PipelineResponse
	require.NoError(t, json.Unmarshal([]byte(body), &pr))
	return &transport.Exchange{StatusCode: 200, RequestBody: []byte(`{"requests":[]}`), ResponseBody: []byte(body), Response: &pr}
}

func countResult(n int) string {
	b, _ := json.Marshal(n)
	return `{"type":"ok","response":{"type":"execute","result":{"cols":[{"name":"c"}],"rows":[[{"type":"integer","value":"` + string(b) + `"}]],"affected_row_count":0,"last_insert_rowid":null}}}`
}

func execResult(affected int) string {
	b, _ := json.Marshal(affected)
	return `{"type":"ok","response":{"type":"execute","result":{"cols":[],"rows":[],"affected_row_count":` + string(b) + `,"last_insert_rowid":null}}}`
}

func updatePlan(t *testing.T) *batch.Plan {
	t.Helper()
	plan, err := batch.Build(sqltext.Update, `UPDATE "Blogs" SET "Name" = @p0 WHERE "Id" = @p1 AND "Version" = @p2`, batch.Params{
		codec.NewParameter("p0", "x"),
		codec.NewParameter("p1", int64(7)),
		codec.NewParameter("p2", "v1"),
	})
	require.NoError(t, err)
	return plan
}

func TestNonQueryMissingRow(t *testing.T) {
	plan := updatePlan(t)
	// changes() also reports zero; verify must win.
	ex := exchange(t, `{"results":[`+countResult(0)+`,`+execResult(0)+`,`+countResult(0)+`,`+execResult(0)+`,`+closeOK+`]}`)

	_, err := interpret.NonQuery(ex, plan)
	require.True(t, dberr.IsConcurrencyViolation(err))
	require.Contains(t, err.Error(), "Id=7 does not exist")
	require.Contains(t, err.Error(), "Version=v1")

	e, _ := dberr.As(err)
	require.Equal(t, 200, e.StatusCode)
	require.Equal(t, plan.SQL, e.SQL)
}

func TestNonQueryConcurrentChange(t *testing.T) {
	plan := updatePlan(t)
	ex := exchange(t, `{"results":[`+countResult(1)+`,`+execResult(0)+`,`+countResult(0)+`,`+execResult(0)+`,`+closeOK+`]}`)

	_, err := interpret.NonQuery(ex, plan)
	require.True(t, dberr.IsConcurrencyViolation(err))
	require.Contains(t, err.Error(), "modified or deleted by another process")
}

func TestNonQuerySuccess(t *testing.T) {
	plan := updatePlan(t)
	refresh := `{"type":"ok","response":{"type":"execute","result":{"cols":[{"name":"Id","decltype":"INTEGER"},{"name":"Name","decltype":"TEXT"}],"rows":[[{"type":"integer","value":"7"},{"type":"text","value":"x"}]],"affected_row_count":0,"last_insert_rowid":null}}}`
	ex := exchange(t, `{"results":[`+countResult(1)+`,`+execResult(1)+`,`+countResult(1)+`,`+refresh+`,`+closeOK+`]}`)

	out, err := interpret.NonQuery(ex, plan)
	require.NoError(t, err)
	require.Equal(t, int64(1), out.RowsAffected)
	require.NotNil(t, out.Refreshed)
	require.Equal(t, []any{int64(7), "x"}, out.Refreshed.Rows[0])
}

func TestNonQueryInsert(t *testing.T) {
	plan, err := batch.Build(sqltext.Insert, "INSERT INTO t(v) VALUES (1)", nil)
	require.NoError(t, err)

	ex := exchange(t, `{"results":[{"type":"ok","response":{"type":"execute","result":{"cols":[],"rows":[],"affected_row_count":1,"last_insert_rowid":"12"}}},`+closeOK+`]}`)
	out, err := interpret.NonQuery(ex, plan)
	require.NoError(t, err)
	require.Equal(t, int64(1), out.RowsAffected)
	require.Equal(t, int64(12), out.LastInsertID)
}

func TestNonQueryErrorEntry(t *testing.T) {
	plan, err := batch.Build(sqltext.Insert, "INSERT INTO missing VALUES (1)", nil)
	require.NoError(t, err)

	ex := exchange(t, `{"results":[{"type":"error","error":{"message":"no such table: missing","code":"SQLITE_ERROR"}},`+closeOK+`]}`)
	_, err = interpret.NonQuery(ex, plan)
	require.True(t, dberr.IsProtocolError(err))
	require.True(t, dberr.IsTransportError(err))
	require.Contains(t, err.Error(), "no such table: missing")
}

func TestScalarFallback(t *testing.T) {
	text := "SELECT COUNT(*) FROM sqlite_master WHERE type='table'"
	plan, err := batch.BuildScript(sqltext.Split(text), nil)
	require.NoError(t, err)

	v, err := interpret.Scalar(exchange(t, `{"results":[]}`), plan, text)
	require.NoError(t, err)
	require.Equal(t, int64(0), v)

	v, err = interpret.Scalar(exchange(t, `{"results":[]}`), plan, "SELECT name FROM t")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestScalarLastRows(t *testing.T) {
	text := "SELECT 1; SELECT 'two'"
	plan, err := batch.BuildScript(sqltext.Split(text), nil)
	require.NoError(t, err)

	second := `{"type":"ok","response":{"type":"execute","result":{"cols":[{"name":"x"}],"rows":[[{"type":"text","value":"two"}]],"affected_row_count":0,"last_insert_rowid":null}}}`
	v, err := interpret.Scalar(exchange(t, `{"results":[`+countResult(1)+`,`+second+`,`+closeOK+`]}`), plan, text)
	require.NoError(t, err)
	require.Equal(t, "two", v)
}

func TestScalarAffectedRows(t *testing.T) {
	text := "DELETE FROM t"
	plan, err := batch.BuildScript(sqltext.Split(text), nil)
	require.NoError(t, err)

	v, err := interpret.Scalar(exchange(t, `{"results":[`+execResult(3)+`,`+closeOK+`]}`), plan, text)
	require.NoError(t, err)
	require.Equal(t, int64(3), v)
}

func TestTables(t *testing.T) {
	plan, err := batch.BuildScript([]string{"SELECT * FROM blogs"}, nil)
	require.NoError(t, err)

	body := `{"results":[{"type":"ok","response":{"type":"execute","result":{
		"cols":[
			{"name":"Id","decltype":"INTEGER"},
			{"name":"Rating","decltype":"REAL"},
			{"name":"Created","decltype":"DATETIME"},
			{"name":"Active","decltype":"BOOLEAN"},
			{"name":"Data","decltype":"BLOB"},
			{"name":"Total"}
		],
		"rows":[
			[{"type":"integer","value":"1"},{"type":"float","value":4.5},{"type":"text","value":"2024-03-01 10:30:45.123"},{"type":"integer","value":"1"},{"type":"blob","base64":"AQI="},{"type":"integer","value":"9"}],
			[{"type":"text","value":""},{"type":"integer","value":"3"},{"type":"text","value":"not a date"},{"type":"integer","value":"0"},{"type":"null"},{"type":"null"}]
		],
		"affected_row_count":0,"last_insert_rowid":null}}},` + closeOK + `]}`

	tables, affected, err := interpret.Tables(exchange(t, body), plan)
	require.NoError(t, err)
	require.Equal(t, int64(0), affected)
	require.Len(t, tables, 1)

	tbl := tables[0]
	require.Equal(t, reflect.TypeOf(int64(0)), tbl.Columns[0].Type)
	require.Equal(t, reflect.TypeOf(float64(0)), tbl.Columns[1].Type)
	require.Equal(t, reflect.TypeOf(time.Time{}), tbl.Columns[2].Type)
	require.Equal(t, reflect.TypeOf(false), tbl.Columns[3].Type)
	require.Equal(t, reflect.TypeOf([]byte(nil)), tbl.Columns[4].Type)
	require.Equal(t, reflect.TypeOf(int64(0)), tbl.Columns[5].Type)

	created := time.Date(2024, 3, 1, 10, 30, 45, 123000000, time.UTC)
	require.Equal(t, []any{int64(1), 4.5, created, true, []byte{1, 2}, int64(9)}, tbl.Rows[0])
	require.Equal(t, []any{nil, float64(3), nil, false, nil, nil}, tbl.Rows[1])

	require.Equal(t, 5, tbl.Ordinal("total"))
	require.Equal(t, -1, tbl.Ordinal("nope"))
}

func TestTablesBrokenCell(t *testing.T) {
	plan, err := batch.BuildScript([]string{"SELECT data FROM t"}, nil)
	require.NoError(t, err)

	body := `{"results":[{"type":"ok","response":{"type":"execute","result":{"cols":[{"name":"id"},{"name":"data","decltype":"BLOB"}],"rows":[[{"type":"integer","value":"1"},{"type":"blob","base64":"!!!"}]],"affected_row_count":0,"last_insert_rowid":null}}},` + closeOK + `]}`
	_, _, err = interpret.Tables(exchange(t, body), plan)
	require.True(t, dberr.IsTransportError(err))
	require.False(t, dberr.IsProtocolError(err))
	require.Contains(t, err.Error(), "column 1")

	e, _ := dberr.As(err)
	require.Equal(t, "SELECT data FROM t", e.SQL)
	require.Equal(t, body, e.ResponseBody)
}

func TestColumnType(t *testing.T) {
	tests := []struct {
		decl string
		want reflect.Type
	}{
		{decl: "INTEGER", want: reflect.TypeOf(int64(0))},
		{decl: "bigint", want: reflect.TypeOf(int64(0))},
		{decl: "VARCHAR(20)", want: reflect.TypeOf("")},
		{decl: "DOUBLE PRECISION", want: reflect.TypeOf(float64(0))},
		{decl: "TIMESTAMP", want: reflect.TypeOf(time.Time{})},
		{decl: "NUMERIC", want: reflect.TypeOf("")},
	}

	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			got, _ := interpret.ColumnType(tt.decl)
			require.Equal(t, tt.want, got)
		})
	}
}
