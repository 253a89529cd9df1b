package interpret

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/tomyedwab/libsqlhttp/libsql/codec"
	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/types"
)

var (
	typeInt64   = reflect.TypeOf(int64(0))
	typeFloat64 = reflect.TypeOf(float64(0))
	typeString  = reflect.TypeOf("")
	typeBytes   = reflect.TypeOf([]byte(nil))
	typeTime    = reflect.TypeOf(time.Time{})
	typeBool    = reflect.TypeOf(false)
)

// Column is a named result column with the Go type its cells decode to.
type Column struct {
	Name     string
	DeclType string
	Type     reflect.Type
	Hint     codec.Hint
}

// Table is a fully materialized result set. Cells hold nil, int64, float64,
// string, []byte, time.Time or bool.
type Table struct {
	Columns      []Column
	Rows         [][]any
	RowsAffected int64
	LastInsertID int64
}

// Ordinal returns the index of the named column: an exact match first, then a
// case-insensitive one. It returns -1 when there is neither.
func (t *Table) Ordinal(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// ColumnType maps a declared column type to its Go type and decode hint using
// SQLite's affinity rules, extended with date/time and boolean names.
func ColumnType(decltype string) (reflect.Type, codec.Hint) {
	d := strings.ToUpper(decltype)
	switch {
	case d == "":
		return nil, codec.HintNone
	case strings.Contains(d, "BOOL"):
		return typeBool, codec.HintBool
	case strings.Contains(d, "DATE"), strings.Contains(d, "TIME"):
		return typeTime, codec.HintTime
	case strings.Contains(d, "INT"):
		return typeInt64, codec.HintInteger
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return typeString, codec.HintText
	case strings.Contains(d, "BLOB"):
		return typeBytes, codec.HintBlob
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return typeFloat64, codec.HintFloat
	}
	return typeString, codec.HintText
}

func buildTable(res *types.ExecuteResult) (*Table, error) {
	t := &Table{
		Columns:      make([]Column, len(res.Cols)),
		Rows:         make([][]any, 0, len(res.Rows)),
		RowsAffected: res.AffectedRowCount,
		LastInsertID: lastInsertID(res),
	}
	for i, col := range res.Cols {
		typ, hint := ColumnType(col.Decltype)
		t.Columns[i] = Column{Name: col.Name, DeclType: col.Decltype, Type: typ, Hint: hint}
	}

	for _, cells := range res.Rows {
		row := make([]any, len(t.Columns))
		for j := range t.Columns {
			if j >= len(cells) {
				continue
			}
			v, err := codec.DecodeHint(cells[j], t.Columns[j].Hint)
			if err != nil {
				return nil, dberr.Wrap(dberr.KindTransport, fmt.Sprintf("failed to decode column %d (%s)", j, t.Columns[j].Name), err)
			}
			row[j] = v
		}
		t.Rows = append(t.Rows, row)
	}

	// Expression columns have no decltype; take the type of the first value.
	for j := range t.Columns {
		if t.Columns[j].Type != nil {
			continue
		}
		t.Columns[j].Type = typeString
		for _, row := range t.Rows {
			if row[j] != nil {
				t.Columns[j].Type = reflect.TypeOf(row[j])
				break
			}
		}
	}

	return t, nil
}

func lastInsertID(res *types.ExecuteResult) int64 {
	if res.LastInsertRowID == nil {
		return 0
	}
	id, err := strconv.ParseInt(*res.LastInsertRowID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
