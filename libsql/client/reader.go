package client

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/libsqlhttp/libsql/codec"
	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/interpret"
)

// DataReader is a forward-only cursor over the result tables of one
// execution. Everything is already in memory; Close only drops it.
type DataReader struct {
	tables   []*interpret.Table
	table    int
	row      int
	affected int64
	closed   bool
}

func newDataReader(tables []*interpret.Table, affected int64) *DataReader {
	return &DataReader{tables: tables, row: -1, affected: affected}
}

func (r *DataReader) current() *interpret.Table {
	if r.closed || r.table >= len(r.tables) {
		return nil
	}
	return r.tables[r.table]
}

// Read advances to the next row of the current result.
func (r *DataReader) Read() bool {
	t := r.current()
	if t == nil || r.row+1 >= len(t.Rows) {
		if t != nil {
			r.row = len(t.Rows)
		}
		return false
	}
	r.row++
	return true
}

// NextResult moves to the next result table.
func (r *DataReader) NextResult() bool {
	if r.closed || r.table >= len(r.tables) {
		return false
	}
	r.table++
	r.row = -1
	return r.table < len(r.tables)
}

// HasNextResult reports whether NextResult would succeed.
func (r *DataReader) HasNextResult() bool {
	return !r.closed && r.table+1 < len(r.tables)
}

// HasRows reports whether the current result has any rows.
func (r *DataReader) HasRows() bool {
	t := r.current()
	return t != nil && len(t.Rows) > 0
}

func (r *DataReader) FieldCount() int {
	t := r.current()
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// RecordsAffected is the sum of affected_row_count over the batch.
func (r *DataReader) RecordsAffected() int64 {
	return r.affected
}

// Columns describes the columns of the current result.
func (r *DataReader) Columns() []interpret.Column {
	t := r.current()
	if t == nil {
		return nil
	}
	return t.Columns
}

func (r *DataReader) column(i int) (interpret.Column, error) {
	t := r.current()
	if t == nil {
		return interpret.Column{}, dberr.NewInvalidStateError("reader has no current result")
	}
	if i < 0 || i >= len(t.Columns) {
		return interpret.Column{}, dberr.Newf(dberr.KindInvalidParameter, "column index %d out of range [0, %d)", i, len(t.Columns))
	}
	return t.Columns[i], nil
}

func (r *DataReader) GetName(i int) (string, error) {
	c, err := r.column(i)
	return c.Name, err
}

// GetOrdinal finds a column by exact name, then case-insensitively.
func (r *DataReader) GetOrdinal(name string) (int, error) {
	t := r.current()
	if t == nil {
		return -1, dberr.NewInvalidStateError("reader has no current result")
	}
	i := t.Ordinal(name)
	if i < 0 {
		return -1, dberr.Newf(dberr.KindInvalidParameter, "no column named %q", name)
	}
	return i, nil
}

func (r *DataReader) GetFieldType(i int) (reflect.Type, error) {
	c, err := r.column(i)
	return c.Type, err
}

// GetDataTypeName returns the declared type, or a SQLite storage class
// derived from the column type for expression columns.
func (r *DataReader) GetDataTypeName(i int) (string, error) {
	c, err := r.column(i)
	if err != nil {
		return "", err
	}
	return DataTypeName(c), nil
}

// DataTypeName is the declared type of c, or a storage class name when it
// has none.
func DataTypeName(c interpret.Column) string {
	if c.DeclType != "" {
		return c.DeclType
	}
	switch c.Type {
	case reflect.TypeOf(int64(0)):
		return "INTEGER"
	case reflect.TypeOf(float64(0)):
		return "REAL"
	case reflect.TypeOf([]byte(nil)):
		return "BLOB"
	}
	return "TEXT"
}

// GetValue returns the decoded cell, nil for NULL.
func (r *DataReader) GetValue(i int) (any, error) {
	if _, err := r.column(i); err != nil {
		return nil, err
	}
	t := r.current()
	if r.row < 0 || r.row >= len(t.Rows) {
		return nil, dberr.NewInvalidStateError("reader is not positioned on a row")
	}
	return t.Rows[r.row][i], nil
}

// Values copies the current row into dest, which must be at least FieldCount long.
func (r *DataReader) Values(dest []any) error {
	for i := 0; i < r.FieldCount() && i < len(dest); i++ {
		v, err := r.GetValue(i)
		if err != nil {
			return err
		}
		dest[i] = v
	}
	return nil
}

func (r *DataReader) IsDBNull(i int) (bool, error) {
	v, err := r.GetValue(i)
	return v == nil, err
}

func (r *DataReader) GetInt64(i int) (int64, error) {
	v, err := r.GetValue(i)
	if err != nil {
		return 0, err
	}
	return codec.ToInt64(v)
}

func (r *DataReader) GetInt32(i int) (int32, error) {
	v, err := r.GetValue(i)
	if err != nil {
		return 0, err
	}
	return codec.ToInt32(v)
}

func (r *DataReader) GetInt16(i int) (int16, error) {
	v, err := r.GetValue(i)
	if err != nil {
		return 0, err
	}
	return codec.ToInt16(v)
}

func (r *DataReader) GetDouble(i int) (float64, error) {
	v, err := r.GetValue(i)
	if err != nil {
		return 0, err
	}
	return codec.ToFloat64(v)
}

func (r *DataReader) GetString(i int) (string, error) {
	v, err := r.GetValue(i)
	if err != nil {
		return "", err
	}
	return codec.ToString(v)
}

// GetBoolean reads integers as non-zero = true and the text "1" or "true" as true.
func (r *DataReader) GetBoolean(i int) (bool, error) {
	v, err := r.GetValue(i)
	if err != nil {
		return false, err
	}
	return codec.ToBool(v)
}

// GetDateTime returns the value in UTC.
func (r *DataReader) GetDateTime(i int) (time.Time, error) {
	v, err := r.GetValue(i)
	if err != nil {
		return time.Time{}, err
	}
	return codec.ToTime(v)
}

func (r *DataReader) GetGUID(i int) (uuid.UUID, error) {
	v, err := r.GetValue(i)
	if err != nil {
		return uuid.Nil, err
	}
	return codec.ToGUID(v)
}

func (r *DataReader) GetBytes(i int) ([]byte, error) {
	v, err := r.GetValue(i)
	if err != nil {
		return nil, err
	}
	return codec.ToBytes(v)
}

// Close drops the buffered results. It is safe to call more than once.
func (r *DataReader) Close() error {
	r.closed = true
	r.tables = nil
	return nil
}

// IsClosed reports whether Close has been called.
func (r *DataReader) IsClosed() bool {
	return r.closed
}
