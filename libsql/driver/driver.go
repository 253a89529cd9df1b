package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/tomyedwab/libsqlhttp/libsql/client"
	"github.com/tomyedwab/libsqlhttp/libsql/codec"
	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/sqltext"
	"github.com/tomyedwab/libsqlhttp/libsql/transport"
)

const driverName = "libsql"

func init() {
	sql.Register(driverName, &Driver{})
}

var (
	_ driver.DriverContext      = (*Driver)(nil)
	_ driver.Connector          = (*Connector)(nil)
	_ driver.ExecerContext      = (*Conn)(nil)
	_ driver.QueryerContext     = (*Conn)(nil)
	_ driver.ConnBeginTx        = (*Conn)(nil)
	_ driver.ConnPrepareContext = (*Conn)(nil)
	_ driver.Pinger             = (*Conn)(nil)
	_ driver.SessionResetter    = (*Conn)(nil)
	_ driver.Validator          = (*Conn)(nil)
	_ driver.NamedValueChecker  = (*Conn)(nil)
	_ driver.StmtExecContext    = (*Stmt)(nil)
	_ driver.StmtQueryContext   = (*Stmt)(nil)
	_ driver.RowsNextResultSet  = (*Rows)(nil)
)

// --- Driver implementation ---

// Driver is the database/sql driver for pipeline endpoints.
type Driver struct{}

// Open returns a new open connection for dsn ("<baseUrl>;<bearerToken>").
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	c, err := d.OpenConnector(dsn)
	if err != nil {
		return nil, err
	}
	return c.Connect(context.Background())
}

// OpenConnector parses dsn once for every connection of a pool.
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	return NewConnector(dsn)
}

// Connector creates connections for one DSN.
type Connector struct {
	dsn  string
	opts []client.Option
}

// NewConnector validates dsn. Use it with sql.OpenDB to pass client options
// such as a logger or HTTP client.
func NewConnector(dsn string, opts ...client.Option) (*Connector, error) {
	if _, err := transport.ParseConnectionString(dsn); err != nil {
		return nil, err
	}
	return &Connector{dsn: dsn, opts: opts}, nil
}

// Connect opens a new client connection.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := client.NewConnection(c.dsn, c.opts...)
	if err != nil {
		return nil, err
	}
	if err := conn.OpenContext(ctx); err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

func (c *Connector) Driver() driver.Driver {
	return &Driver{}
}

// --- Connection implementation ---

// Conn implements the driver.Conn interface.
type Conn struct {
	conn *client.Connection
}

// Client returns the underlying client connection.
func (c *Conn) Client() *client.Connection {
	return c.conn
}

// Prepare returns a statement that is sent with every execution; there is no
// server side preparation.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if !c.IsValid() {
		return nil, driver.ErrBadConn
	}
	return &Stmt{conn: c, query: query}, nil
}

// Close closes the connection, rolling back any open transaction.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx starts a local transaction; see client.Transaction for what that
// does and does not guarantee.
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if !c.IsValid() {
		return nil, driver.ErrBadConn
	}

	var isolation client.IsolationLevel
	switch sql.IsolationLevel(opts.Isolation) {
	case sql.LevelDefault:
		isolation = client.IsolationUnspecified
	case sql.LevelReadUncommitted:
		isolation = client.IsolationReadUncommitted
	case sql.LevelReadCommitted:
		isolation = client.IsolationReadCommitted
	case sql.LevelRepeatableRead:
		isolation = client.IsolationRepeatableRead
	case sql.LevelSerializable:
		isolation = client.IsolationSerializable
	default:
		return nil, dberr.NewUnsupportedError(fmt.Sprintf("isolation level %s", sql.IsolationLevel(opts.Isolation)))
	}

	tx, err := c.conn.BeginTransaction(ctx, client.TxOptions{Isolation: isolation, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

func (c *Conn) Ping(ctx context.Context) error {
	if !c.IsValid() {
		return driver.ErrBadConn
	}
	return c.conn.PingContext(ctx)
}

// ExecContext runs query and reports the summed row count and the last
// insert id of the statements in it.
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if !c.IsValid() {
		return nil, driver.ErrBadConn
	}
	cmd, err := c.command(query, args)
	if err != nil {
		return nil, err
	}
	defer cmd.Close()

	res, err := cmd.Exec(ctx)
	if err != nil {
		return nil, err
	}
	return &libsqlResult{lastInsertID: res.LastInsertID, rowsAffected: res.RowsAffected}, nil
}

func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if !c.IsValid() {
		return nil, driver.ErrBadConn
	}
	cmd, err := c.command(query, args)
	if err != nil {
		return nil, err
	}
	defer cmd.Close()

	reader, err := cmd.ExecuteReaderContext(ctx)
	if err != nil {
		return nil, err
	}
	return &Rows{reader: reader}, nil
}

// command binds args by name. Positional argument k binds @p{k-1}; a query
// written with ? placeholders and no @name ones has them numbered to match.
func (c *Conn) command(query string, args []driver.NamedValue) (*client.Command, error) {
	if len(args) > 0 && len(sqltext.Placeholders(query)) == 0 {
		if numbered, ok := sqltext.NumberPositional(query); ok {
			query = numbered
		}
	}

	cmd := c.conn.CreateCommand(query)
	for _, arg := range args {
		name := arg.Name
		if name == "" {
			name = fmt.Sprintf("p%d", arg.Ordinal-1)
		}
		if err := cmd.Parameters().Add(codec.NewParameter(name, arg.Value)); err != nil {
			return nil, err
		}
	}
	return cmd, nil
}

// ResetSession refuses to hand a closed connection back to the pool.
func (c *Conn) ResetSession(ctx context.Context) error {
	if !c.IsValid() {
		return driver.ErrBadConn
	}
	return nil
}

func (c *Conn) IsValid() bool {
	return c.conn.State() == client.StateOpen
}

// CheckNamedValue accepts every value as is. The codec decides how it goes
// on the wire, so uuid.UUID and other types need no driver.Valuer.
func (c *Conn) CheckNamedValue(nv *driver.NamedValue) error {
	return nil
}

// --- Statement implementation ---

// Stmt implements the driver.Stmt interface.
type Stmt struct {
	conn  *Conn
	query string
}

func (s *Stmt) Close() error {
	return nil
}

// NumInput returns -1; placeholders are resolved by name at execution.
func (s *Stmt) NumInput() int {
	return -1
}

func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.conn.ExecContext(context.Background(), s.query, namedValues(args))
}

func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.conn.QueryContext(context.Background(), s.query, namedValues(args))
}

func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

// --- Transaction implementation ---

// Tx implements the driver.Tx interface.
type Tx struct {
	tx *client.Transaction
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// --- Result implementation ---

type libsqlResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r *libsqlResult) LastInsertId() (int64, error) {
	return r.lastInsertID, nil
}

func (r *libsqlResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- Rows implementation ---

// Rows iterates a fully buffered DataReader.
type Rows struct {
	reader *client.DataReader
}

func (r *Rows) Columns() []string {
	cols := r.reader.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func (r *Rows) Close() error {
	return r.reader.Close()
}

func (r *Rows) Next(dest []driver.Value) error {
	if !r.reader.Read() {
		return io.EOF
	}
	for i := range dest {
		v, err := r.reader.GetValue(i)
		if err != nil {
			return err
		}
		dest[i] = v
	}
	return nil
}

func (r *Rows) HasNextResultSet() bool {
	return r.reader.HasNextResult()
}

func (r *Rows) NextResultSet() error {
	if !r.reader.NextResult() {
		return io.EOF
	}
	return nil
}

func (r *Rows) ColumnTypeDatabaseTypeName(index int) string {
	return strings.ToUpper(client.DataTypeName(r.reader.Columns()[index]))
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

func (r *Rows) ColumnTypeScanType(index int) reflect.Type {
	if t := r.reader.Columns()[index].Type; t != nil {
		return t
	}
	return anyType
}

// ColumnTypeNullable reports ok=false: the server does not send nullability.
func (r *Rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	return true, false
}
