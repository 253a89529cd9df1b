package client

import (
	"context"
	"time"

	"github.com/tomyedwab/libsqlhttp/libsql/batch"
	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/interpret"
	"github.com/tomyedwab/libsqlhttp/libsql/sqltext"
)

// Command is SQL text plus bound parameters, executed against a Connection.
// The text may hold several statements separated by ';'.
type Command struct {
	Text string

	// Timeout bounds each execution. Zero means no timeout.
	Timeout time.Duration

	// Transaction, when set, must be active and belong to the same connection.
	Transaction *Transaction

	conn   *Connection
	params ParameterCollection
	closed bool
}

// Result is the outcome of Exec.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// CreateCommand returns a command bound to c. It picks up the connection's
// active transaction, if any.
func (c *Connection) CreateCommand(text string) *Command {
	return &Command{Text: text, conn: c, Transaction: c.ActiveTransaction()}
}

func (cmd *Command) Connection() *Connection {
	return cmd.conn
}

func (cmd *Command) Parameters() *ParameterCollection {
	return &cmd.params
}

// Cancel always fails: a posted batch cannot be stopped. Cancel the context
// passed to the execute call instead.
func (cmd *Command) Cancel() error {
	return dberr.NewUnsupportedError("command cancellation")
}

// Close releases the command. Executing a closed command is an InvalidState error.
func (cmd *Command) Close() error {
	cmd.closed = true
	cmd.params.Clear()
	return nil
}

func (cmd *Command) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if cmd.closed {
		return nil, nil, dberr.NewInvalidStateError("command is closed")
	}
	if cmd.conn.State() != StateOpen {
		return nil, nil, dberr.NewInvalidStateError("connection is not open")
	}
	if cmd.Transaction != nil {
		if err := cmd.Transaction.usable(cmd.conn); err != nil {
			return nil, nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, dberr.NewCanceledError(err)
	}

	if cmd.Timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, cmd.Timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

func (cmd *Command) checkWrites(kinds []sqltext.Kind) error {
	if cmd.Transaction == nil || !cmd.Transaction.ReadOnly() {
		return nil
	}
	for _, k := range kinds {
		if k != sqltext.Other {
			return dberr.Newf(dberr.KindInvalidState, "%s is not allowed in a read-only transaction", k).WithSQL(cmd.Text)
		}
	}
	return nil
}

// ExecuteNonQuery is ExecuteNonQueryContext with a background context.
func (cmd *Command) ExecuteNonQuery() (int64, error) {
	return cmd.ExecuteNonQueryContext(context.Background())
}

// ExecuteNonQueryContext runs every statement and returns the total number of
// affected rows.
func (cmd *Command) ExecuteNonQueryContext(ctx context.Context) (int64, error) {
	res, err := cmd.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// Exec posts one batch per statement. UPDATE and DELETE statements with an Id
// predicate are concurrency checked; see batch.Build. The first failing
// statement stops execution and earlier statements stay applied.
func (cmd *Command) Exec(ctx context.Context) (Result, error) {
	ctx, cancel, err := cmd.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer cancel()

	stmts := sqltext.Split(cmd.Text)
	kinds := sqltext.ClassifyEach(stmts)
	if err := cmd.checkWrites(kinds); err != nil {
		return Result{}, err
	}

	var res Result
	for i, stmt := range stmts {
		plan, err := batch.Build(kinds[i], stmt, &cmd.params)
		if err != nil {
			return res, err
		}
		ex, err := cmd.conn.post(ctx, plan)
		if err != nil {
			return res, err
		}
		out, err := interpret.NonQuery(ex, plan)
		if err != nil {
			return res, err
		}
		res.RowsAffected += out.RowsAffected
		if out.LastInsertID != 0 {
			res.LastInsertID = out.LastInsertID
		}
	}

	return res, nil
}

// ExecuteScalar is ExecuteScalarContext with a background context.
func (cmd *Command) ExecuteScalar() (any, error) {
	return cmd.ExecuteScalarContext(context.Background())
}

// ExecuteScalarContext posts all statements in one batch and returns the first
// column of the first row of the last result with rows. See interpret.Scalar
// for what is returned when there are no rows.
func (cmd *Command) ExecuteScalarContext(ctx context.Context) (any, error) {
	ctx, cancel, err := cmd.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	stmts := sqltext.Split(cmd.Text)
	if err := cmd.checkWrites(sqltext.ClassifyEach(stmts)); err != nil {
		return nil, err
	}
	plan, err := batch.BuildScript(stmts, &cmd.params)
	if err != nil {
		return nil, err
	}
	ex, err := cmd.conn.post(ctx, plan)
	if err != nil {
		return nil, err
	}
	return interpret.Scalar(ex, plan, cmd.Text)
}

// ExecuteReader is ExecuteReaderContext with a background context.
func (cmd *Command) ExecuteReader() (*DataReader, error) {
	return cmd.ExecuteReaderContext(context.Background())
}

// ExecuteReaderContext posts all statements in one batch and returns a reader
// over every result that has columns.
func (cmd *Command) ExecuteReaderContext(ctx context.Context) (*DataReader, error) {
	ctx, cancel, err := cmd.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	stmts := sqltext.Split(cmd.Text)
	if err := cmd.checkWrites(sqltext.ClassifyEach(stmts)); err != nil {
		return nil, err
	}
	plan, err := batch.BuildScript(stmts, &cmd.params)
	if err != nil {
		return nil, err
	}
	ex, err := cmd.conn.post(ctx, plan)
	if err != nil {
		return nil, err
	}
	tables, affected, err := interpret.Tables(ex, plan)
	if err != nil {
		return nil, err
	}
	return newDataReader(tables, affected), nil
}
