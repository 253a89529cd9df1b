package client

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
)

// IsolationLevel is recorded on a Transaction but not sent anywhere.
type IsolationLevel int

const (
	IsolationUnspecified IsolationLevel = iota
	IsolationReadUncommitted
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

var isolationNames = map[IsolationLevel]string{
	IsolationUnspecified:     "Unspecified",
	IsolationReadUncommitted: "ReadUncommitted",
	IsolationReadCommitted:   "ReadCommitted",
	IsolationRepeatableRead:  "RepeatableRead",
	IsolationSerializable:    "Serializable",
}

func (l IsolationLevel) String() string {
	if name, ok := isolationNames[l]; ok {
		return name
	}
	return "Unknown"
}

// Transaction modes, as in SQLite's BEGIN statement.
const (
	ModeDeferred  = "DEFERRED"
	ModeImmediate = "IMMEDIATE"
	ModeExclusive = "EXCLUSIVE"
)

// TxState is the lifecycle state of a Transaction. Committed and RolledBack
// are terminal.
type TxState int

const (
	TxActive TxState = iota
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxCommitted:
		return "Committed"
	case TxRolledBack:
		return "RolledBack"
	}
	return "Active"
}

// TxOptions configures BeginTransaction. An empty Mode means DEFERRED.
type TxOptions struct {
	Isolation IsolationLevel
	Mode      string
	ReadOnly  bool
}

// Transaction is local bookkeeping only. The pipeline endpoint has no
// transaction that spans batches, so Commit and Rollback change state here and
// nothing else: statements run by commands in a transaction are applied as
// they execute, and no atomicity holds beyond a single batch. A read-only
// transaction refuses INSERT, UPDATE and DELETE statements locally.
type Transaction struct {
	conn      *Connection
	id        uuid.UUID
	serverID  string
	isolation IsolationLevel
	mode      string
	readOnly  bool

	mu    sync.Mutex
	state TxState
}

// BeginTransaction starts a transaction on an open connection. Only one may be
// active per connection.
func (c *Connection) BeginTransaction(ctx context.Context, opts TxOptions) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, dberr.NewCanceledError(err)
	}

	mode := strings.ToUpper(strings.TrimSpace(opts.Mode))
	switch mode {
	case "":
		mode = ModeDeferred
	case ModeDeferred, ModeImmediate, ModeExclusive:
	default:
		return nil, dberr.Newf(dberr.KindInvalidParameter, "unknown transaction mode %q", opts.Mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return nil, dberr.NewInvalidStateError("connection is not open")
	}
	if c.tx != nil {
		return nil, dberr.Newf(dberr.KindInvalidState, "transaction %s is already active on this connection", c.tx.id)
	}

	tx := &Transaction{
		conn:      c,
		id:        uuid.New(),
		isolation: opts.Isolation,
		mode:      mode,
		readOnly:  opts.ReadOnly,
	}
	c.tx = tx
	c.logger.Debug("Began transaction", "txID", tx.id, "mode", mode, "isolation", opts.Isolation.String())
	return tx, nil
}

// ID is the locally generated transaction id.
func (tx *Transaction) ID() uuid.UUID { return tx.id }

// ServerID is the server side transaction id. Transactions never reach the
// server, so it is always empty.
func (tx *Transaction) ServerID() string { return tx.serverID }

func (tx *Transaction) IsolationLevel() IsolationLevel { return tx.isolation }
func (tx *Transaction) Mode() string                   { return tx.mode }
func (tx *Transaction) ReadOnly() bool                 { return tx.readOnly }
func (tx *Transaction) Connection() *Connection        { return tx.conn }

func (tx *Transaction) State() TxState {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Commit marks the transaction committed.
func (tx *Transaction) Commit() error {
	return tx.finish(TxCommitted)
}

// Rollback marks the transaction rolled back. Statements already executed
// are not undone.
func (tx *Transaction) Rollback() error {
	return tx.finish(TxRolledBack)
}

// Close rolls back an unresolved transaction. A rollback failure is logged
// and dropped. Closing a finished transaction is a no-op.
func (tx *Transaction) Close() error {
	if tx.State() != TxActive {
		return nil
	}
	if err := tx.Rollback(); err != nil {
		tx.conn.logger.Warn("Failed to roll back transaction on close", "txID", tx.id, "error", err)
	}
	return nil
}

func (tx *Transaction) finish(to TxState) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != TxActive {
		done := "committed"
		if tx.state == TxRolledBack {
			done = "rolled back"
		}
		return dberr.Newf(dberr.KindInvalidState, "transaction %s has already been %s", tx.id, done)
	}

	c := tx.conn
	c.mu.Lock()
	open := c.state == StateOpen
	if c.tx == tx {
		c.tx = nil
	}
	c.mu.Unlock()

	if !open && to == TxCommitted {
		tx.state = TxRolledBack
		return dberr.NewInvalidStateError("cannot commit: connection is not open")
	}

	tx.state = to
	c.logger.Debug("Finished transaction", "txID", tx.id, "state", to.String())
	return nil
}

// usable reports whether commands may run under tx.
func (tx *Transaction) usable(conn *Connection) error {
	if tx.conn != conn {
		return dberr.NewInvalidStateError("transaction belongs to a different connection")
	}
	if s := tx.State(); s != TxActive {
		return dberr.Newf(dberr.KindInvalidState, "transaction %s is %s", tx.id, s)
	}
	return nil
}
