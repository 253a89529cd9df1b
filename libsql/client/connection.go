// Package client exposes a remote pipeline endpoint through the usual
// relational client shapes: Connection, Command, ParameterCollection,
// Transaction and DataReader.
//
// Connections and commands are meant for use by one goroutine at a time. The
// underlying HTTP client is shared and safe for concurrent use.
package client

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tomyedwab/libsqlhttp/libsql/batch"
	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/interpret"
	"github.com/tomyedwab/libsqlhttp/libsql/transport"
)

// State is the lifecycle state of a Connection.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "Open"
	}
	return "Closed"
}

// Option represents a functional option for configuring a Connection
type Option func(*Connection)

// WithLogger sets the logger. It defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the shared pooled HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connection) {
		c.httpClient = client
	}
}

// Connection is a handle on one remote database.
type Connection struct {
	connString string
	cfg        transport.Config
	opts       []Option
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	state State
	tr    *transport.Client
	tx    *Transaction
}

// NewConnection parses cs ("<baseUrl>;<bearerToken>") and returns a closed
// connection.
func NewConnection(cs string, opts ...Option) (*Connection, error) {
	cfg, err := transport.ParseConnectionString(cs)
	if err != nil {
		return nil, err
	}

	c := &Connection{connString: cs, cfg: cfg, opts: opts}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// ReadOnly returns a new closed connection to the same database with the
// mode=ro flag on its base URL. The flag is passed through to the server.
func (c *Connection) ReadOnly() (*Connection, error) {
	cs, err := transport.ReadOnly(c.connString)
	if err != nil {
		return nil, err
	}
	return NewConnection(cs, c.opts...)
}

// Open is OpenContext with a background context.
func (c *Connection) Open() error {
	return c.OpenContext(context.Background())
}

// OpenContext acquires the HTTP client. Opening an open connection is a no-op.
func (c *Connection) OpenContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dberr.NewCanceledError(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateOpen {
		return nil
	}

	opts := []transport.Option{transport.WithLogger(c.logger)}
	if c.httpClient != nil {
		opts = append(opts, transport.WithHTTPClient(c.httpClient))
	}
	c.tr = transport.New(c.cfg, opts...)

	if exp, ok := transport.TokenExpiry(c.cfg.Token); ok && exp.Before(time.Now()) {
		c.logger.Warn("Bearer token has expired", "baseURL", c.cfg.BaseURL, "expiredAt", exp)
	}

	c.state = StateOpen
	return nil
}

// Close rolls back any unresolved transaction and releases the HTTP client.
// Closing a closed connection is a no-op; the connection may be reopened.
func (c *Connection) Close() error {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()

	if tx != nil {
		_ = tx.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tx = nil
	c.tr = nil
	c.state = StateClosed
	return nil
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DataSource returns the base URL.
func (c *Connection) DataSource() string {
	return c.cfg.BaseURL
}

// Database always returns "main".
func (c *Connection) Database() string {
	return "main"
}

// ConnectionString returns the string the connection was created from.
func (c *Connection) ConnectionString() string {
	return c.connString
}

// ChangeDatabase always fails; an endpoint serves exactly one database.
func (c *Connection) ChangeDatabase(name string) error {
	return dberr.NewUnsupportedError("ChangeDatabase")
}

// Ping is PingContext with a background context.
func (c *Connection) Ping() error {
	return c.PingContext(context.Background())
}

// PingContext runs SELECT 1 against the server.
func (c *Connection) PingContext(ctx context.Context) error {
	plan, err := batch.BuildScript([]string{"SELECT 1"}, nil)
	if err != nil {
		return err
	}
	ex, err := c.post(ctx, plan)
	if err != nil {
		return err
	}
	_, err = interpret.Scalar(ex, plan, "SELECT 1")
	return err
}

// ActiveTransaction returns the unresolved transaction, if any.
func (c *Connection) ActiveTransaction() *Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx
}

func (c *Connection) acquire() (*transport.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return nil, dberr.NewInvalidStateError("connection is not open")
	}
	return c.tr, nil
}

func (c *Connection) post(ctx context.Context, plan *batch.Plan) (*transport.Exchange, error) {
	tr, err := c.acquire()
	if err != nil {
		return nil, err
	}
	return tr.Post(ctx, plan.Pipeline(), plan.SQL)
}
