// Package libsqltest serves the pipeline protocol over a local SQLite
// database. It is meant for tests and local development, not production.
//
// Every batch runs on one dedicated SQLite connection, so changes() and
// last_insert_rowid() see the statements before them in the same batch.
package libsqltest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/tomyedwab/libsqlhttp/libsql/codec"
	"github.com/tomyedwab/libsqlhttp/libsql/types"
)

// Server handles pipeline requests for one SQLite database.
type Server struct {
	db     *sqlx.DB
	auth   Authenticator
	logger *slog.Logger

	mu         sync.Mutex
	noRecord   bool
	requests   [][]byte
	failStatus int
	failBody   string
}

// Option represents a functional option for configuring the Server
type Option func(*Server)

// WithAuthenticator sets how bearer tokens are checked. Without one every
// request is accepted.
func WithAuthenticator(auth Authenticator) Option {
	return func(s *Server) {
		s.auth = auth
	}
}

// WithLogger sets the logger. It defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithoutRecording stops the server from keeping request bodies, for long
// running servers.
func WithoutRecording() Option {
	return func(s *Server) {
		s.noRecord = true
	}
}

// New creates a Server over db. The caller keeps ownership of db.
func New(db *sqlx.DB, opts ...Option) *Server {
	s := &Server{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Open connects to the SQLite database at path and creates a Server over it.
func Open(path string, opts ...Option) (*Server, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return New(db, opts...), nil
}

// DB returns the backing database.
func (s *Server) DB() *sqlx.DB {
	return s.db
}

// Close closes the backing database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Requests returns the raw bodies of every batch received so far.
func (s *Server) Requests() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest decodes the most recent batch.
func (s *Server) LastRequest() (*types.PipelineRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil, errors.New("no requests received")
	}
	var req types.PipelineRequest
	if err := json.Unmarshal(s.requests[len(s.requests)-1], &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// FailNext makes the next request fail with status and body without touching
// the database.
func (s *Server) FailNext(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
	s.failBody = body
}

func (s *Server) takeFailure() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, body := s.failStatus, s.failBody
	s.failStatus, s.failBody = 0, ""
	return status, body
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.auth != nil {
		if err := s.auth.Authenticate(r); err != nil {
			s.logger.Warn("Rejected pipeline request", "remote", r.RemoteAddr, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	if !s.noRecord {
		s.requests = append(s.requests, body)
	}
	s.mu.Unlock()

	if status, failBody := s.takeFailure(); status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(failBody))
		return
	}

	var req types.PipelineRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, fmt.Sprintf("invalid pipeline request: %v", err), http.StatusBadRequest)
		return
	}

	resp, err := s.Execute(r.Context(), &req, r.URL.Query().Get("mode") == "ro")
	if err != nil {
		s.logger.Error("Pipeline batch failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(types.PipelineResponse{
			Type:  types.ResultError,
			Error: &types.StreamError{Message: err.Error()},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Execute runs a batch on a dedicated connection. Statement failures are
// reported in the matching result entry and do not stop the batch; the error
// return is for failures that affect the whole batch.
func (s *Server) Execute(ctx context.Context, req *types.PipelineRequest, readOnly bool) (*types.PipelineResponse, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if readOnly {
		if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			return nil, fmt.Errorf("failed to enable query_only: %w", err)
		}
		defer func() {
			_, _ = conn.ExecContext(context.Background(), "PRAGMA query_only = OFF")
		}()
	}

	resp := &types.PipelineResponse{Results: make([]types.StreamResult, 0, len(req.Requests))}
	for _, sr := range req.Requests {
		switch sr.Type {
		case types.RequestExecute:
			if sr.Stmt == nil {
				resp.Results = append(resp.Results, errorResult(errors.New("execute request has no stmt")))
				continue
			}
			res, err := s.execute(ctx, conn, sr.Stmt)
			if err != nil {
				resp.Results = append(resp.Results, errorResult(err))
				continue
			}
			resp.Results = append(resp.Results, types.StreamResult{
				Type:     types.ResultOK,
				Response: &types.StreamResponse{Type: types.RequestExecute, Result: res},
			})
		case types.RequestClose:
			resp.Results = append(resp.Results, types.StreamResult{
				Type:     types.ResultOK,
				Response: &types.StreamResponse{Type: types.RequestClose},
			})
		default:
			resp.Results = append(resp.Results, errorResult(fmt.Errorf("unknown request type %q", sr.Type)))
		}
	}

	s.logger.Debug("Executed pipeline batch", "requests", len(req.Requests), "readOnly", readOnly)
	return resp, nil
}

func (s *Server) execute(ctx context.Context, conn *sqlx.Conn, stmt *types.Stmt) (*types.ExecuteResult, error) {
	args := make([]any, len(stmt.Args))
	for i, v := range stmt.Args {
		args[i] = codec.DecodeValue(v)
	}

	var before int64
	if err := conn.QueryRowxContext(ctx, "SELECT total_changes()").Scan(&before); err != nil {
		return nil, fmt.Errorf("failed to read total_changes: %w", err)
	}

	rows, err := conn.QueryxContext(ctx, stmt.SQL, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	res := &types.ExecuteResult{Cols: make([]types.Col, len(colTypes)), Rows: [][]types.Cell{}}
	for i, ct := range colTypes {
		res.Cols[i] = types.Col{Name: ct.Name(), Decltype: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]types.Cell, len(values))
		for i, v := range values {
			enc, err := codec.EncodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode column %d: %w", i, err)
			}
			row[i] = types.CellOf(enc)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	// changes() still holds the previous write after a plain SELECT, so it is
	// only trusted when total_changes() moved.
	var after, changes int64
	var lastID sql.NullInt64
	if err := conn.QueryRowxContext(ctx, "SELECT total_changes(), changes(), last_insert_rowid()").Scan(&after, &changes, &lastID); err != nil {
		return nil, fmt.Errorf("failed to read changes: %w", err)
	}
	if after != before {
		res.AffectedRowCount = changes
	}
	if (after != before || len(colTypes) == 0) && lastID.Valid && lastID.Int64 != 0 {
		id := strconv.FormatInt(lastID.Int64, 10)
		res.LastInsertRowID = &id
	}

	return res, nil
}

var errorCodes = map[sqlite3.ErrNo]string{
	sqlite3.ErrConstraint: "SQLITE_CONSTRAINT",
	sqlite3.ErrBusy:       "SQLITE_BUSY",
	sqlite3.ErrLocked:     "SQLITE_LOCKED",
	sqlite3.ErrReadonly:   "SQLITE_READONLY",
	sqlite3.ErrPerm:       "SQLITE_PERM",
	sqlite3.ErrMismatch:   "SQLITE_MISMATCH",
	sqlite3.ErrRange:      "SQLITE_RANGE",
	sqlite3.ErrTooBig:     "SQLITE_TOOBIG",
}

func errorResult(err error) types.StreamResult {
	code := "SQLITE_ERROR"
	var se sqlite3.Error
	if errors.As(err, &se) {
		if c, ok := errorCodes[se.Code]; ok {
			code = c
		}
	}
	return types.StreamResult{
		Type:  types.ResultError,
		Error: &types.StreamError{Message: err.Error(), Code: code},
	}
}
