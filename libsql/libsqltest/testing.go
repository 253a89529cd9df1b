package libsqltest

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

// DefaultToken is the bearer token NewTest servers accept.
const DefaultToken = "test-token"

// TestServer is a Server listening on a local httptest server.
type TestServer struct {
	*Server
	HTTP  *httptest.Server
	Token string
}

// URL is the pipeline endpoint.
func (ts *TestServer) URL() string {
	return ts.HTTP.URL
}

// DSN is the connection string for the server.
func (ts *TestServer) DSN() string {
	return ts.HTTP.URL + ";" + ts.Token
}

// NewTest starts a server over a fresh SQLite file in t.TempDir() that
// accepts DefaultToken. Everything is torn down when the test ends.
func NewTest(t testing.TB, opts ...Option) *TestServer {
	t.Helper()

	db := sqlx.MustConnect("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	opts = append([]Option{WithAuthenticator(StaticToken(DefaultToken))}, opts...)
	srv := New(db, opts...)
	httpSrv := httptest.NewServer(srv)

	t.Cleanup(func() {
		httpSrv.Close()
		_ = db.Close()
	})

	return &TestServer{Server: srv, HTTP: httpSrv, Token: DefaultToken}
}
