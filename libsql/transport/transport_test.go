package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/transport"
	"github.com/tomyedwab/libsqlhttp/libsql/types"
)

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		name    string
		cs      string
		want    transport.Config
		wantErr bool
	}{
		{name: "valid", cs: "https://db.example.com;secret", want: transport.Config{BaseURL: "https://db.example.com", Token: "secret"}},
		{name: "trimmed", cs: " http://localhost:8080 ; tok ", want: transport.Config{BaseURL: "http://localhost:8080", Token: "tok"}},
		{name: "missing token", cs: "https://db.example.com", wantErr: true},
		{name: "empty token", cs: "https://db.example.com;", wantErr: true},
		{name: "too many segments", cs: "https://db.example.com;a;b", wantErr: true},
		{name: "relative url", cs: "db.example.com;secret", wantErr: true},
		{name: "wrong scheme", cs: "ftp://db.example.com;secret", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transport.ParseConnectionString(tt.cs)
			if tt.wantErr {
				require.True(t, dberr.IsConfigurationError(err))
				require.Contains(t, err.Error(), transport.ConnectionStringFormat)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestReadOnly(t *testing.T) {
	cs, err := transport.ReadOnly("https://db.example.com/v2/pipeline;secret")
	require.NoError(t, err)
	require.Equal(t, "https://db.example.com/v2/pipeline?mode=ro;secret", cs)

	_, err = transport.ReadOnly("nope")
	require.True(t, dberr.IsConfigurationError(err))
}

func newServer(t *testing.T, handler http.HandlerFunc) *transport.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return transport.New(transport.Config{BaseURL: srv.URL, Token: "secret"}, transport.WithHTTPClient(srv.Client()))
}

func TestPost(t *testing.T) {
	var gotAuth, gotType string
	var gotBody types.PipelineRequest

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"results":[{"type":"ok","response":{"type":"execute","result":{"cols":[],"rows":[],"affected_row_count":2,"last_insert_rowid":null}}},{"type":"ok","response":{"type":"close"}}]}`))
	})

	req := &types.PipelineRequest{Requests: []types.StreamRequest{
		types.ExecuteRequest("DELETE FROM t", nil),
		types.CloseRequest(),
	}}
	ex, err := c.Post(context.Background(), req, "DELETE FROM t")
	require.NoError(t, err)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "application/json", gotType)
	require.Len(t, gotBody.Requests, 2)
	require.Equal(t, http.StatusOK, ex.StatusCode)
	require.Len(t, ex.Response.Results, 2)
	require.Equal(t, int64(2), ex.Response.Results[0].Response.Result.AffectedRowCount)
}

func TestPostFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   dberr.Kind
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", kind: dberr.KindTransport},
		{name: "unauthorized", status: http.StatusUnauthorized, body: "", kind: dberr.KindTransport},
		{name: "not json", status: http.StatusOK, body: "<html>", kind: dberr.KindTransport},
		{name: "batch error", status: http.StatusOK, body: `{"type":"error","error":{"message":"no such stream"}}`, kind: dberr.KindProtocol},
		{name: "no results", status: http.StatusOK, body: `{}`, kind: dberr.KindProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Post(context.Background(), &types.PipelineRequest{}, "SELECT 1")
			require.True(t, dberr.IsKind(err, tt.kind))
			require.True(t, dberr.IsTransportError(err))

			e, ok := dberr.As(err)
			require.True(t, ok)
			require.Equal(t, tt.status, e.StatusCode)
			require.Equal(t, tt.body, e.ResponseBody)
			require.Equal(t, "SELECT 1", e.SQL)
			require.JSONEq(t, `{"requests":null}`, e.RequestBody)
		})
	}
}

func TestPostCanceled(t *testing.T) {
	release := make(chan struct{})
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Post(ctx, &types.PipelineRequest{}, "SELECT 1")
	require.True(t, dberr.IsCanceled(err))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(-time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)

	got, ok := transport.TokenExpiry(token)
	require.True(t, ok)
	require.True(t, got.Equal(exp))

	_, ok = transport.TokenExpiry("not-a-jwt")
	require.False(t, ok)
}
