package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomyedwab/libsqlhttp/libsql/libsqltest"
)

type cmdServe struct {
	global *cmdGlobal

	flagListen    string
	flagJWTSecret string
	flagIssue     time.Duration
}

// Command generates the command definition.
func (c *cmdServe) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "serve <database>"
	cmd.Short = "Serve a local SQLite file over the pipeline protocol"
	cmd.Long = `Description:
  Serve a local SQLite file over the pipeline protocol

  This is a development server. Requests must carry the token given with
  --token, or a HS256 JWT signed with --jwt-secret.
`
	cmd.Example = `  libsql-shell serve --token secret ./dev.db
  libsql-shell serve --jwt-secret key --issue 1h ./dev.db`
	cmd.RunE = c.Run
	cmd.Flags().StringVar(&c.flagListen, "listen", "127.0.0.1:8080", "Address to listen on")
	cmd.Flags().StringVar(&c.flagJWTSecret, "jwt-secret", "", "Accept HS256 tokens signed with this secret")
	cmd.Flags().DurationVar(&c.flagIssue, "issue", 0, "Print a token valid for this long (requires --jwt-secret)")

	return cmd
}

// Run runs the actual command logic.
func (c *cmdServe) Run(cmd *cobra.Command, args []string) error {
	// Quick checks.
	exit, err := c.global.CheckArgs(cmd, args, 1, 1)
	if exit {
		return err
	}

	var auth libsqltest.Authenticator
	switch {
	case c.flagJWTSecret != "":
		auth = libsqltest.JWTSecret(c.flagJWTSecret)
	case c.global.flagToken != "":
		auth = libsqltest.StaticToken(c.global.flagToken)
	default:
		return fmt.Errorf("Either --token or --jwt-secret is required")
	}

	if c.flagIssue > 0 {
		if c.flagJWTSecret == "" {
			return fmt.Errorf("--issue requires --jwt-secret")
		}

		token, err := libsqltest.IssueToken([]byte(c.flagJWTSecret), c.flagIssue)
		if err != nil {
			return fmt.Errorf("Failed to issue token: %w", err)
		}

		fmt.Println(token)
	}

	srv, err := libsqltest.Open(args[0],
		libsqltest.WithAuthenticator(auth),
		libsqltest.WithLogger(c.global.logger),
		libsqltest.WithoutRecording())
	if err != nil {
		return err
	}

	defer func() { _ = srv.Close() }()

	httpServer := &http.Server{
		Addr:              c.flagListen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		c.global.logger.Info("Shutting down pipeline server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	c.global.logger.Info("Serving pipeline endpoint", "listen", c.flagListen, "database", args[0])
	err = httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("Server failed: %w", err)
	}

	return nil
}
