package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomyedwab/libsqlhttp/libsql/transport"
)

type cmdPing struct {
	global *cmdGlobal
}

// Command generates the command definition.
func (c *cmdPing) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "ping"
	cmd.Short = "Check that the endpoint answers"
	cmd.Long = `Description:
  Check that the endpoint answers

  This sends a single SELECT 1 and reports the round trip time.
`
	cmd.RunE = c.Run

	return cmd
}

// Run runs the actual command logic.
func (c *cmdPing) Run(cmd *cobra.Command, args []string) error {
	// Quick checks.
	exit, err := c.global.CheckArgs(cmd, args, 0, 0)
	if exit {
		return err
	}

	conn, err := c.global.connect(cmd)
	if err != nil {
		return err
	}

	defer func() { _ = conn.Close() }()

	start := time.Now()
	err = conn.PingContext(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s)\n", conn.DataSource(), time.Since(start).Round(time.Millisecond))

	cfg, err := transport.ParseConnectionString(conn.ConnectionString())
	if err == nil {
		expiry, ok := transport.TokenExpiry(cfg.Token)
		if ok {
			fmt.Fprintf(cmd.OutOrStdout(), "Token expires: %s\n", expiry.Local().Format(time.RFC1123))
		}
	}

	return nil
}
