package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tomyedwab/libsqlhttp/libsql/client"
	"github.com/tomyedwab/libsqlhttp/libsql/codec"
	"github.com/tomyedwab/libsqlhttp/libsql/interpret"
	"github.com/tomyedwab/libsqlhttp/libsql/sqltext"
)

type cmdQuery struct {
	global *cmdGlobal

	flagTimeout time.Duration
}

// Command generates the command definition.
func (c *cmdQuery) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "query <SQL>"
	cmd.Short = "Run SQL statements"
	cmd.Long = `Description:
  Run SQL statements

  Statements that return columns are printed as tables, anything else
  prints the number of affected rows. Pass "-" to read SQL from stdin.
`
	cmd.Example = `  libsql-shell query "SELECT * FROM blogs"
  libsql-shell query - < migration.sql`
	cmd.RunE = c.Run
	cmd.Flags().DurationVar(&c.flagTimeout, "timeout", 30*time.Second, "Per request timeout")

	return cmd
}

// Run runs the actual command logic.
func (c *cmdQuery) Run(cmd *cobra.Command, args []string) error {
	// Quick checks.
	exit, err := c.global.CheckArgs(cmd, args, 1, 1)
	if exit {
		return err
	}

	query := args[0]
	if query == "-" {
		// Read from stdin
		bytes, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("Failed to read from stdin: %w", err)
		}

		query = string(bytes)
	}

	conn, err := c.global.connect(cmd)
	if err != nil {
		return err
	}

	defer func() { _ = conn.Close() }()

	out := cmd.OutOrStdout()
	stmts := sqltext.Split(query)
	for i, stmt := range stmts {
		if len(stmts) > 1 {
			fmt.Fprintf(out, "=> Query %d:\n\n", i)
		}

		err := c.runStatement(cmd, conn, stmt)
		if err != nil {
			return err
		}

		if len(stmts) > 1 {
			fmt.Fprintln(out, "")
		}
	}

	return nil
}

func (c *cmdQuery) runStatement(cmd *cobra.Command, conn *client.Connection, stmt string) error {
	command := conn.CreateCommand(stmt)
	command.Timeout = c.flagTimeout
	defer func() { _ = command.Close() }()

	if sqltext.Classify(stmt, sqltext.PrefixPolicy) != sqltext.Other {
		n, err := command.ExecuteNonQueryContext(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Rows affected: %d\n", n)
		return nil
	}

	reader, err := command.ExecuteReaderContext(cmd.Context())
	if err != nil {
		return err
	}

	defer func() { _ = reader.Close() }()

	if reader.FieldCount() == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Rows affected: %d\n", reader.RecordsAffected())
		return nil
	}

	return printReader(cmd.OutOrStdout(), reader)
}

type rowReader interface {
	Columns() []interpret.Column
	Read() bool
	Values(dest []any) error
}

func printReader(w io.Writer, reader rowReader) error {
	header := []string{}
	for _, col := range reader.Columns() {
		header = append(header, col.Name)
	}

	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(header)

	values := make([]any, len(header))
	for reader.Read() {
		err := reader.Values(values)
		if err != nil {
			return fmt.Errorf("Failed to read row: %w", err)
		}

		data := []string{}
		for _, v := range values {
			data = append(data, formatValue(v))
		}

		table.Append(data)
	}

	table.Render()
	return nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return codec.FormatTime(v)
	case []byte:
		return fmt.Sprintf("x'%x'", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
