package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tomyedwab/libsqlhttp/libsql/client"
)

type cmdGlobal struct {
	flagURL   string
	flagToken string
	flagDebug bool

	logger *slog.Logger
}

func main() {
	app := &cobra.Command{}
	app.Use = "libsql-shell"
	app.Short = "Run SQL against a libSQL pipeline endpoint"
	app.Long = `Description:
  Run SQL against a libSQL pipeline endpoint

  The endpoint and token come from --url and --token, or from the
  LIBSQL_URL and LIBSQL_AUTH_TOKEN environment variables.
`
	app.SilenceUsage = true
	app.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}

	// Global flags.
	globalCmd := cmdGlobal{}
	app.PersistentFlags().StringVar(&globalCmd.flagURL, "url", os.Getenv("LIBSQL_URL"), "Pipeline endpoint URL")
	app.PersistentFlags().StringVar(&globalCmd.flagToken, "token", os.Getenv("LIBSQL_AUTH_TOKEN"), "Bearer token")
	app.PersistentFlags().BoolVar(&globalCmd.flagDebug, "debug", false, "Show debug messages")
	app.PersistentPreRun = globalCmd.PreRun

	// query sub-command.
	queryCmd := cmdQuery{global: &globalCmd}
	app.AddCommand(queryCmd.Command())

	// ping sub-command.
	pingCmd := cmdPing{global: &globalCmd}
	app.AddCommand(pingCmd.Command())

	// serve sub-command.
	serveCmd := cmdServe{global: &globalCmd}
	app.AddCommand(serveCmd.Command())

	// Run the main command and handle errors.
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// PreRun sets up logging for every sub-command.
func (c *cmdGlobal) PreRun(cmd *cobra.Command, args []string) {
	level := slog.LevelInfo
	if c.flagDebug {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(c.logger)
}

// CheckArgs validates the number of arguments passed to the function and shows the help if incorrect.
func (c *cmdGlobal) CheckArgs(cmd *cobra.Command, args []string, minArgs int, maxArgs int) (bool, error) {
	if len(args) < minArgs || (maxArgs != -1 && len(args) > maxArgs) {
		_ = cmd.Help()

		if len(args) == 0 {
			return true, nil
		}

		return true, fmt.Errorf("Invalid number of arguments")
	}

	return false, nil
}

// token returns the bearer token, prompting for it when stdin is a terminal.
func (c *cmdGlobal) token() (string, error) {
	if c.flagToken != "" {
		return c.flagToken, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("No token given, set --token or LIBSQL_AUTH_TOKEN")
	}

	fmt.Fprint(os.Stderr, "Token: ")
	tokenBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("Failed to read token: %w", err)
	}

	token := strings.TrimSpace(string(tokenBytes))
	if token == "" {
		return "", fmt.Errorf("Token cannot be empty")
	}

	return token, nil
}

// connect opens a client connection from the global flags.
func (c *cmdGlobal) connect(cmd *cobra.Command) (*client.Connection, error) {
	if c.flagURL == "" {
		return nil, fmt.Errorf("No endpoint given, set --url or LIBSQL_URL")
	}

	token, err := c.token()
	if err != nil {
		return nil, err
	}

	conn, err := client.NewConnection(c.flagURL+";"+token, client.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}

	err = conn.OpenContext(cmd.Context())
	if err != nil {
		return nil, err
	}

	return conn, nil
}
