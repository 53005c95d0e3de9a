// Package main is the entry point for the snippet admin server.
//
// Configuration comes from the environment (see internal/config). The default
// command serves HTTP; "grant" gives an existing account staff access.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/snippetcms/internal/config"
	"github.com/sakif/snippetcms/internal/server"
)

type cmdGlobal struct {
	cfg    config.Config
	logger *slog.Logger
}

// open loads configuration, builds the logger and opens the server with its
// database.
func (g *cmdGlobal) open() (*server.Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	g.cfg = cfg
	g.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %q: %w", dbDir, err)
		}
	}

	return server.New(server.Config{Config: cfg}, g.logger)
}

type cmdServe struct {
	global *cmdGlobal
}

func (c *cmdServe) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "snippetcms"
	cmd.Short = "Serve the snippet admin"
	cmd.Args = cobra.NoArgs
	cmd.RunE = c.run
	return cmd
}

func (c *cmdServe) run(cmd *cobra.Command, args []string) error {
	srv, err := c.global.open()
	if err != nil {
		return err
	}

	// Start blocks until SIGINT or SIGTERM and closes the database.
	return srv.Start()
}

type cmdGrant struct {
	global *cmdGlobal
}

func (c *cmdGrant) command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "grant <username> [<permission>...]"
	cmd.Short = "Give an account staff access"
	cmd.Long = `Give an account staff access with exactly the listed permissions.

Permissions are codenames such as snippet.view_snippet, snippet.add_snippet,
snippet.change_snippet and snippet.delete_snippet. Listing none keeps the
account staff without any permission.`
	cmd.Args = cobra.MinimumNArgs(1)
	cmd.RunE = c.run
	return cmd
}

func (c *cmdGrant) run(cmd *cobra.Command, args []string) error {
	srv, err := c.global.open()
	if err != nil {
		return err
	}
	defer srv.Close()

	user, err := srv.Grant(cmd.Context(), args[0], args[1:])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s is now staff with %d permission(s)\n", user.Username, len(user.Permissions))
	return nil
}

func main() {
	globalCmd := cmdGlobal{}

	serveCmd := cmdServe{global: &globalCmd}
	app := serveCmd.command()
	app.SilenceUsage = true
	app.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}

	grantCmd := cmdGrant{global: &globalCmd}
	app.AddCommand(grantCmd.command())

	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
