// Package cmd holds the livesync subcommands.
package cmd

import (
	"github.com/grovetools/livesync/cli"
	"github.com/grovetools/livesync/config"
	"github.com/grovetools/livesync/pkg/api"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the livesync command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"livesync",
		"Live view of a task dashboard server",
	)
	root.Long = `livesync keeps a local view of a task dashboard in sync with its server.
It polls project snapshots, follows live git and conversation streams,
and turns new notifications into timed alerts.`

	root.AddCommand(
		NewWatchCmd(),
		NewNotificationsCmd(),
		NewPrefsCmd(),
		NewSchemaCmd(),
		NewConfigCmd(),
		NewPathsCmd(),
		cli.NewVersionCommand("livesync"),
	)
	cli.ApplyStyledHelpRecursive(root)
	return root
}

func newClient(cfg *config.Config) *api.Client {
	opts := []api.Option{
		api.WithToken(cfg.Server.Token),
		api.WithTimeout(cfg.Server.Timeout.Std()),
	}
	if cfg.Server.Retries != nil {
		opts = append(opts, api.WithRetries(*cfg.Server.Retries, api.DefaultRetryDelay))
	}
	return api.New(cfg.Server.BaseURL, opts...)
}
