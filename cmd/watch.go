package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/grovetools/livesync/cli"
	"github.com/grovetools/livesync/pkg/session"
	"github.com/grovetools/livesync/tui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewWatchCmd() *cobra.Command {
	var (
		projectID string
		taskID    string
		live      bool
		plain     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a project's dashboard, live streams and notifications",
		Long: `Follow a project's dashboard, live streams and notifications.

Without --project the last selected project is restored. Output is a
full-screen view on a terminal and one line per change otherwise.`,
		Example: `  # Follow project 7 with live git updates
  livesync watch --project 7

  # Follow the conversation of a task, printing plain lines
  livesync watch --project 7 --task T12 --plain`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("live") {
				cfg.Stream.Live = &live
			}
			if plain {
				cfg.TUI.Plain = true
			}
			logger := cli.GetLogger(cmd, "watch")

			s, err := session.New(session.Options{
				Config:     cfg,
				WatchPrefs: true,
				TaskID:     taskID,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return s.Run(ctx, projectID)
			})
			g.Go(func() error {
				// The session ends with the view.
				defer cancel()
				if tui.DetectMode(cfg.TUI.Plain, os.Stdout) == tui.ModeLive {
					return tui.RunLive(ctx, s.Store, s)
				}
				return tui.NewPlain(cmd.OutOrStdout(), s.Store).Run(ctx)
			})

			err = g.Wait()
			logger.WithField("session", s.ID).Debug("Watch finished")
			return err
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project to select")
	cmd.Flags().StringVarP(&taskID, "task", "t", "", "Task whose conversation to follow (requires --project)")
	cmd.Flags().BoolVar(&live, "live", true, "Follow live streams (overrides stream.live)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print one line per change instead of the full-screen view")
	return cmd
}
