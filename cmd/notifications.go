package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/grovetools/livesync/cli"
	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/pkg/api"
	"github.com/grovetools/livesync/tui/table"
	"github.com/grovetools/livesync/tui/theme"
	"github.com/spf13/cobra"
)

func NewNotificationsCmd() *cobra.Command {
	var opts api.ListOptions
	var severity string

	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "List and manage server notifications",
		Example: `  livesync notifications --unread --severity error
  livesync notifications read 42
  livesync notifications read-all --project 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			opts.Severity = api.Severity(severity)
			resp, err := newClient(cfg).Notifications(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd, resp)
			}
			if len(resp.Notifications) == 0 {
				fmt.Fprintln(out, theme.DefaultTheme.Muted.Render("No notifications."))
				return nil
			}
			t := table.NewStyledTable("ID", "SEVERITY", "TITLE", "PROJECT", "CREATED", "READ")
			for _, n := range resp.Notifications {
				read := ""
				if n.IsRead {
					read = theme.IconSuccess
				}
				project := n.ProjectName
				if project == "" {
					project = n.ProjectID
				}
				t.Row(
					strconv.FormatInt(n.ID, 10),
					theme.DefaultTheme.Severity(string(n.Severity)).Render(string(n.Severity)),
					n.Title,
					project,
					n.CreatedAt,
					read,
				)
			}
			fmt.Fprintln(out, t.Render())
			fmt.Fprintln(out, theme.DefaultTheme.Muted.Render(
				fmt.Sprintf("%d of %d", len(resp.Notifications), resp.Total)))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "Only notifications of this project")
	cmd.Flags().BoolVar(&opts.UnreadOnly, "unread", false, "Only unread notifications")
	cmd.Flags().StringVar(&severity, "severity", "", "Only this severity: info, success, warning, error")
	cmd.Flags().StringVar(&opts.Search, "search", "", "Search titles and messages")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Maximum number of rows")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Rows to skip")

	cmd.AddCommand(
		newNotificationActionCmd("read", "Mark a notification as read", (*api.Client).MarkRead),
		newNotificationActionCmd("dismiss", "Dismiss a notification", (*api.Client).Dismiss),
		newReadAllCmd(),
		newTriggersCmd(),
	)
	return cmd
}

func newNotificationActionCmd(use, short string, action func(*api.Client, context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if err := action(newClient(cfg), cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s notification %d\n", theme.DefaultTheme.Success.Render(theme.IconSuccess), id)
			return nil
		},
	}
}

func newReadAllCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "read-all",
		Short: "Mark every unread notification as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if err := newClient(cfg).ReadAll(cmd.Context(), projectID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s all notifications read\n", theme.DefaultTheme.Success.Render(theme.IconSuccess))
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Only this project's notifications")
	return cmd
}

func newTriggersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "List notification triggers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			triggers, err := newClient(cfg).Triggers(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd, triggers)
			}
			t := table.NewStyledTable("ID", "EVENT", "SEVERITY", "ENABLED")
			for _, tr := range triggers {
				enabled := "no"
				if tr.IsEnabled {
					enabled = "yes"
				}
				t.Row(strconv.FormatInt(tr.ID, 10), tr.EventType, tr.Severity, enabled)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
	cmd.AddCommand(newNotificationActionCmd("toggle", "Enable or disable a trigger", (*api.Client).ToggleTrigger))
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid id %q", arg))
	}
	return id, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
