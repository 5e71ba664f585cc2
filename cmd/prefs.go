package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grovetools/livesync/cli"
	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/state"
	"github.com/grovetools/livesync/tui/theme"
	"github.com/spf13/cobra"
)

func NewPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read and change persisted preferences",
		Long: fmt.Sprintf(`Read and change the preferences livesync persists between runs.

Known keys: %s`, strings.Join(state.Keys, ", ")),
	}
	cmd.AddCommand(newPrefsGetCmd(), newPrefsSetCmd(), newPrefsUnsetCmd())
	return cmd
}

func newPrefsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [KEY]",
		Short: "Print one preference, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs := state.Default()
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				value, err := prefs.GetString(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, value)
				return nil
			}

			all, err := prefs.Load()
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd, all)
			}
			keys := make([]string, 0, len(all))
			for k := range all {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%s = %v\n", k, all[k])
			}
			return nil
		},
	}
}

func newPrefsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if key == state.KeyTheme {
				resolved := theme.Resolve(value)
				if resolved == "" {
					return errors.New(errors.ErrCodeInvalidInput,
						fmt.Sprintf("unknown theme %q, expected one of %s", value, strings.Join(theme.Names(), ", ")))
				}
				value = resolved
			}
			if key == state.KeyLastNotificationID {
				id, err := parseID(value)
				if err != nil {
					return err
				}
				return state.Default().SaveCursor(id)
			}
			return state.Default().Set(key, value)
		},
	}
}

func newPrefsUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset KEY",
		Short: "Remove a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.Default().Delete(args[0])
		},
	}
}
