package cmd

import (
	"fmt"

	"github.com/grovetools/livesync/cli"
	"github.com/grovetools/livesync/pkg/paths"
	"github.com/spf13/cobra"
)

// PathsOutput lists the directories and files livesync uses.
type PathsOutput struct {
	ConfigDir string `json:"config_dir"`
	StateDir  string `json:"state_dir"`
	PrefsFile string `json:"prefs_file"`
	LogDir    string `json:"log_dir"`
}

func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the paths used by livesync",
		Long: `Print the paths used by livesync.

LIVESYNC_HOME moves everything under one directory. Otherwise the
XDG base directories are used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := PathsOutput{
				ConfigDir: paths.ConfigDir(),
				StateDir:  paths.StateDir(),
				PrefsFile: paths.PrefsFilePath(),
				LogDir:    paths.LogDir(),
			}
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd, output)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config: %s\n", output.ConfigDir)
			fmt.Fprintf(out, "state:  %s\n", output.StateDir)
			fmt.Fprintf(out, "prefs:  %s\n", output.PrefsFile)
			fmt.Fprintf(out, "logs:   %s\n", output.LogDir)
			return nil
		},
	}
}
