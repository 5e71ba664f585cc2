package cmd

import (
	"fmt"
	"os"

	"github.com/grovetools/livesync/cli"
	"github.com/grovetools/livesync/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Display the effective configuration and where it came from",
		Long: `Shows how the effective configuration is built:
1. Global config (~/.config/livesync/livesync.toml)
2. Project config (livesync.toml found from the working directory upwards)
3. LIVESYNC_* environment variables
The server token is masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd, cfg.Redacted())
			}

			if path := cli.GetOptions(cmd).ConfigFile; path != "" {
				fmt.Fprintf(out, "# Source: %s\n", path)
			} else {
				if global := config.FindGlobalConfigFile(); global != "" {
					fmt.Fprintf(out, "# Global: %s\n", global)
				}
				if cwd, err := os.Getwd(); err == nil {
					if project, err := config.FindConfigFile(cwd); err == nil {
						fmt.Fprintf(out, "# Project: %s\n", project)
					}
				}
			}

			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			fmt.Fprint(out, string(data))
			return nil
		},
	}
}
