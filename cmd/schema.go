package cmd

import (
	"fmt"
	"strings"

	"github.com/grovetools/livesync/config"
	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/pkg/snapshot"
	"github.com/spf13/cobra"
)

func NewSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schemas livesync validates against",
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "snapshot [KIND]",
		Short:     "Print the schema of a server payload",
		Long:      "Print the schema of a server payload. Kinds: " + strings.Join(snapshot.Kinds(), ", "),
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: snapshot.Kinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := "dashboard"
			if len(args) == 1 {
				kind = args[0]
			}
			data, err := snapshot.GenerateSchema(kind)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("no schema for %q", kind))
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the schema of livesync.toml / livesync.yml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})
	return cmd
}
