package main

import (
	"os"

	"github.com/grovetools/livesync/cli"
	"github.com/grovetools/livesync/cmd"
)

func main() {
	rootCmd := cmd.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		cli.NewErrorHandler(os.Stderr, verbose).Handle(err)
		os.Exit(1)
	}
}
