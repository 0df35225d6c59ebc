package cmd

import (
	"fmt"
	"os"

	"minifm/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "minifm",
	Short: "minifm is a small personal music server.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
