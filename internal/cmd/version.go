package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set via -ldflags "-X .../internal/cmd.Version=..." at build
// time; it defaults to "dev" for local builds.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agent version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
