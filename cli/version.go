package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halcyonlabs/vdisweep/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vdisweep version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
