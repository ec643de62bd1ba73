package cli

import (
	"bufio"
	"fmt"
	"regexp"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/halcyonlabs/vdisweep/sweep"
)

var (
	classifyAllPattern    string
	classifyTargetPattern string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [identifier...]",
	Short: "Classify disk-image identifiers against the run patterns",
	Long: `Classify prints the update status each identifier would receive during a
sweep. Identifiers are taken from the arguments, or from stdin when no
arguments are given. Useful for validating patterns before a run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, err := regexp.Compile(classifyAllPattern)
		if err != nil {
			return fmt.Errorf("invalid all-versions pattern: %w", err)
		}
		target, err := regexp.Compile(classifyTargetPattern)
		if err != nil {
			return fmt.Errorf("invalid target pattern: %w", err)
		}

		ids := args
		if len(ids) == 0 {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					ids = append(ids, line)
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "IDENTIFIER\tSTATUS")
		for _, id := range ids {
			fmt.Fprintf(tw, "%s\t%s\n", id, sweep.Classify(id, all, target))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringVar(&classifyAllPattern, "all-versions-pattern", "", "Regexp matching any version of the managed image family")
	classifyCmd.Flags().StringVar(&classifyTargetPattern, "target-pattern", "", "Regexp matching the target image version")
	_ = classifyCmd.MarkFlagRequired("all-versions-pattern")
	_ = classifyCmd.MarkFlagRequired("target-pattern")
}
