package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riverline-labs/tenor/internal/interchange"
)

func diffHandler(cmd *cobra.Command, args []string) error {
	before, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	after, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	changes := interchange.Diff(before, after)
	for _, ch := range changes {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s\n", ch.Kind, ch.ConstructKind, ch.ID)
	}
	if len(changes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "identical")
	}
	return nil
}

var diffCmd = &cobra.Command{
	Use:   "diff BUNDLE1 BUNDLE2",
	Short: "Construct-level diff of two bundles, keyed by (kind, id)",
	Args:  cobra.ExactArgs(2),
	RunE:  diffHandler,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
