package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riverline-labs/tenor/internal/conformance"
)

func testHandler(cmd *cobra.Command, args []string) error {
	results, err := conformance.RunSuite(args[0])
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Passed {
			fmt.Fprintf(cmd.OutOrStdout(), "PASS %s\n", r.Case)
			continue
		}
		failed++
		fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %s\n", r.Case, r.Detail)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cases failed", failed, len(results))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d cases passed\n", len(results))
	return nil
}

var testCmd = &cobra.Command{
	Use:   "test SUITE_DIR",
	Short: "Run a conformance suite: each subdirectory is one elaborate+eval case",
	Args:  cobra.ExactArgs(1),
	RunE:  testHandler,
}

func init() {
	rootCmd.AddCommand(testCmd)
}
