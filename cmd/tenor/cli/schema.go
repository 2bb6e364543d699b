package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riverline-labs/tenor/internal/interchange"
)

func schemaHandler(cmd *cobra.Command, _ []string) error {
	doc, err := interchange.GenerateSchema()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(doc))
	return nil
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the interchange bundle JSON Schema (draft 2020-12)",
	Args:  cobra.NoArgs,
	RunE:  schemaHandler,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
