package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/cobra"

	"github.com/riverline-labs/tenor/internal/interchange"
)

func validateHandler(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	schemaDoc, err := interchange.GenerateSchema()
	if err != nil {
		return err
	}
	schemaAny, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDoc))
	if err != nil {
		return err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tenor-bundle.schema.json", schemaAny); err != nil {
		return err
	}
	schema, err := compiler.Compile("tenor-bundle.schema.json")
	if err != nil {
		return err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s is not valid JSON: %w", args[0], err)
	}
	if err := schema.Validate(inst); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "valid")
	return nil
}

var validateCmd = &cobra.Command{
	Use:   "validate BUNDLE",
	Short: "Check a bundle file against the interchange JSON Schema",
	Args:  cobra.ExactArgs(1),
	RunE:  validateHandler,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
