package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/riverline-labs/tenor/internal/elaborate"
	"github.com/riverline-labs/tenor/internal/sourceprovider"
)

func elaborateHandler(cmd *cobra.Command, args []string) error {
	file := args[0]
	provider := sourceprovider.NewFS(filepath.Dir(file))

	bundle, err := elaborate.Elaborate(provider, filepath.Base(file), elaborate.Options{
		MaxValidateErrors: cfg.Validate.MaxErrors,
		MaxStratumDepth:   cfg.Rules.MaxStratumDepth,
		Log:               log,
	})
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(bundle))
		return nil
	}
	return os.WriteFile(out, append(bundle, '\n'), 0o644)
}

var elaborateCmd = &cobra.Command{
	Use:   "elaborate FILE",
	Short: "Compile a .tenor root file into a canonical interchange bundle",
	Args:  cobra.ExactArgs(1),
	RunE:  elaborateHandler,
}

func init() {
	elaborateCmd.Flags().StringP("out", "o", "", "write the bundle to a file instead of stdout")
	rootCmd.AddCommand(elaborateCmd)
}
