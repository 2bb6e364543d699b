// Package cli wires the tenor toolchain's subcommands: elaborate,
// validate, test, eval, diff, schema. Each command lives in its own file
// and registers itself on RootCmd in an init func.
package cli

import (
	"errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/riverline-labs/tenor/pkg/config"
)

// ErrNotImplemented maps to exit code 2.
var ErrNotImplemented = errors.New("not implemented")

var (
	log = logrus.New()
	cfg *config.Config
)

func rootInit(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	var err error
	cfg, err = config.LoadFromEnv()
	if err != nil {
		return err
	}
	lvl, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:               "tenor",
	Short:             "Tenor contract toolchain",
	SilenceUsage:      true,
	PersistentPreRunE: rootInit,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
}

// RootCmd exports the root command.
var RootCmd = rootCmd
