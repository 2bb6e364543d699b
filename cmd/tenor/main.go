package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/riverline-labs/tenor/cmd/tenor/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, cli.ErrNotImplemented) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
