package main

import (
	"errors"
	"fmt"
	"os"

	"docvet/internal/types"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var te *types.Error
		if errors.As(err, &te) {
			os.Exit(te.ExitCode())
		}
		os.Exit(1)
	}
}
