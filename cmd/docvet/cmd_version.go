package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the docvet version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s (%s)\n", cfg.Name, cfg.Version, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
