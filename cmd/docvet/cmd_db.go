package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docvet/internal/store"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database administration",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		version, err := st.MigrationVersion()
		if err != nil {
			return err
		}
		fmt.Printf("%s migrated to schema version %d\n", st.Path(), version)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database path, schema version, and size",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		version, err := st.MigrationVersion()
		if err != nil {
			return err
		}
		fmt.Printf("path:    %s\n", st.Path())
		fmt.Printf("version: %d\n", version)
		fmt.Printf("size:    %d bytes\n", st.FileSize())
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd, dbStatusCmd)
	rootCmd.AddCommand(dbCmd)
}
