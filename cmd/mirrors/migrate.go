package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zatekoja/medical-mirrors/internal/adapters/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the storage tables and search indexes",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().Bool("print", false, "print the DDL instead of applying it")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if printOnly, _ := cmd.Flags().GetBool("print"); printOnly {
		for _, stmt := range database.SchemaStatements() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", stmt)
		}
		return nil
	}

	a, err := newApp(cmd.Context(), appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := database.Migrate(cmd.Context(), a.db); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %d statements\n", len(database.SchemaStatements()))
	return nil
}
