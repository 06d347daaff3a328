package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"table-settlement/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the MySQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// NewMySQLStore applies the schema before returning.
			store, err := storage.NewMySQLStore(cfg.Database, log)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			defer store.Close()

			fmt.Println("Migration completed successfully")
			return nil
		},
	}
}
