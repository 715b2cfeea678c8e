package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finmatch/finmatch/internal/cli"
	"github.com/finmatch/finmatch/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE:  runMigrate,
	}

	cmd.Flags().Bool("status", false, "show the current schema version without migrating")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	statusOnly, _ := cmd.Flags().GetBool("status")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if statusOnly {
		version, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Schema version: %d (expected %d)\n", version, storage.ExpectedSchemaVersion)
		return nil
	}

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess("Database migrated"))
	return nil
}
