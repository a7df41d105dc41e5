package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	gormstore "github.com/gridpicks/gridauth/stores/gorm"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the account tables (postgres and sqlite stores)",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context(), storeOptionsFromFlags(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	if store.DB == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to migrate for this store")
		return nil
	}
	if err := gormstore.AutoMigrate(store.DB); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	slog.Info("migration complete")
	return nil
}
