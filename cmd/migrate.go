package cmd

import (
	"fmt"

	"github.com/moltasthornblom/beam/config"
	"github.com/moltasthornblom/beam/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the MySQL schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.StorageDriver != config.StorageMySQL {
			return fmt.Errorf("migrate needs STORAGE_DRIVER=mysql, got %q", cfg.StorageDriver)
		}
		fmt.Printf("Connecting to %s:%s/%s...\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.CloseGormDB(gdb)

		if err := db.AutoMigrate(gdb.WithContext(cmd.Context())); err != nil {
			return err
		}
		fmt.Println("Schema is up to date.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
