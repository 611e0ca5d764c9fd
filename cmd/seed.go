package cmd

import (
	"fmt"

	"github.com/moltasthornblom/beam/core/auth"
	"github.com/moltasthornblom/beam/server"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the default admin when no user exists",
	Long:  `Create DEFAULT_USERNAME / DEFAULT_PASSWORD as a verified ADMIN if the user table is empty.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, users, closeStore, err := server.Repositories(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		accounts := auth.NewService(users, auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL))
		created, err := accounts.Seed(cmd.Context(), cfg.DefaultUsername, cfg.DefaultPassword)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Default user %q created.\n", cfg.DefaultUsername)
		} else {
			fmt.Println("Users already exist in the database.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
