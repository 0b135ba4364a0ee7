package main

import (
	"github.com/spf13/cobra"

	"github.com/ramanngartan/arealens-geocode/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return store.Migrate(ctx, env.pool)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
