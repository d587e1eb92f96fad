package main

import (
	"fmt"

	"github.com/sakashimaa/paybot/pkg/config"
	"github.com/sakashimaa/paybot/pkg/db"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}

			if err := db.MigrateUp(url); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Revert the last migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := cmd.Flags().GetInt("steps")
			if err != nil {
				return err
			}
			if steps < 1 {
				return fmt.Errorf("steps must be positive, got %d", steps)
			}

			url, err := databaseURL()
			if err != nil {
				return err
			}

			if err := db.MigrateDown(url, steps); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "reverted %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntP("steps", "n", 1, "Number of migrations to revert")
	cmd.AddCommand(down)

	return cmd
}

func databaseURL() (string, error) {
	cfg, err := config.Read()
	if err != nil {
		return "", err
	}

	return cfg.DatabaseURL()
}
