package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoice-pipeline/internal/infrastructure"
	"github.com/JaimeStill/invoice-pipeline/internal/migrations"
)

func migrateCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	run := func(fn func(infra *infrastructure.Infrastructure) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cfg.Database.AutoMigrate = false

			infra, err := infrastructure.New(cfg)
			if err != nil {
				return err
			}
			defer infra.Database.Connection().Close()

			return fn(infra)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(infra *infrastructure.Infrastructure) error {
			if err := migrations.Up(infra.Database.Connection()); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: run(func(infra *infrastructure.Infrastructure) error {
			if err := migrations.Down(infra.Database.Connection()); err != nil {
				return err
			}
			fmt.Println("migrations rolled back")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: run(func(infra *infrastructure.Infrastructure) error {
			version, dirty, err := migrations.Version(infra.Database.Connection())
			if err != nil {
				return err
			}
			fmt.Printf("version %d (dirty: %t)\n", version, dirty)
			return nil
		}),
	})

	return cmd
}
