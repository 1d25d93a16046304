// Command intakectl runs invoice pipeline operations against the configured
// database and storage without starting the HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/invoice-pipeline/internal/config"
)

var Version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "env file load failed:", err)
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "intakectl",
		Short:         "Operate the invoice intake pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.BaseConfigFile, "path to the base configuration file")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("config load failed: %w", err)
		}
		if err := cfg.Finalize(); err != nil {
			return nil, fmt.Errorf("config finalize failed: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(migrateCmd(loadConfig))
	root.AddCommand(processCmd(loadConfig))
	root.AddCommand(statusCmd(loadConfig))
	root.AddCommand(dlqCmd(loadConfig))
	root.AddCommand(ledgerCmd(loadConfig))

	return root
}
