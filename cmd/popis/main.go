package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/popis/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "popis",
		Short: "Asset inventory with periodic stocktakes",
		Long: `popis tracks inventory items and runs stocktakes: bounded audit
campaigns in which authorized accounts mark items as physically checked.

Settings are read from CONFIG_PATH (default ./popis.yaml) and POPIS_*
environment variables. Flags override both.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database.Path, _ = flags.GetString("db")
	}
	if flags.Changed("addr") {
		cfg.Server.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("log") {
		cfg.Log.File, _ = flags.GetString("log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
