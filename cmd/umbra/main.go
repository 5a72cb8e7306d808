package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	pgDSN      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "umbra",
		Short: "Umbra - Tenant isolation enforcement for multi-tenant stores",
		Long:  "Umbra pins every data operation to the tenant that issued it: scoped reads, validated writes, and audited elevation.",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (JSON)")
	rootCmd.PersistentFlags().StringVar(&pgDSN, "pg", "", "Postgres DSN (overrides config)")

	rootCmd.AddCommand(
		serveCmd(),
		tenantCmd(),
		auditCmd(),
		migrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
