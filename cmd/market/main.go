package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

const service = "market"

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          service,
		Short:        "Inventory and checkout store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		serveCmd(&configPath),
		reinitCmd(&configPath),
		reportCmd(&configPath, "products", "Print every product with its stock"),
		reportCmd(&configPath, "stocks", "Print every stock entry with its product"),
		reportCmd(&configPath, "receipts", "Print the receipt ledger"),
	)
	return root
}
