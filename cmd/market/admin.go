package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"MiniMarket/internal/market"
)

func reinitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reinit",
		Short: "Reset products, stocks and receipts to the seed data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context(), *configPath, nil)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.store.Reinitialize(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "store reinitialized")
			return err
		},
	}
}

func reportCmd(configPath *string, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context(), *configPath, nil)
			if err != nil {
				return err
			}
			defer rt.close()

			out, err := listing(rt.store, name)(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" {
				return nil
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
}

func listing(s *market.Store, name string) func(context.Context) (string, error) {
	switch name {
	case "stocks":
		return s.ListStocks
	case "receipts":
		return s.ListReceipts
	default:
		return s.ListProducts
	}
}
