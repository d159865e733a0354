package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newArrearsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "arrears",
		Short: "Show total arrears across the roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), opts, func(state *cliState) error {
				ctx, cancel := state.withContext(cmd.Context())
				defer cancel()

				s, err := state.client.Arrears(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total arrears: %s %s\n", s.Currency, s.TotalArrears.StringFixed(2))
				fmt.Fprintln(out, s.Label)
				fmt.Fprintf(out, "Customers in arrears: %d of %d\n", s.CustomersInArrears, s.Customers)
				return nil
			})
		},
	}
}
