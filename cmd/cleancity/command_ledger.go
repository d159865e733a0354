package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newLedgerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger CUSTOMER_ID",
		Short: "Show the payment history of a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), opts, func(state *cliState) error {
				ctx, cancel := state.withContext(cmd.Context())
				defer cancel()

				view, err := state.client.Ledger(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", view.Customer.Name, view.Customer.Unit)
				fmt.Fprintf(out, "Arrears: %s %s\n\n", view.Currency, view.Customer.Arrears.StringFixed(2))

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "#\tPERIOD\tDUE\tAMOUNT\tSTATUS")
				for _, r := range view.Records {
					marker := ""
					if r.Current {
						marker = " (current)"
					}
					fmt.Fprintf(w, "%d\t%s%s\t%s\t%s\t%s\n",
						r.Index, r.Period, marker, r.DueDate, r.Amount.StringFixed(2), r.Status)
				}
				return w.Flush()
			})
		},
	}
}
