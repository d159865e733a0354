package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCustomersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "customers",
		Short: "List customers with their arrears",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), opts, func(state *cliState) error {
				ctx, cancel := state.withContext(cmd.Context())
				defer cancel()

				customers, err := state.client.Customers(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tUNIT\tOVERDUE\tARREARS\tTHIS MONTH")
				for _, c := range customers {
					current := "-"
					if c.Current != nil {
						current = string(c.Current.Status)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
						c.ID, c.Name, c.Unit, c.OverdueRecords, c.Arrears.StringFixed(2), current)
				}
				return w.Flush()
			})
		},
	}
}
