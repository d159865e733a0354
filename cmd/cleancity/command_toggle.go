package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newToggleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle CUSTOMER_ID INDEX",
		Short: "Mark a record paid or unpaid",
		Long: `Flip the paid flag of one ledger record. INDEX is the "#" column of
"cleancity ledger". The change is saved before it is reported; if the save
fails nothing changes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}
			return withState(cmd.Context(), opts, func(state *cliState) error {
				ctx, cancel := state.withContext(cmd.Context())
				defer cancel()

				n, err := state.client.Toggle(ctx, args[0], index)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", n.Title, n.Description)
				return nil
			})
		},
	}
}
