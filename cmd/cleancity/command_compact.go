package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCompactCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Compact the local roster store",
		Long:  `Rewrite the disk backend so it holds only the live roster. Local mode only.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.mode != modeLocal {
				return errors.New("compact is only available in local mode")
			}
			return withState(cmd.Context(), opts, func(state *cliState) error {
				ctx, cancel := state.withContext(cmd.Context())
				defer cancel()

				stats, err := state.local.Compact(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Compacted %d entries: %d -> %d bytes\n",
					stats.EntriesWritten, stats.BytesBefore, stats.BytesAfter)
				return nil
			})
		},
	}
}
