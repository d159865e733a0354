package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sdrshn-nmbr/cleancity/internal/billing"
	"github.com/sdrshn-nmbr/cleancity/internal/maintenance"
	"github.com/sdrshn-nmbr/cleancity/pkg/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCountdownCmd(opts *rootOptions) *cobra.Command {
	var once bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "countdown",
		Short: "Count down to the end of the billing cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), opts, func(state *cliState) error {
				var cycles cycleSource
				if state.local != nil {
					cycles = localCycles(state.local.Service())
				} else {
					cycles = remoteCycles(state.client, state.timeout)
				}

				out := cmd.OutOrStdout()
				if once {
					cycle, err := cycles(cmd.Context(), time.Now())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: %s\n", cycle.Period, cycle.Display)
					return nil
				}

				runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				runCountdown(runCtx, out, cycles, maintenance.CountdownConfig{Interval: interval}, state.log)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "print the countdown once and exit")
	cmd.Flags().DurationVar(&interval, "interval", maintenance.DefaultCountdownInterval, "refresh interval")
	return cmd
}

// cycleSource returns the billing cycle containing now.
type cycleSource func(ctx context.Context, now time.Time) (client.CycleStatus, error)

func localCycles(service *billing.Service) cycleSource {
	return func(_ context.Context, now time.Time) (client.CycleStatus, error) {
		return service.CycleAt(now), nil
	}
}

// remoteCycles fetches the cycle once and counts down locally against its
// end. Past the end it fetches again so a new month takes over.
func remoteCycles(c client.Client, timeout time.Duration) cycleSource {
	var current client.CycleStatus
	var fetched bool
	return func(ctx context.Context, now time.Time) (client.CycleStatus, error) {
		if !fetched || !now.Before(current.CycleEnd) {
			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			next, err := c.Cycle(reqCtx)
			cancel()
			if err != nil {
				if !fetched {
					return client.CycleStatus{}, err
				}
			} else {
				current, fetched = next, true
			}
		}
		status := current
		status.Countdown = billing.NewCountdown(current.CycleEnd.Sub(now))
		status.Display = status.Countdown.String()
		return status, nil
	}
}

// runCountdown redraws one line per tick until ctx is done.
func runCountdown(ctx context.Context, out io.Writer, cycles cycleSource, cfg maintenance.CountdownConfig, log *zap.Logger) {
	cfg.OnTick = func(now time.Time) {
		cycle, err := cycles(ctx, now)
		if err != nil {
			log.Warn("cycle refresh failed", zap.Error(err))
			return
		}
		fmt.Fprintf(out, "\r%s: %-20s", cycle.Period, cycle.Display)
	}
	ticker := maintenance.NewCountdownTicker(cfg)
	ticker.Start(ctx)
	<-ctx.Done()
	ticker.Stop()
	fmt.Fprintln(out)
}
