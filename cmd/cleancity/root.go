package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	mode       string
	baseURL    string
	timeout    time.Duration
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "cleancity",
		Short: "Track CleanCity collection payments and arrears",
		Long: `cleancity keeps the monthly waste-collection ledger of every customer,
computes arrears from due dates and counts down to the end of the billing cycle.

In local mode the roster is opened from the configured storage backend. In
http mode every command goes through a running "cleancity serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.mode != modeLocal && opts.mode != modeHTTP {
				return errors.New("invalid mode: want local or http")
			}
			if opts.mode == modeHTTP && opts.baseURL == "" {
				return errors.New("base-url is required for http mode")
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file")
	flags.StringVar(&opts.mode, "mode", modeLocal, "mode: local|http")
	flags.StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:8080", "http base url")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	root.AddCommand(
		newCustomersCmd(opts),
		newLedgerCmd(opts),
		newToggleCmd(opts),
		newArrearsCmd(opts),
		newCountdownCmd(opts),
		newCompactCmd(opts),
		newServeCmd(opts),
	)
	return root
}
