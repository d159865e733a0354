package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sdrshn-nmbr/cleancity/internal/config"
	"github.com/sdrshn-nmbr/cleancity/internal/logging"
	"github.com/sdrshn-nmbr/cleancity/internal/maintenance"
	"github.com/sdrshn-nmbr/cleancity/internal/server"
	"github.com/sdrshn-nmbr/cleancity/pkg/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the billing HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.mode != modeLocal {
				return errors.New("serve always runs in local mode")
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	local, err := client.OpenLocal(ctx, client.LocalOptions{
		Config:     cfg,
		Logger:     logger,
		Registerer: reg,
	})
	if err != nil {
		return err
	}
	defer local.Close()

	srv := server.New(server.Options{
		Addr:              cfg.Server.Addr,
		ReadTimeout:       cfg.Server.Duration("read_timeout", 10*time.Second),
		WriteTimeout:      cfg.Server.Duration("write_timeout", 10*time.Second),
		ShutdownTimeout:   cfg.Server.Duration("shutdown_timeout", 5*time.Second),
		CountdownInterval: cfg.Server.Duration("countdown_interval", maintenance.DefaultCountdownInterval),
		Metrics:           local.Metrics(),
		Handler: server.HandlerOptions{
			Service:  local.Service(),
			Feed:     local.Feed(),
			Gatherer: reg,
			Logger:   logger,
		},
	})
	return srv.Run(ctx)
}
