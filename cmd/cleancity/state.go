package main

import (
	"context"
	"net/http"
	"time"

	"github.com/sdrshn-nmbr/cleancity/internal/config"
	"github.com/sdrshn-nmbr/cleancity/internal/logging"
	"github.com/sdrshn-nmbr/cleancity/pkg/client"
	"go.uber.org/zap"
)

const (
	modeLocal = "local"
	modeHTTP  = "http"
)

type cliState struct {
	mode    string
	timeout time.Duration
	cfg     config.Config
	log     *zap.Logger
	client  client.Client
	local   *client.LocalClient
	http    *client.HTTPClient
}

// newCLIState loads config and opens the client for opts.mode. Client
// commands log at warn unless --log-level says otherwise.
func newCLIState(ctx context.Context, opts *rootOptions) (*cliState, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Log
	logCfg.Level = "warn"
	if opts.logLevel != "" {
		logCfg.Level = opts.logLevel
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	state := &cliState{
		mode:    opts.mode,
		timeout: opts.timeout,
		cfg:     cfg,
		log:     logger,
	}

	if opts.mode == modeHTTP {
		httpClient, err := client.NewHTTPClient(client.HTTPOptions{
			BaseURL:          opts.baseURL,
			HTTPClient:       &http.Client{Timeout: opts.timeout},
			RetryPolicy:      client.DefaultRetryPolicy(),
			UserAgent:        "cleancity-cli",
			MaxResponseBytes: 8 << 20,
		})
		if err != nil {
			return nil, err
		}
		state.http = httpClient
		state.client = httpClient
		return state, nil
	}

	openCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	local, err := client.OpenLocal(openCtx, client.LocalOptions{Config: cfg, Logger: logger})
	if err != nil {
		return nil, err
	}
	state.local = local
	state.client = local
	return state, nil
}

func (c *cliState) Close() {
	if c.client != nil {
		_ = c.client.Close()
	}
	_ = c.log.Sync()
}

func (c *cliState) withContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// withState opens the client for one command and closes it afterwards.
func withState(ctx context.Context, opts *rootOptions, fn func(*cliState) error) error {
	state, err := newCLIState(ctx, opts)
	if err != nil {
		return err
	}
	defer state.Close()
	return fn(state)
}
