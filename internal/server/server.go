package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sdrshn-nmbr/cleancity/internal/billing"
	"github.com/sdrshn-nmbr/cleancity/internal/maintenance"
	"go.uber.org/zap"
)

type Options struct {
	Addr              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
	CountdownInterval time.Duration
	Metrics           *billing.Metrics
	Handler           HandlerOptions
}

// Server hosts the billing API and refreshes the cycle countdown while it
// runs.
type Server struct {
	http     *http.Server
	ticker   *maintenance.CountdownTicker
	shutdown time.Duration
	log      *zap.Logger
}

func New(opts Options) *Server {
	logger := opts.Handler.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 5 * time.Second
	}

	service := opts.Handler.Service
	metrics := opts.Metrics
	ticker := maintenance.NewCountdownTicker(maintenance.CountdownConfig{
		Interval: opts.CountdownInterval,
		Now:      service.Now,
		OnTick: func(now time.Time) {
			metrics.ObserveCycle(service.Clock().Remaining(now))
		},
	})

	return &Server{
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewHandler(opts.Handler),
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
		},
		ticker:   ticker,
		shutdown: shutdown,
		log:      logger.Named("server"),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.ticker.Start(ctx)
	defer s.ticker.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", ln.Addr().String()))
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
