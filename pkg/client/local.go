package client

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sdrshn-nmbr/cleancity/internal/billing"
	"github.com/sdrshn-nmbr/cleancity/internal/config"
	"github.com/sdrshn-nmbr/cleancity/internal/db"
	"github.com/sdrshn-nmbr/cleancity/internal/storage"
	"go.uber.org/zap"
)

type LocalOptions struct {
	Config config.Config
	Logger *zap.Logger
	// Registerer receives the billing metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
	// Notifier is called alongside the in-memory feed.
	Notifier billing.Notifier
}

// LocalClient runs the billing service in-process over the configured
// storage backend.
type LocalClient struct {
	db      *db.DB
	service *billing.Service
	feed    *billing.Feed
	metrics *billing.Metrics
	log     *zap.Logger
}

// OpenLocal opens storage, loads the roster and returns a ready client.
// A roster that loaded but could not be saved back is still served; the
// save is retried on the next toggle.
func OpenLocal(ctx context.Context, opts LocalOptions) (*LocalClient, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	var metrics *billing.Metrics
	if opts.Registerer != nil {
		metrics = billing.NewMetrics(opts.Registerer)
	}

	retry, _ := cfg.RetryPolicy()
	interval, _ := cfg.CompactionInterval()
	compaction := db.CompactionOptions{}
	if _, ok := store.(storage.Compacter); ok {
		compaction = db.CompactionOptions{
			Interval:    interval,
			AfterWrites: cfg.Storage.CompactAfterWrites,
			OnDone: func(_ storage.CompactStats, err error) {
				metrics.ObserveCompaction(err)
			},
		}
	}
	database, err := db.Open(db.Options{
		Storage:    store,
		Retry:      retry,
		Compaction: compaction,
		Logger:     logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	feed := billing.NewFeed(cfg.Server.FeedSize)
	notifier := billing.MultiNotifier{feed, billing.LogNotifier{Logger: logger.Named("notify")}}
	if opts.Notifier != nil {
		notifier = append(notifier, opts.Notifier)
	}

	fee, _ := cfg.Fee()
	loc, _ := cfg.Location()
	service, err := billing.NewService(database, billing.ServiceOptions{
		Deployment: cfg.Billing.Deployment,
		MonthlyFee: fee,
		Currency:   cfg.Billing.Currency,
		Clock:      billing.NewClock(loc),
		Seeder:     cfg.Seeder(),
		Notifier:   notifier,
		Metrics:    metrics,
		Logger:     logger,
		Customers:  cfg.Profiles(),
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	c := &LocalClient{db: database, service: service, feed: feed, metrics: metrics, log: logger}
	if _, err := service.Load(ctx); err != nil {
		if _, notLoaded := service.Summary(); notLoaded != nil {
			database.Close()
			return nil, mapBillingError(err)
		}
		logger.Warn("roster loaded but not saved", zap.Error(err))
	}
	return c, nil
}

func (c *LocalClient) Service() *billing.Service {
	return c.service
}

func (c *LocalClient) Feed() *billing.Feed {
	return c.feed
}

// Metrics is nil unless OpenLocal was given a Registerer.
func (c *LocalClient) Metrics() *billing.Metrics {
	return c.metrics
}

func (c *LocalClient) Compact(ctx context.Context) (CompactStats, error) {
	if err := ctx.Err(); err != nil {
		return CompactStats{}, err
	}
	stats, err := c.db.Compact()
	if err != nil {
		if errors.Is(err, db.ErrCompactionUnsupported) {
			return CompactStats{}, ErrUnsupported
		}
		return CompactStats{}, err
	}
	return CompactStats{
		EntriesTotal:   stats.EntriesTotal,
		EntriesWritten: stats.EntriesWritten,
		BytesBefore:    stats.BytesBefore,
		BytesAfter:     stats.BytesAfter,
	}, nil
}

func (c *LocalClient) Close() error {
	return c.db.Close()
}
