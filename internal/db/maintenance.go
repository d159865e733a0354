package db

import (
	"context"
	"time"

	"github.com/sdrshn-nmbr/cleancity/internal/maintenance"
	"github.com/sdrshn-nmbr/cleancity/internal/storage"
	"go.uber.org/zap"
)

type CompactionOptions struct {
	Interval time.Duration
	// AfterWrites compacts after this many saves. Zero disables it.
	AfterWrites uint32
	OnDone      func(storage.CompactStats, error)
}

func (o CompactionOptions) enabled() bool {
	return o.Interval > 0 || o.AfterWrites > 0
}

func startCompactionScheduler(
	store storage.Storage,
	opts CompactionOptions,
	logger *zap.Logger,
) (*maintenance.CompactionScheduler, context.CancelFunc, error) {
	if !opts.enabled() {
		return nil, nil, nil
	}
	compacter, ok := store.(storage.Compacter)
	if !ok {
		return nil, nil, ErrCompactionUnsupported
	}

	scheduler := maintenance.NewCompactionScheduler(maintenance.CompactionConfig{
		Compacter:   compacter,
		Interval:    opts.Interval,
		AfterWrites: opts.AfterWrites,
		OnDone:      opts.OnDone,
		Logger:      logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)
	return scheduler, cancel, nil
}
