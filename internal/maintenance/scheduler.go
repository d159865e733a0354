package maintenance

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdrshn-nmbr/cleancity/internal/storage"
	"go.uber.org/zap"
)

type CompactionConfig struct {
	Compacter storage.Compacter
	// Interval compacts on a timer. Zero disables the timer.
	Interval time.Duration
	// AfterWrites compacts once this many roster saves have been noted
	// since the last compaction. Zero disables the count.
	AfterWrites uint32
	// OnDone observes every compaction outcome.
	OnDone func(storage.CompactStats, error)
	Logger *zap.Logger
}

// CompactionScheduler keeps the append-only roster file from growing
// without bound. Each toggle appends a full roster, so compaction runs
// on a timer, after a number of saves, or on demand. Compactions run one
// at a time on the scheduler goroutine; triggers that arrive meanwhile
// collapse into one follow-up run.
type CompactionScheduler struct {
	compacter   storage.Compacter
	interval    time.Duration
	afterWrites uint32
	onDone      func(storage.CompactStats, error)
	log         *zap.Logger

	writes  atomic.Uint32
	trigger chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewCompactionScheduler(cfg CompactionConfig) *CompactionScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	onDone := cfg.OnDone
	if onDone == nil {
		onDone = func(storage.CompactStats, error) {}
	}

	return &CompactionScheduler{
		compacter:   cfg.Compacter,
		interval:    cfg.Interval,
		afterWrites: cfg.AfterWrites,
		onDone:      onDone,
		log:         logger.Named("compaction"),
		trigger:     make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
}

func (s *CompactionScheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run(ctx)
	})
}

// Stop waits for a running compaction to finish.
func (s *CompactionScheduler) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}

// Trigger requests a compaction without waiting for it.
func (s *CompactionScheduler) Trigger() {
	if s == nil {
		return
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// NoteWrite counts one roster save and triggers a compaction when the
// AfterWrites threshold is reached.
func (s *CompactionScheduler) NoteWrite() {
	if s == nil || s.afterWrites == 0 {
		return
	}
	if s.writes.Add(1) >= s.afterWrites {
		s.Trigger()
	}
}

func (s *CompactionScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-s.trigger:
			s.compact("trigger")
		case <-tick:
			s.compact("interval")
		}
	}
}

func (s *CompactionScheduler) compact(reason string) {
	s.writes.Store(0)
	stats, err := s.compacter.Compact()
	s.onDone(stats, err)
	if err != nil {
		s.log.Warn("compaction failed", zap.String("reason", reason), zap.Error(err))
		return
	}
	s.log.Debug("compaction finished",
		zap.String("reason", reason),
		zap.Uint32("entries", stats.EntriesWritten),
		zap.Uint64("bytes_before", stats.BytesBefore),
		zap.Uint64("bytes_after", stats.BytesAfter),
	)
}
