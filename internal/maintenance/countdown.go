package maintenance

import (
	"context"
	"sync"
	"time"
)

// DefaultCountdownInterval is the refresh cadence of the cycle countdown.
const DefaultCountdownInterval = time.Second

type CountdownConfig struct {
	Interval time.Duration
	Now      func() time.Time
	// OnTick receives the tick time. It must not block for longer than
	// the interval.
	OnTick func(now time.Time)
}

// CountdownTicker invokes OnTick once immediately and then on every
// interval until Stop is called or the start context is cancelled. It holds
// no billing state.
type CountdownTicker struct {
	interval time.Duration
	now      func() time.Time
	onTick   func(time.Time)

	stop chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewCountdownTicker(cfg CountdownConfig) *CountdownTicker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultCountdownInterval
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	onTick := cfg.OnTick
	if onTick == nil {
		onTick = func(time.Time) {}
	}
	return &CountdownTicker{
		interval: interval,
		now:      nowFn,
		onTick:   onTick,
		stop:     make(chan struct{}),
	}
}

func (c *CountdownTicker) Start(ctx context.Context) {
	if c == nil {
		return
	}
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.run(ctx)
	})
}

// Stop cancels the ticker and waits for an in-flight tick to return. It
// must not be called from OnTick; cancel the start context instead.
func (c *CountdownTicker) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
}

func (c *CountdownTicker) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.onTick(c.now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.onTick(c.now())
		}
	}
}
