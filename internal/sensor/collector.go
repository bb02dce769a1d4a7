package sensor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/flight-control/internal/telemetry"
)

// Consumer receives the sample picked up on each collector tick. The sample is
// nil when no sample has been produced yet.
type Consumer func(s *telemetry.Sample)

// WithCollectorLogger sets the logger for the collector
func WithCollectorLogger(logger *slog.Logger) func(c *Collector) {
	return func(c *Collector) {
		c.logger = logger.With(slog.String("component", "collector"))
	}
}

// Collector repeatedly reads the latest sample from a provider at a fixed
// frequency and hands it to a consumer. It stops cooperatively: the stop signal
// is checked once per interval.
type Collector struct {
	provider telemetry.Provider
	consumer Consumer
	interval time.Duration

	isRunning atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	logger *slog.Logger
}

// NewCollector creates a collector ticking freq times per second
func NewCollector(provider telemetry.Provider, consumer Consumer, freq float64, options ...func(c *Collector)) (*Collector, error) {
	if freq <= 0 {
		return nil, fmt.Errorf("invalid collector frequency: %f", freq)
	}
	if provider == nil || consumer == nil {
		return nil, fmt.Errorf("collector requires a provider and a consumer")
	}

	c := Collector{
		provider: provider,
		consumer: consumer,
		interval: time.Duration(float64(time.Second) / freq),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c, nil
}

// Start launches the collection goroutine. The first tick happens one interval
// after Start returns.
func (c *Collector) Start(ctx context.Context) error {
	if !c.isRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("collector is already running")
	}

	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.isRunning.Store(false)

		c.logger.Info("starting sample collection", slog.Duration("interval", c.interval))

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.logger.Info("sample collection stopped")
				return

			case <-ticker.C:
				sample, _ := c.provider.Latest()
				c.consumer(sample)
			}
		}
	}()

	return nil
}

// Stop signals the collection goroutine and waits for it to exit
func (c *Collector) Stop() {
	if !c.isRunning.Load() {
		return // already stopped
	}

	c.cancel()
	c.wg.Wait()
}

// IsRunning returns true while the collection goroutine is active
func (c *Collector) IsRunning() bool {
	return c.isRunning.Load()
}

// Interval returns the time between two ticks
func (c *Collector) Interval() time.Duration {
	return c.interval
}
