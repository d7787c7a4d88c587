package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const DefaultTickLength = 20 * time.Millisecond

// Manager is advanced once per tick.
type Manager interface {
	Tick(context.Context) error
}

// ManagerFunc adapts a function to Manager.
type ManagerFunc func(context.Context) error

func (f ManagerFunc) Tick(ctx context.Context) error { return f(ctx) }

// Stats summarizes the ticks run so far.
type Stats struct {
	Ticks    uint64
	Overruns uint64
	Last     time.Duration
}

// Driver ticks its managers in order on a single goroutine. Scene, session
// and sync state are only touched from here.
type Driver struct {
	tickLength time.Duration
	managers   []Manager
	now        func() time.Time
	metrics    *metrics

	ticks    atomic.Uint64
	overruns atomic.Uint64
	last     atomic.Int64
}

func NewDriver(managers []Manager, opts ...DriverOpt) (*Driver, error) {
	d := &Driver{
		tickLength: DefaultTickLength,
		managers:   managers,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.tickLength <= 0 {
		return nil, fmt.Errorf("tick length must be positive, got %s", d.tickLength)
	}

	mt, err := newMetrics()
	if err != nil {
		return nil, err
	}
	d.metrics = mt

	return d, nil
}

func (d *Driver) TickLength() time.Duration {
	return d.tickLength
}

// Stats is safe to call from any goroutine.
func (d *Driver) Stats() Stats {
	return Stats{
		Ticks:    d.ticks.Load(),
		Overruns: d.overruns.Load(),
		Last:     time.Duration(d.last.Load()),
	}
}

func (d *Driver) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "driver started", "tick", d.tickLength, "managers", len(d.managers))

	ticker := time.NewTicker(d.tickLength)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s := d.Stats()
			slog.InfoContext(ctx, "driver stopped", "ticks", s.Ticks, "overruns", s.Overruns)
			return nil
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick runs every manager once and records how long that took. The first
// error stops the tick.
func (d *Driver) Tick(ctx context.Context) error {
	start := d.now()
	for i, m := range d.managers {
		if err := m.Tick(ctx); err != nil {
			return fmt.Errorf("ticking manager %d: %w", i, err)
		}
	}

	took := d.now().Sub(start)
	d.ticks.Add(1)
	d.last.Store(int64(took))
	overran := took > d.tickLength
	if overran {
		d.overruns.Add(1)
		slog.WarnContext(ctx, "tick overran", "took", took, "tick", d.tickLength)
	}
	d.metrics.record(ctx, took, overran)
	return nil
}
