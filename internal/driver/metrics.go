package driver

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/pixil98/go-tundra/internal/driver"

type metrics struct {
	tickDuration metric.Float64Histogram
	overruns     metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(instrumentationName)
	mt := &metrics{}

	var err error
	mt.tickDuration, err = meter.Float64Histogram(
		"tundra.driver.tick_duration",
		metric.WithDescription("Time spent running one tick of every manager"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	mt.overruns, err = meter.Int64Counter(
		"tundra.driver.overruns",
		metric.WithDescription("Ticks that took longer than the tick length"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating overrun counter: %w", err)
	}

	return mt, nil
}

func (mt *metrics) record(ctx context.Context, took time.Duration, overran bool) {
	mt.tickDuration.Record(ctx, took.Seconds())
	if overran {
		mt.overruns.Add(ctx, 1)
	}
}
