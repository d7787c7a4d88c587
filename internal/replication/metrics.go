package replication

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/pixil98/go-tundra/internal/replication"

type metrics struct {
	messagesSent    metric.Int64Counter
	entitiesFlushed metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(instrumentationName)
	mt := &metrics{}

	var err error
	mt.messagesSent, err = meter.Int64Counter(
		"tundra.sync.messages_sent",
		metric.WithDescription("Scene replication messages sent"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating messages counter: %w", err)
	}

	mt.entitiesFlushed, err = meter.Int64Counter(
		"tundra.sync.entities_flushed",
		metric.WithDescription("Dirty or removed entities flushed to a peer"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating entities counter: %w", err)
	}

	return mt, nil
}

func (mt *metrics) sent(ctx context.Context, msg string, n int) {
	if n == 0 {
		return
	}
	mt.messagesSent.Add(ctx, int64(n), metric.WithAttributes(attribute.String("message", msg)))
}

func (mt *metrics) flushed(ctx context.Context, role string, n int) {
	if n == 0 {
		return
	}
	mt.entitiesFlushed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("role", role)))
}
