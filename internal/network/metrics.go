package network

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/pixil98/go-tundra/internal/network"

type metrics struct {
	framesReceived metric.Int64Counter
	userEvents     metric.Int64Counter
	users          metric.Int64ObservableGauge
}

func newMetrics(m *Manager) (*metrics, error) {
	meter := otel.Meter(instrumentationName)
	mt := &metrics{}

	var err error
	mt.framesReceived, err = meter.Int64Counter(
		"tundra.net.frames_received",
		metric.WithDescription("Frames dispatched to message handlers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}

	mt.userEvents, err = meter.Int64Counter(
		"tundra.net.user_events",
		metric.WithDescription("User connections and disconnections"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating user events counter: %w", err)
	}

	mt.users, err = meter.Int64ObservableGauge(
		"tundra.net.users",
		metric.WithDescription("Currently connected users"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating users gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(mt.users, m.userCount.Load())
		return nil
	}, mt.users)
	if err != nil {
		return nil, fmt.Errorf("registering users callback: %w", err)
	}

	return mt, nil
}

func (mt *metrics) frame(ctx context.Context, name string) {
	mt.framesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("message", name)))
}

func (mt *metrics) userEvent(ctx context.Context, event string) {
	mt.userEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
