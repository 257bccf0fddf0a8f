// Package pubsub publishes links to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// RunIDAttribute is the message attribute carrying the run ID.
const RunIDAttribute = "run_id"

// Config selects the topic and tracing propagation.
type Config struct {
	Topic string
	// Propagator injects trace context into message attributes. Nil uses the
	// global otel propagator.
	Propagator propagation.TextMapPropagator
}

// Writer publishes one message per link. Messages share the run ID as their
// ordering key, so subscribers with ordering enabled see yield order.
type Writer struct {
	topic      *pubsub.Topic
	runID      string
	propagator propagation.TextMapPropagator
	results    []*pubsub.PublishResult
}

// New returns a Writer for runID on cfg.Topic. The topic must exist.
func New(ctx context.Context, client *pubsub.Client, cfg Config, runID string) (*Writer, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	topic := client.Topic(cfg.Topic)
	ok, err := topic.Exists(ctx)
	if err != nil {
		topic.Stop()
		return nil, fmt.Errorf("check topic %s: %w", cfg.Topic, err)
	}
	if !ok {
		topic.Stop()
		return nil, fmt.Errorf("topic %s does not exist", cfg.Topic)
	}
	topic.EnableMessageOrdering = true

	prop := cfg.Propagator
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}
	return &Writer{topic: topic, runID: runID, propagator: prop}, nil
}

// Write queues link for publishing. Delivery errors surface from Close.
func (w *Writer) Write(ctx context.Context, link string) error {
	attrs := propagation.MapCarrier{RunIDAttribute: w.runID}
	w.propagator.Inject(ctx, attrs)
	w.results = append(w.results, w.topic.Publish(ctx, &pubsub.Message{
		Data:        []byte(link),
		Attributes:  attrs,
		OrderingKey: w.runID,
	}))
	return nil
}

// Close waits for every publish result and stops the topic.
func (w *Writer) Close(ctx context.Context) error {
	var errs []error
	for _, res := range w.results {
		if _, err := res.Get(ctx); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	w.results = nil
	w.topic.Stop()
	if len(errs) > 0 {
		return fmt.Errorf("publish %d message(s): %w", len(errs), errors.Join(errs...))
	}
	return nil
}
