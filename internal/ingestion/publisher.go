package ingestion

import (
	"context"
	"log"

	"PredictMesh/internal/event"
	"PredictMesh/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
)

// GossipPublisher drains the core's outbound channel and publishes each
// per-peer delivery to the target shard's inbox subject.
type GossipPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan event.Message
	metrics   *observability.Metrics
}

func NewGossipPublisher(js jetstream.JetStream, inputChan <-chan event.Message, metrics *observability.Metrics) *GossipPublisher {
	return &GossipPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run starts the publisher loop.
func (gp *GossipPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-gp.inputChan:
			if !ok {
				return nil
			}

			if err := gp.publish(ctx, msg); err != nil {
				// Non-fatal: the peer converges from later snapshots of
				// the same state, and most facts are full-state LWW.
				log.Printf("WARN: gossip publish failed id=%s target=%s: %v", msg.ID, msg.Target, err)
				if gp.metrics != nil {
					gp.metrics.GossipPublishErrors.Inc()
				}
			}
		}
	}
}

func (gp *GossipPublisher) publish(ctx context.Context, msg event.Message) error {
	data, err := MarshalMessage(msg)
	if err != nil {
		return err
	}

	subject := GossipSubject(msg.Target, msg.Fact.Kind().String())
	_, err = gp.js.Publish(ctx, subject, data)
	return err
}
