package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// GossipStream holds every inter-shard gossip subject.
	GossipStream = "PREDICT_GOSSIP"

	// GossipSubjectPrefix is followed by "<target_shard>.<kind>".
	GossipSubjectPrefix = "predict.gossip"
)

// GossipSubject builds the subject for one per-peer delivery.
func GossipSubject(target, kind string) string {
	return fmt.Sprintf("%s.%s.%s", GossipSubjectPrefix, target, kind)
}

// GossipSubscriber attaches a durable JetStream consumer filtered to
// this shard's inbox and feeds raw deliveries into the shell via
// msgChan. The shell parses and hands typed messages to the core.
type GossipSubscriber struct {
	js        jetstream.JetStream
	msgChan   chan<- RawMessage
	consumers []jetstream.ConsumeContext
}

// RawMessage is one unparsed gossip delivery. AckFunc/NakFunc settle
// the underlying JetStream message once the core has (or has not)
// applied it.
type RawMessage struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func()
	NakFunc   func()
}

func NewGossipSubscriber(js jetstream.JetStream, msgChan chan<- RawMessage) *GossipSubscriber {
	return &GossipSubscriber{
		js:      js,
		msgChan: msgChan,
	}
}

// Subscribe creates this shard's durable consumer on the gossip stream.
// Explicit ACK, max_deliver=5, ack_wait=30s: unacked messages redeliver,
// which is safe because the core deduplicates on message ID.
func (gs *GossipSubscriber) Subscribe(ctx context.Context, shardID string) error {
	consumer, err := gs.js.CreateOrUpdateConsumer(ctx, GossipStream, jetstream.ConsumerConfig{
		Durable:       fmt.Sprintf("mesh-%s", shardID),
		FilterSubject: fmt.Sprintf("%s.%s.>", GossipSubjectPrefix, shardID),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer mesh-%s: %w", shardID, err)
	}

	consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawMessage{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Timestamp: time.Now(),
			AckFunc:   func() { msg.Ack() },
			NakFunc:   func() { msg.Nak() },
		}

		select {
		case gs.msgChan <- raw:
			// Queued for the core
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume mesh-%s: %w", shardID, err)
	}

	gs.consumers = append(gs.consumers, consumerContext)
	log.Printf("INFO: subscribed to gossip inbox for %s", shardID)
	return nil
}

// EnsureGossipStream creates the gossip stream if it doesn't exist.
// FileStorage, retention=Limits, max_age=72h: a shard offline longer
// than that rejoins through peer snapshots, not replay.
func EnsureGossipStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      GossipStream,
		Subjects:  []string{GossipSubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", GossipStream, err)
	}
	log.Printf("INFO: ensured stream %s", GossipStream)
	return nil
}

// Stop gracefully stops all consumers.
func (gs *GossipSubscriber) Stop() {
	for _, cc := range gs.consumers {
		cc.Stop()
	}
	log.Println("INFO: gossip subscriber stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
