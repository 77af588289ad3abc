package transport

import (
	"TrueMarket/internal/event"
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// StreamName holds every chain inbox.
	StreamName = "TRUEMARKET_MESSAGES"

	inboxPrefix = "truemarket.inbox."
)

// InboxSubject is the subject messages for chain are published on. Chain ids
// must not contain '.', '*', '>' or whitespace.
func InboxSubject(chain event.ChainID) string {
	return inboxPrefix + string(chain)
}

// Inbound is a decoded message together with its transport acknowledgement.
type Inbound struct {
	Envelope   event.MessageEnvelope
	ReceivedAt time.Time
	// Ack confirms handling; the message will not be delivered again.
	Ack func()
	// Nak asks for redelivery after a transient failure.
	Nak func()
}

// NATSBus publishes committed messages to the target chain's inbox subject and
// consumes this chain's inbox through a durable JetStream consumer.
type NATSBus struct {
	js       jetstream.JetStream
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewNATSBus(js jetstream.JetStream, log zerolog.Logger) *NATSBus {
	return &NATSBus{js: js, log: log}
}

// Publish sends envs in order, stopping at the first failure.
func (b *NATSBus) Publish(ctx context.Context, envs []event.MessageEnvelope) error {
	for _, env := range envs {
		data, err := EncodeEnvelope(env)
		if err != nil {
			return err
		}
		if _, err := b.js.Publish(ctx, InboxSubject(env.Target), data); err != nil {
			return fmt.Errorf("publish %s to %s (seq=%d): %w", env.Message.MessageKind(), env.Target, env.Sequence, err)
		}
	}
	return nil
}

// Subscribe starts a durable consumer for chain's inbox and forwards decoded
// messages to out. MaxAckPending is 1 so the next message is not delivered
// before the previous one is acked, which keeps per-channel order.
// Undecodable messages are terminated.
func (b *NATSBus) Subscribe(ctx context.Context, chain event.ChainID, out chan<- Inbound) error {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       "truemarket-" + string(chain),
		FilterSubject: InboxSubject(chain),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxAckPending: 1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer for %s: %w", chain, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		env, err := DecodeEnvelope(msg.Data())
		if err != nil {
			b.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable message")
			_ = msg.Term()
			return
		}
		if env.Target != chain {
			b.log.Warn().Str("target", string(env.Target)).Msg("dropping message addressed to another chain")
			_ = msg.Term()
			return
		}

		in := Inbound{
			Envelope:   env,
			ReceivedAt: time.Now(),
			Ack:        func() { _ = msg.Ack() },
			Nak:        func() { _ = msg.NakWithDelay(time.Second) },
		}
		select {
		case out <- in:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", chain, err)
	}

	b.consumer = cc
	b.log.Info().Str("subject", InboxSubject(chain)).Msg("subscribed to chain inbox")
	return nil
}

// Stop stops the consumer.
func (b *NATSBus) Stop() {
	if b.consumer != nil {
		b.consumer.Stop()
	}
}

// EnsureStream creates the inbox stream if it does not exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream, maxAge time.Duration) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{inboxPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    maxAge,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
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
