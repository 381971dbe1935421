package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeFeedback delivers queued operator verdicts one at a time, in stream
// order, so corrections land on the learner in the order they were given.
// When ctx is cancelled the loop drains what is already queued before closing
// the returned channel, so verdicts given during shutdown still count.
func (c *Consumer) ConsumeFeedback(ctx context.Context, consumerName string, handler MessageHandler) (<-chan struct{}, error) {
	stream, err := c.js.Stream(ctx, FeedbackStreamName)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", FeedbackStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: "feedback.>",
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				drainFeedback(cons, handler)
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					drainFeedback(cons, handler)
					return
				}
				slog.Warn("fetch feedback error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := handler(ctx, msg); err != nil {
					slog.Error("process feedback error", "error", err, "subject", msg.Subject())
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("feedback consumer started", "consumer", consumerName)
	return done, nil
}

// drainFeedback applies verdicts still queued at shutdown so they reach the
// learner before its state is persisted, instead of waiting for redelivery on
// the next run. Bounded: stops at the first empty fetch or after 5 seconds.
func drainFeedback(cons jetstream.Consumer, handler MessageHandler) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for ctx.Err() == nil {
		batch, err := cons.Fetch(10, jetstream.FetchMaxWait(500*time.Millisecond))
		if err != nil {
			return
		}

		handled := 0
		for msg := range batch.Messages() {
			if err := handler(ctx, msg); err != nil {
				slog.Error("process feedback error", "error", err, "subject", msg.Subject())
				_ = msg.Nak()
			} else {
				_ = msg.Ack()
			}
			handled++
		}
		if handled == 0 {
			return
		}
	}
}

// ConsumeDecisions tails the DECISIONS stream from its live edge, for
// operator-facing surfaces like the review CLI.
func (c *Consumer) ConsumeDecisions(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, DecisionsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", DecisionsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: DecisionsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := handler(ctx, msg); err != nil {
					slog.Error("process decision error", "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("decision consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
