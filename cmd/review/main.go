// Operator-side companion to the engine. By default it tails the decision
// stream and prints one line per event; with -submit it queues a feedback
// verdict for the engine to apply.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	consumerName := flag.String("consumer", "review", "durable consumer name for the decision tail")
	submit := flag.Bool("submit", false, "queue a verdict instead of tailing decisions")
	frameID := flag.Uint64("frame", 0, "prediction to judge (0 = most recent pending)")
	correct := flag.Bool("correct", false, "whether the prediction was right")
	trueName := flag.String("true-name", "", "actual identity when the prediction was wrong (empty = stranger)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if *submit {
		if err := submitVerdict(cfg.NATS.URL, *frameID, *correct, *trueName); err != nil {
			fmt.Fprintf(os.Stderr, "submit verdict: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("verdict queued: frame=%d correct=%v true_name=%q\n", *frameID, *correct, *trueName)
		return
	}

	if err := tailDecisions(cfg.NATS.URL, *consumerName); err != nil {
		fmt.Fprintf(os.Stderr, "tail decisions: %v\n", err)
		os.Exit(1)
	}
}

func submitVerdict(natsURL string, frameID uint64, correct bool, trueName string) error {
	producer, err := queue.NewProducer(natsURL)
	if err != nil {
		return err
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return producer.PublishFeedback(ctx, dto.FeedbackRequest{
		FrameID:  frameID,
		Correct:  &correct,
		TrueName: trueName,
	})
}

func tailDecisions(natsURL, consumerName string) error {
	consumer, err := queue.NewConsumer(natsURL)
	if err != nil {
		return err
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeDecisions(ctx, consumerName, func(_ context.Context, msg jetstream.Msg) error {
		var ev models.DecisionEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			slog.Warn("undecodable decision event", "error", err, "subject", msg.Subject())
			return nil
		}
		fmt.Printf("%s  frame=%-8d track=%-4d name=%-12s stable=%-12s sim=%.3f\n",
			ev.Timestamp.Format(time.RFC3339),
			ev.FrameID, ev.TrackID, ev.Name, ev.StableName, ev.Similarity,
		)
		return nil
	})
	if err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	return nil
}
