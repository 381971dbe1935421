package engine

import (
	"context"
	"log/slog"

	"github.com/your-org/facewatch/internal/models"
)

// LogSink writes one structured log record per decision, the journal other
// collaborators (alerting, audit) tail in production setups.
type LogSink struct{}

func (LogSink) OnDecision(_ context.Context, ev models.DecisionEvent) error {
	slog.Info("decision",
		"frame_id", ev.FrameID,
		"track_id", ev.TrackID,
		"name", ev.Name,
		"stable_name", ev.StableName,
		"similarity", ev.Similarity,
	)
	return nil
}

// SinkFunc adapts a function to the DecisionSink interface.
type SinkFunc func(ctx context.Context, ev models.DecisionEvent) error

func (f SinkFunc) OnDecision(ctx context.Context, ev models.DecisionEvent) error {
	return f(ctx, ev)
}
