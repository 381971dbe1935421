// Package engine drives the per-frame recognition cycle: capture, detect,
// track, resolve, dispatch, and register pending predictions with the
// adaptive threshold learner. Feedback arrives asynchronously through
// ProvideFeedback and is visible to the next resolution call.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/learner"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/resolve"
	"github.com/your-org/facewatch/internal/track"
)

// Coordinator owns the sequential frame loop. External collaborators are
// consumed through capability interfaces; the learner is shared with the
// feedback surface and is internally synchronized.
type Coordinator struct {
	source     FrameSource
	detector   FaceDetector
	embedder   FaceEmbedder
	enrollment EnrollmentStore
	cropper    FaceCropper // may be nil

	tracker  *track.Manager
	resolver *resolve.Resolver
	learner  *learner.Learner
	sinks    []DecisionSink

	sessionID uuid.UUID
	seq       uint64 // frame sequence, loop-only
	frameID   uint64 // monotonic prediction identifier, loop-only
}

// Options bundles the coordinator's collaborators.
type Options struct {
	Source     FrameSource
	Detector   FaceDetector
	Embedder   FaceEmbedder
	Enrollment EnrollmentStore
	Cropper    FaceCropper
	Tracker    *track.Manager
	Resolver   *resolve.Resolver
	Learner    *learner.Learner
	Sinks      []DecisionSink
}

func NewCoordinator(opts Options) *Coordinator {
	return &Coordinator{
		source:     opts.Source,
		detector:   opts.Detector,
		embedder:   opts.Embedder,
		enrollment: opts.Enrollment,
		cropper:    opts.Cropper,
		tracker:    opts.Tracker,
		resolver:   opts.Resolver,
		learner:    opts.Learner,
		sinks:      opts.Sinks,
		sessionID:  uuid.New(),
	}
}

// SessionID identifies this engine run in decision events.
func (c *Coordinator) SessionID() uuid.UUID {
	return c.sessionID
}

// Run consumes frames until the source ends or the context is cancelled.
// Cancellation completes the in-flight frame and then saves the learner
// state; pending predictions without feedback are discarded.
func (c *Coordinator) Run(ctx context.Context) error {
	slog.Info("engine loop started", "session_id", c.sessionID)

	for {
		if ctx.Err() != nil {
			break
		}

		frame, err := c.source.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrEndOfStream) {
				slog.Info("frame source ended")
				break
			}
			if ctx.Err() != nil {
				break
			}
			// Capture hiccups age tracks instead of killing the loop.
			slog.Warn("frame source error", "error", err)
			c.processFrame(ctx, models.Frame{Timestamp: time.Now()}, true)
			continue
		}

		c.processFrame(ctx, frame, false)
	}

	if err := c.learner.Save(); err != nil {
		slog.Warn("final learner save failed", "error", err)
	}
	slog.Info("engine loop stopped", "session_id", c.sessionID, "frames", c.seq)
	return nil
}

// processFrame runs one cycle: detect, track, and for every surviving track
// resolve an identity, dispatch the decision, and log the pending prediction.
func (c *Coordinator) processFrame(ctx context.Context, frame models.Frame, sourceFailed bool) {
	c.seq++
	observability.FramesProcessed.Inc()

	var detections []models.Detection
	if !sourceFailed {
		dets, err := c.detector.DetectFaces(ctx, frame)
		if err != nil {
			// Upstream unavailable: treated as zero detections this frame.
			slog.Warn("detector error", "error", err, "frame", c.seq)
		} else {
			detections = dets
		}
	}
	observability.FacesDetected.Add(float64(len(detections)))

	results := c.tracker.Update(detections, c.seq)
	observability.ActiveTracks.Set(float64(c.tracker.Count()))
	if len(results) == 0 {
		return
	}

	enrolled, err := c.enrollment.EnrolledIdentities(ctx)
	if err != nil {
		slog.Warn("enrollment store error", "error", err, "frame", c.seq)
		enrolled = nil // every resolution this frame is Unknown
	}

	for _, r := range results {
		embedding, err := c.embedder.Embed(ctx, frame, r.BBox)
		if err != nil {
			slog.Warn("embed error", "error", err, "track", r.TrackID)
			continue
		}

		decision := c.resolver.Resolve(embedding, enrolled)
		c.tracker.Observe(r.TrackID, decision.Name, decision.Similarity)

		c.frameID++
		c.learner.LogPrediction(c.frameID, r.TrackID, decision.Name, decision.Similarity)

		outcome := "unknown"
		if decision.Known() {
			outcome = "known"
		}
		observability.Decisions.WithLabelValues(outcome).Inc()

		ev := models.DecisionEvent{
			SessionID:  c.sessionID,
			FrameID:    c.frameID,
			TrackID:    r.TrackID,
			Name:       decision.Name,
			StableName: c.tracker.StableLabel(r.TrackID),
			Similarity: decision.Similarity,
			BBox:       r.BBox,
			Timestamp:  frame.Timestamp,
		}
		if c.cropper != nil && !decision.Known() {
			if crop, err := c.cropper.CropFace(frame, r.BBox); err == nil {
				ev.Snapshot = crop
			} else {
				slog.Warn("crop error", "error", err, "track", r.TrackID)
			}
		}

		for _, sink := range c.sinks {
			if err := sink.OnDecision(ctx, ev); err != nil {
				slog.Warn("decision sink error", "error", err, "frame_id", ev.FrameID)
			}
		}
	}

	observability.PendingPredictions.Set(float64(c.learner.PendingCount()))
	observability.GlobalThreshold.Set(c.learner.GlobalThreshold())
}

// ProvideFeedback forwards a correctness event from the feedback surface to
// the learner. frameID zero targets the most recent pending prediction.
// Returns learner.ErrNotFound when the referenced prediction is absent.
func (c *Coordinator) ProvideFeedback(frameID uint64, correct bool, trueName string) (learner.FeedbackResult, error) {
	var (
		res learner.FeedbackResult
		err error
	)
	if frameID == 0 {
		res, err = c.learner.FeedbackLatest(correct, trueName)
	} else {
		res, err = c.learner.Feedback(frameID, correct, trueName)
	}

	switch {
	case err != nil:
		observability.FeedbackReceived.WithLabelValues("not_found").Inc()
	case correct:
		observability.FeedbackReceived.WithLabelValues("correct").Inc()
	default:
		observability.FeedbackReceived.WithLabelValues("wrong").Inc()
	}
	if err == nil {
		observability.GlobalThreshold.Set(res.NewThreshold)
		slog.Info("feedback applied",
			"frame_id", res.FrameID,
			"correct", correct,
			"predicted", res.Predicted,
			"actual", res.Actual,
			"threshold", res.NewThreshold,
		)
	}
	return res, err
}
