package engine

import (
	"context"
	"errors"

	"github.com/your-org/facewatch/internal/models"
)

// ErrEndOfStream is returned by a FrameSource when the underlying video
// source has no more frames.
var ErrEndOfStream = errors.New("end of stream")

// FrameSource supplies video frames. Next blocks until a frame is available,
// the stream ends (ErrEndOfStream), or the context is cancelled.
type FrameSource interface {
	Next(ctx context.Context) (models.Frame, error)
}

// FaceDetector finds faces in a frame.
type FaceDetector interface {
	DetectFaces(ctx context.Context, frame models.Frame) ([]models.Detection, error)
}

// FaceEmbedder extracts a fixed-length embedding for a face region.
type FaceEmbedder interface {
	Embed(ctx context.Context, frame models.Frame, bbox models.BBox) ([]float32, error)
}

// EnrollmentStore provides a read-only snapshot of enrolled identities:
// name to reference embeddings.
type EnrollmentStore interface {
	EnrolledIdentities(ctx context.Context) (map[string][][]float32, error)
}

// FaceCropper produces an encoded JPEG crop of a face region, used to attach
// snapshots to decision events. Optional.
type FaceCropper interface {
	CropFace(frame models.Frame, bbox models.BBox) ([]byte, error)
}

// DecisionSink receives decision events, one per resolved track per frame,
// in frame order. Sink errors are logged by the coordinator and never stall
// the loop.
type DecisionSink interface {
	OnDecision(ctx context.Context, ev models.DecisionEvent) error
}
