package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // registered for EmbedImage's format fallback
	"log/slog"
	"path/filepath"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/models"
	"github.com/your-org/facewatch/internal/observability"
)

// Adapter exposes the ONNX detector and embedder through the engine's
// capability interfaces. Frames arrive as JPEG bytes; the adapter decodes
// each frame once and reuses the decoded image for every face in it.
type Adapter struct {
	detector *Detector
	embedder *Embedder

	// single-frame decode cache; only valid inside the sequential frame loop
	cachedStamp time.Time
	cachedLen   int
	cachedImg   image.Image
}

// NewAdapter loads both models from cfg.ModelsDir.
// opts may be nil or a shared *ort.SessionOptions (thread limits etc).
func NewAdapter(cfg config.VisionConfig, opts *ort.SessionOptions) (*Adapter, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), opts)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, opts)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	slog.Info("vision models ready")
	return &Adapter{detector: det, embedder: emb}, nil
}

func (a *Adapter) decodeFrame(frame models.Frame) (image.Image, error) {
	if a.cachedImg != nil && frame.Timestamp.Equal(a.cachedStamp) && len(frame.Data) == a.cachedLen {
		return a.cachedImg, nil
	}
	img, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	a.cachedStamp = frame.Timestamp
	a.cachedLen = len(frame.Data)
	a.cachedImg = img
	return img, nil
}

// DetectFaces decodes the frame and runs the RetinaFace detector on it.
func (a *Adapter) DetectFaces(_ context.Context, frame models.Frame) ([]models.Detection, error) {
	img, err := a.decodeFrame(frame)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()

	start := time.Now()
	input := preprocessForDetection(img, a.detector.inputW, a.detector.inputH)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	start = time.Now()
	detections, err := a.detector.Detect(input, bounds.Dx(), bounds.Dy())
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return detections, nil
}

// Embed crops the face region and extracts its ArcFace embedding.
func (a *Adapter) Embed(_ context.Context, frame models.Frame, bbox models.BBox) ([]float32, error) {
	img, err := a.decodeFrame(frame)
	if err != nil {
		return nil, err
	}

	crop := cropFace(img, bbox)
	if crop == nil {
		return nil, fmt.Errorf("face box outside frame")
	}

	start := time.Now()
	input := preprocessForEmbedding(crop, a.embedder.inputW, a.embedder.inputH)
	embedding, err := a.embedder.Extract(input)
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return embedding, nil
}

// CropFace returns the JPEG-encoded face region, used for decision snapshots.
func (a *Adapter) CropFace(frame models.Frame, bbox models.BBox) ([]byte, error) {
	img, err := a.decodeFrame(frame)
	if err != nil {
		return nil, err
	}
	crop := cropFace(img, bbox)
	if crop == nil {
		return nil, fmt.Errorf("face box outside frame")
	}
	return encodeJPEG(crop, 85), nil
}

// EmbedImage extracts an embedding from a standalone image: detect, pick the
// highest-confidence face, crop, embed. Serves the enrollment surfaces.
func (a *Adapter) EmbedImage(imageData []byte) ([]float32, float32, error) {
	img, err := jpeg.Decode(bytes.NewReader(imageData))
	if err != nil {
		// Try other registered formats
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, 0, fmt.Errorf("decode image: %w", err)
		}
	}

	bounds := img.Bounds()
	input := preprocessForDetection(img, a.detector.inputW, a.detector.inputH)
	detections, err := a.detector.Detect(input, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, 0, fmt.Errorf("detect: %w", err)
	}
	if len(detections) == 0 {
		return nil, 0, fmt.Errorf("no face detected in image")
	}

	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	crop := cropFace(img, best.BBox)
	if crop == nil {
		return nil, 0, fmt.Errorf("failed to crop face")
	}

	embedding, err := a.embedder.Extract(preprocessForEmbedding(crop, a.embedder.inputW, a.embedder.inputH))
	if err != nil {
		return nil, 0, fmt.Errorf("embed: %w", err)
	}

	return embedding, best.Confidence, nil
}

// Close releases the ONNX sessions.
func (a *Adapter) Close() {
	if a.detector != nil {
		a.detector.Close()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
}
