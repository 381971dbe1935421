package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facewatch/internal/learner"
	"github.com/your-org/facewatch/pkg/dto"
)

// FeedbackApplier is the engine-side surface feedback lands on.
type FeedbackApplier interface {
	ProvideFeedback(frameID uint64, correct bool, trueName string) (learner.FeedbackResult, error)
}

type FeedbackHandler struct {
	engine FeedbackApplier
}

func NewFeedbackHandler(engine FeedbackApplier) *FeedbackHandler {
	return &FeedbackHandler{engine: engine}
}

// Submit applies an operator verdict to a pending prediction and reports
// the threshold movement it caused.
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req dto.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.ProvideFeedback(req.FrameID, *req.Correct, req.TrueName)
	if err != nil {
		switch {
		case errors.Is(err, learner.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no pending prediction for frame_id"})
		case errors.Is(err, learner.ErrNoPending):
			c.JSON(http.StatusNotFound, gin.H{"error": "no pending predictions"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, dto.FeedbackResponse{
		FrameID:        result.FrameID,
		Predicted:      result.Predicted,
		Actual:         result.Actual,
		Correct:        result.Correct,
		Similarity:     result.Similarity,
		OldThreshold:   result.OldThreshold,
		NewThreshold:   result.NewThreshold,
		PersonAccuracy: result.PersonAccuracy,
	})
}
