package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facewatch/internal/learner"
)

type LearnerHandler struct {
	learner *learner.Learner
}

func NewLearnerHandler(l *learner.Learner) *LearnerHandler {
	return &LearnerHandler{learner: l}
}

// Stats returns the full adaptation snapshot: global threshold, accuracy
// windows, calibration, and per-person breakdown.
func (h *LearnerHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.learner.Statistics())
}

// Pending lists predictions still awaiting a verdict, oldest first.
func (h *LearnerHandler) Pending(c *gin.Context) {
	limit := 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	pending := h.learner.Pending(limit)
	c.JSON(http.StatusOK, gin.H{
		"pending": pending,
		"total":   h.learner.PendingCount(),
	})
}

// Reset restores the initial thresholds and drops all accumulated feedback.
func (h *LearnerHandler) Reset(c *gin.Context) {
	h.learner.Reset()
	c.JSON(http.StatusOK, gin.H{
		"status":           "reset",
		"global_threshold": h.learner.GlobalThreshold(),
	})
}

// Save persists the learner state to its configured path.
func (h *LearnerHandler) Save(c *gin.Context) {
	if err := h.learner.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// Export writes the statistics snapshot as JSON to a server-side path.
func (h *LearnerHandler) Export(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.learner.ExportStatistics(req.Path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "exported", "path": req.Path})
}
