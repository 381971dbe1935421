package dto

// FeedbackRequest is an operator verdict on a pending prediction. FrameID 0
// (or omitted) targets the most recent pending prediction. TrueName is only
// consulted when Correct is false; empty means the face was a stranger.
type FeedbackRequest struct {
	FrameID  uint64 `json:"frame_id,omitempty"`
	Correct  *bool  `json:"correct" binding:"required"`
	TrueName string `json:"true_name,omitempty"`
}

// FeedbackResponse reports how the verdict moved the thresholds.
type FeedbackResponse struct {
	FrameID        uint64  `json:"frame_id"`
	Predicted      string  `json:"predicted"`
	Actual         string  `json:"actual"`
	Correct        bool    `json:"correct"`
	Similarity     float64 `json:"similarity"`
	OldThreshold   float64 `json:"old_threshold"`
	NewThreshold   float64 `json:"new_threshold"`
	PersonAccuracy float64 `json:"person_accuracy"`
}
