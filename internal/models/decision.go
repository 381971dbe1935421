package models

import (
	"time"

	"github.com/google/uuid"
)

// Unknown is the label reported when no enrolled identity clears the
// applicable threshold.
const Unknown = "Unknown"

// Decision is the resolver's verdict for one track in one frame.
type Decision struct {
	Name       string  `json:"name"` // Unknown when no match
	Similarity float32 `json:"similarity"`
}

// Known reports whether the decision resolved to an enrolled identity.
func (d Decision) Known() bool {
	return d.Name != "" && d.Name != Unknown
}

// DecisionEvent is dispatched to sinks once per resolved track per frame.
// FrameID is the monotonic prediction identifier registered with the learner;
// StableName is the track's smoothed display label, which may lag Decision.Name
// while the history window catches up.
type DecisionEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	FrameID    uint64    `json:"frame_id"`
	TrackID    int       `json:"track_id"`
	Name       string    `json:"name"`
	StableName string    `json:"stable_name"`
	Similarity float32   `json:"similarity"`
	BBox       BBox      `json:"bbox"`
	Timestamp  time.Time `json:"timestamp"`
	Snapshot   []byte    `json:"-"` // JPEG face crop, for snapshot sinks only
}
