package track

import (
	"sort"
	"sync"

	"github.com/your-org/facewatch/internal/models"
)

// matchThreshold is the minimum IoU for a detection to be associated with an
// existing track.
const matchThreshold = 0.5

// State is the lifecycle stage of a track.
type State int

const (
	StateNew State = iota // created this frame, not yet re-matched
	StateActive
	StateStale // unmatched at least once, TTL counting down
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateStale:
		return "stale"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// observation is one per-frame resolver output for a track.
type observation struct {
	label      string
	similarity float32
}

// Track is a persistent identity placeholder for one face across frames.
// All mutation happens inside the Manager under its lock.
type Track struct {
	ID         int
	BBox       models.BBox
	Confidence float32

	state     State
	ttl       int
	lastFrame uint64

	history []observation // bounded to Manager.historySize, oldest first
}

// StableLabel returns the majority label across the history window.
// Ties are broken by the most recently seen label. Empty history reports
// Unknown.
func (t *Track) StableLabel() string {
	if len(t.history) == 0 {
		return models.Unknown
	}

	counts := make(map[string]int, len(t.history))
	lastSeen := make(map[string]int, len(t.history))
	for i, obs := range t.history {
		counts[obs.label]++
		lastSeen[obs.label] = i
	}

	best := ""
	for label, n := range counts {
		if best == "" {
			best = label
			continue
		}
		if n > counts[best] || (n == counts[best] && lastSeen[label] > lastSeen[best]) {
			best = label
		}
	}
	return best
}

// Result is one entry of Manager.Update's output, ordered by detection index.
type Result struct {
	TrackID     int
	StableLabel string
	BBox        models.BBox
	Detection   models.Detection
	IsNew       bool
}

// Manager matches per-frame detections to persistent tracks by IoU, ages and
// expires unmatched tracks, and smooths noisy per-frame labels into a stable
// displayed identity.
type Manager struct {
	mu          sync.Mutex
	tracks      map[int]*Track
	nextID      int
	maxTTL      int
	historySize int
}

func NewManager(maxTTL, historySize int) *Manager {
	if maxTTL <= 0 {
		maxTTL = 5
	}
	if historySize <= 0 {
		historySize = 10
	}
	return &Manager{
		tracks:      make(map[int]*Track),
		nextID:      1,
		maxTTL:      maxTTL,
		historySize: historySize,
	}
}

// candidate is an eligible (track, detection) pair for greedy assignment.
type candidate struct {
	trackID int
	detIdx  int
	iou     float32
}

// Update matches detections against existing tracks and returns one Result
// per detection, in detection order. A frame with no detections ages every
// track. Tracks unmatched past their TTL are removed.
func (m *Manager) Update(detections []models.Detection, frameID uint64) []Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Collect all eligible pairs, then assign greedily by descending IoU so
	// that the strongest overlaps win regardless of iteration order.
	var candidates []candidate
	for id, tr := range m.tracks {
		for di, det := range detections {
			if v := tr.BBox.IoU(det.BBox); v >= matchThreshold {
				candidates = append(candidates, candidate{trackID: id, detIdx: di, iou: v})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].iou != candidates[j].iou {
			return candidates[i].iou > candidates[j].iou
		}
		if candidates[i].detIdx != candidates[j].detIdx {
			return candidates[i].detIdx < candidates[j].detIdx
		}
		return candidates[i].trackID < candidates[j].trackID
	})

	trackMatched := make(map[int]bool)
	detMatched := make(map[int]int) // detection index -> track ID
	for _, c := range candidates {
		if trackMatched[c.trackID] {
			continue
		}
		if _, taken := detMatched[c.detIdx]; taken {
			continue
		}
		trackMatched[c.trackID] = true
		detMatched[c.detIdx] = c.trackID
	}

	results := make([]Result, 0, len(detections))
	for di, det := range detections {
		id, ok := detMatched[di]
		if ok {
			tr := m.tracks[id]
			tr.BBox = det.BBox
			tr.Confidence = det.Confidence
			tr.ttl = m.maxTTL
			tr.state = StateActive
			tr.lastFrame = frameID
			results = append(results, Result{
				TrackID:     tr.ID,
				StableLabel: tr.StableLabel(),
				BBox:        tr.BBox,
				Detection:   det,
			})
			continue
		}

		tr := &Track{
			ID:         m.nextID,
			BBox:       det.BBox,
			Confidence: det.Confidence,
			state:      StateNew,
			ttl:        m.maxTTL,
			lastFrame:  frameID,
		}
		m.nextID++
		m.tracks[tr.ID] = tr
		results = append(results, Result{
			TrackID:     tr.ID,
			StableLabel: tr.StableLabel(),
			BBox:        tr.BBox,
			Detection:   det,
			IsNew:       true,
		})
	}

	// Age unmatched tracks. A track survives exactly maxTTL misses and is
	// removed on the miss after that.
	for id, tr := range m.tracks {
		if trackMatched[id] || tr.lastFrame == frameID {
			continue
		}
		if tr.ttl == 0 {
			tr.state = StateExpired
			delete(m.tracks, id)
			continue
		}
		tr.ttl--
		tr.state = StateStale
	}

	return results
}

// Observe appends the resolver's output for a track to its label history,
// evicting the oldest entry when the window is full. Unknown track IDs are
// ignored (the track may have expired between Update and Observe).
func (m *Manager) Observe(trackID int, label string, similarity float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, ok := m.tracks[trackID]
	if !ok {
		return
	}
	tr.history = append(tr.history, observation{label: label, similarity: similarity})
	if len(tr.history) > m.historySize {
		tr.history = tr.history[1:]
	}
}

// StableLabel returns the smoothed label for a track, or Unknown if the track
// no longer exists.
func (m *Manager) StableLabel(trackID int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, ok := m.tracks[trackID]
	if !ok {
		return models.Unknown
	}
	return tr.StableLabel()
}

// Count returns the number of live tracks.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks)
}
