// Package learner implements the adaptive-threshold decision engine: it holds
// the global and per-person similarity thresholds, records pending predictions,
// and consumes asynchronous human feedback to adjust thresholds and statistics
// without destabilizing live decisions.
package learner

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/your-org/facewatch/internal/models"
)

// ErrNotFound is returned when feedback references a frame ID with no pending
// prediction (never logged, already resolved, or evicted).
var ErrNotFound = errors.New("no pending prediction for frame")

// ErrNoPending is returned by feedback-on-latest when nothing is pending.
var ErrNoPending = errors.New("no pending predictions")

// Config holds the learner's tuning parameters. Zero values fall back to the
// defaults the system ships with.
type Config struct {
	LearningRate     float64 `yaml:"learning_rate"`
	MinThreshold     float64 `yaml:"min_threshold"`
	MaxThreshold     float64 `yaml:"max_threshold"`
	InitialThreshold float64 `yaml:"initial_threshold"`
	MaxPending       int     `yaml:"max_pending"`
	MinSamples       int     `yaml:"min_samples"`
	RecentWindow     int     `yaml:"recent_window"`
	StatePath        string  `yaml:"state_path"`
}

func (c Config) withDefaults() Config {
	if c.LearningRate == 0 {
		c.LearningRate = 0.02
	}
	if c.MinThreshold == 0 {
		c.MinThreshold = 0.65
	}
	if c.MaxThreshold == 0 {
		c.MaxThreshold = 0.92
	}
	if c.InitialThreshold == 0 {
		c.InitialThreshold = 0.80
	}
	if c.MaxPending == 0 {
		c.MaxPending = 100
	}
	if c.MinSamples == 0 {
		c.MinSamples = 5
	}
	if c.RecentWindow == 0 {
		c.RecentWindow = 20
	}
	return c
}

// personStats accumulates per-person feedback outcomes. Means are maintained
// incrementally so each update is O(1).
type personStats struct {
	Correct     int     `json:"correct"`
	Wrong       int     `json:"wrong"`
	MeanCorrect float64 `json:"mean_correct"` // mean similarity on correct feedback
	MeanWrong   float64 `json:"mean_wrong"`   // mean similarity on wrong feedback
	Threshold   float64 `json:"threshold"`
	HasCustom   bool    `json:"has_custom"`
}

func (p *personStats) total() int { return p.Correct + p.Wrong }

func (p *personStats) accuracy() float64 {
	if t := p.total(); t > 0 {
		return float64(p.Correct) / float64(t)
	}
	return 0
}

// pending is a logged decision awaiting feedback.
type pending struct {
	FrameID    uint64
	TrackID    int
	Name       string
	Similarity float64
	LoggedAt   time.Time
}

// Learner is the process-wide adaptive threshold state. The frame loop reads
// thresholds and logs predictions while the feedback surface writes
// concurrently, so every operation runs inside one bounded critical section.
type Learner struct {
	mu  sync.Mutex
	cfg Config

	threshold float64
	persons   map[string]*personStats
	pending   []pending // insertion order, oldest first, len <= cfg.MaxPending

	totalFeedback int
	totalCorrect  int
	recent        []bool // last RecentWindow outcomes, oldest first

	// confidence calibration across all feedback
	calCorrectMean float64
	calCorrectN    int
	calWrongMean   float64
	calWrongN      int
}

func New(cfg Config) *Learner {
	cfg = cfg.withDefaults()
	return &Learner{
		cfg:       cfg,
		threshold: clip(cfg.InitialThreshold, cfg.MinThreshold, cfg.MaxThreshold),
		persons:   make(map[string]*personStats),
	}
}

// LogPrediction registers a decision as awaiting feedback. When the pending
// queue is at capacity the oldest unresolved entry is evicted silently.
func (l *Learner) LogPrediction(frameID uint64, trackID int, name string, similarity float32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, pending{
		FrameID:    frameID,
		TrackID:    trackID,
		Name:       name,
		Similarity: float64(similarity),
		LoggedAt:   time.Now(),
	})
	if len(l.pending) > l.cfg.MaxPending {
		l.pending = l.pending[1:]
	}
}

// FeedbackResult reports the effect of one feedback event.
type FeedbackResult struct {
	FrameID        uint64  `json:"frame_id"`
	Predicted      string  `json:"predicted"`
	Actual         string  `json:"actual"`
	Correct        bool    `json:"correct"`
	Similarity     float64 `json:"similarity"`
	OldThreshold   float64 `json:"old_threshold"`
	NewThreshold   float64 `json:"new_threshold"`
	PersonAccuracy float64 `json:"person_accuracy"`
}

// Feedback resolves the pending prediction for frameID. Each frame ID is
// consumed at most once; a second feedback, or feedback for an evicted entry,
// returns ErrNotFound without mutating any statistics.
func (l *Learner) Feedback(frameID uint64, correct bool, trueName string) (FeedbackResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i := range l.pending {
		if l.pending[i].FrameID == frameID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return FeedbackResult{}, ErrNotFound
	}
	pred := l.pending[idx]
	l.pending = append(l.pending[:idx], l.pending[idx+1:]...)

	return l.apply(pred, correct, trueName), nil
}

// FeedbackLatest resolves the most recently logged pending prediction.
func (l *Learner) FeedbackLatest(correct bool, trueName string) (FeedbackResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return FeedbackResult{}, ErrNoPending
	}
	pred := l.pending[len(l.pending)-1]
	l.pending = l.pending[:len(l.pending)-1]

	return l.apply(pred, correct, trueName), nil
}

// apply performs the threshold and statistics updates for one resolved
// prediction. Caller holds l.mu.
func (l *Learner) apply(pred pending, correct bool, trueName string) FeedbackResult {
	old := l.threshold
	sim := pred.Similarity

	// Global threshold update. Correct feedback relaxes the threshold in
	// proportion to how comfortably the prediction cleared it; wrong feedback
	// always tightens, harder for confident false positives. Either way the
	// step is bounded by 2x the learning rate and the result stays in bounds.
	if correct {
		margin := sim - l.threshold
		if margin > 0 {
			l.threshold = clip(l.threshold-l.cfg.LearningRate*margin, l.cfg.MinThreshold, l.cfg.MaxThreshold)
		}
	} else {
		l.threshold = clip(l.threshold+l.cfg.LearningRate*(1.0+sim), l.cfg.MinThreshold, l.cfg.MaxThreshold)
	}

	// Statistics accrue to the resolved name: the prediction when correct,
	// the supplied ground truth (or the Unknown bucket) when not.
	actual := pred.Name
	if !correct {
		actual = trueName
		if actual == "" {
			actual = models.Unknown
		}
	}

	stats, ok := l.persons[actual]
	if !ok {
		stats = &personStats{}
		l.persons[actual] = stats
	}
	if correct {
		stats.Correct++
		stats.MeanCorrect += (sim - stats.MeanCorrect) / float64(stats.Correct)
		l.calCorrectN++
		l.calCorrectMean += (sim - l.calCorrectMean) / float64(l.calCorrectN)
	} else {
		stats.Wrong++
		stats.MeanWrong += (sim - stats.MeanWrong) / float64(stats.Wrong)
		l.calWrongN++
		l.calWrongMean += (sim - l.calWrongMean) / float64(l.calWrongN)
	}

	l.recomputePersonThreshold(stats)

	l.totalFeedback++
	if correct {
		l.totalCorrect++
	}
	l.recent = append(l.recent, correct)
	if len(l.recent) > l.cfg.RecentWindow {
		l.recent = l.recent[1:]
	}

	return FeedbackResult{
		FrameID:        pred.FrameID,
		Predicted:      pred.Name,
		Actual:         actual,
		Correct:        correct,
		Similarity:     sim,
		OldThreshold:   old,
		NewThreshold:   l.threshold,
		PersonAccuracy: stats.accuracy(),
	}
}

// recomputePersonThreshold adjusts a person's custom threshold once enough
// samples exist: strict for low accuracy, lenient for sustained high accuracy,
// otherwise an exponential blend back toward the global value.
func (l *Learner) recomputePersonThreshold(stats *personStats) {
	if stats.total() < l.cfg.MinSamples {
		return
	}

	acc := stats.accuracy()
	switch {
	case acc < 0.75:
		stats.Threshold = clip(l.threshold+0.08, l.cfg.MinThreshold, l.cfg.MaxThreshold)
		stats.HasCustom = true
	case acc > 0.95 && stats.total() >= 10:
		stats.Threshold = clip(l.threshold-0.05, l.cfg.MinThreshold, l.cfg.MaxThreshold)
		stats.HasCustom = true
	default:
		if stats.HasCustom {
			stats.Threshold = clip(0.7*stats.Threshold+0.3*l.threshold, l.cfg.MinThreshold, l.cfg.MaxThreshold)
		}
	}
}

// Threshold returns the applicable threshold for an identity: the custom one
// once its feedback sample count reaches MinSamples, else the global.
// Implements resolve.ThresholdProvider.
func (l *Learner) Threshold(name string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if stats, ok := l.persons[name]; ok && stats.HasCustom && stats.total() >= l.cfg.MinSamples {
		return stats.Threshold
	}
	return l.threshold
}

// GlobalThreshold returns the current global threshold.
func (l *Learner) GlobalThreshold() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.threshold
}

// PersonSnapshot is one per-person entry in a statistics snapshot.
type PersonSnapshot struct {
	Name            string   `json:"name"`
	Accuracy        float64  `json:"accuracy"`
	Total           int      `json:"total"`
	Correct         int      `json:"correct"`
	Wrong           int      `json:"wrong"`
	MeanCorrect     float64  `json:"mean_correct"`
	MeanWrong       float64  `json:"mean_wrong"`
	CustomThreshold *float64 `json:"custom_threshold,omitempty"`
}

// Calibration summarizes how well similarity separates correct from wrong
// predictions. A large positive separation means confidence is informative.
type Calibration struct {
	MeanCorrect float64 `json:"mean_similarity_correct"`
	MeanWrong   float64 `json:"mean_similarity_incorrect"`
	Separation  float64 `json:"separation"`
}

// Snapshot is a consistent read of the learner's statistics.
type Snapshot struct {
	GlobalThreshold float64          `json:"global_threshold"`
	ThresholdBounds [2]float64       `json:"threshold_bounds"`
	OverallAccuracy float64          `json:"overall_accuracy"`
	RecentAccuracy  float64          `json:"recent_accuracy"`
	TotalFeedback   int              `json:"total_feedback"`
	PendingCount    int              `json:"pending_predictions"`
	Calibration     Calibration      `json:"confidence_calibration"`
	Persons         []PersonSnapshot `json:"person_stats"`
}

// Statistics returns a snapshot of all learner state, persons sorted by
// feedback volume.
func (l *Learner) Statistics() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{
		GlobalThreshold: l.threshold,
		ThresholdBounds: [2]float64{l.cfg.MinThreshold, l.cfg.MaxThreshold},
		TotalFeedback:   l.totalFeedback,
		PendingCount:    len(l.pending),
		Calibration: Calibration{
			MeanCorrect: l.calCorrectMean,
			MeanWrong:   l.calWrongMean,
			Separation:  l.calCorrectMean - l.calWrongMean,
		},
	}
	if l.totalFeedback > 0 {
		snap.OverallAccuracy = float64(l.totalCorrect) / float64(l.totalFeedback)
	}
	if n := len(l.recent); n > 0 {
		c := 0
		for _, ok := range l.recent {
			if ok {
				c++
			}
		}
		snap.RecentAccuracy = float64(c) / float64(n)
	}

	for name, stats := range l.persons {
		ps := PersonSnapshot{
			Name:        name,
			Accuracy:    stats.accuracy(),
			Total:       stats.total(),
			Correct:     stats.Correct,
			Wrong:       stats.Wrong,
			MeanCorrect: stats.MeanCorrect,
			MeanWrong:   stats.MeanWrong,
		}
		if stats.HasCustom && stats.total() >= l.cfg.MinSamples {
			t := stats.Threshold
			ps.CustomThreshold = &t
		}
		snap.Persons = append(snap.Persons, ps)
	}
	sort.Slice(snap.Persons, func(i, j int) bool {
		if snap.Persons[i].Total != snap.Persons[j].Total {
			return snap.Persons[i].Total > snap.Persons[j].Total
		}
		return snap.Persons[i].Name < snap.Persons[j].Name
	})

	return snap
}

// PendingPrediction is one queue entry awaiting feedback.
type PendingPrediction struct {
	FrameID    uint64    `json:"frame_id"`
	TrackID    int       `json:"track_id"`
	Predicted  string    `json:"predicted"`
	Similarity float64   `json:"similarity"`
	LoggedAt   time.Time `json:"logged_at"`
}

// Pending returns up to limit of the most recent predictions awaiting
// feedback, oldest first.
func (l *Learner) Pending(limit int) []PendingPrediction {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := 0
	if limit > 0 && len(l.pending) > limit {
		start = len(l.pending) - limit
	}
	out := make([]PendingPrediction, 0, len(l.pending)-start)
	for _, p := range l.pending[start:] {
		out = append(out, PendingPrediction{
			FrameID:    p.FrameID,
			TrackID:    p.TrackID,
			Predicted:  p.Name,
			Similarity: p.Similarity,
			LoggedAt:   p.LoggedAt,
		})
	}
	return out
}

// PendingCount returns the number of predictions awaiting feedback.
func (l *Learner) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Reset clears all statistics and thresholds back to defaults, atomically
// with respect to concurrent reads.
func (l *Learner) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.threshold = clip(l.cfg.InitialThreshold, l.cfg.MinThreshold, l.cfg.MaxThreshold)
	l.persons = make(map[string]*personStats)
	l.pending = nil
	l.totalFeedback = 0
	l.totalCorrect = 0
	l.recent = nil
	l.calCorrectMean = 0
	l.calCorrectN = 0
	l.calWrongMean = 0
	l.calWrongN = 0
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
