package learner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// stateVersion is bumped whenever the persisted schema changes shape.
const stateVersion = 1

// persistedState is the on-disk form of the learner. Pending predictions are
// deliberately not persisted: their learning opportunity ends with the process.
type persistedState struct {
	Version         int                     `json:"version"`
	SavedAt         time.Time               `json:"saved_at"`
	GlobalThreshold float64                 `json:"global_threshold"`
	LearningRate    float64                 `json:"learning_rate"`
	ThresholdBounds [2]float64              `json:"threshold_bounds"`
	TotalFeedback   int                     `json:"total_feedback"`
	TotalCorrect    int                     `json:"total_correct"`
	Recent          []bool                  `json:"recent"`
	CalCorrectMean  float64                 `json:"cal_correct_mean"`
	CalCorrectN     int                     `json:"cal_correct_n"`
	CalWrongMean    float64                 `json:"cal_wrong_mean"`
	CalWrongN       int                     `json:"cal_wrong_n"`
	Persons         map[string]*personStats `json:"persons"`
}

// Save writes the learner state to its configured path atomically
// (write-then-rename), so a crash mid-save never leaves a partial blob.
func (l *Learner) Save() error {
	l.mu.Lock()
	state := persistedState{
		Version:         stateVersion,
		SavedAt:         time.Now(),
		GlobalThreshold: l.threshold,
		LearningRate:    l.cfg.LearningRate,
		ThresholdBounds: [2]float64{l.cfg.MinThreshold, l.cfg.MaxThreshold},
		TotalFeedback:   l.totalFeedback,
		TotalCorrect:    l.totalCorrect,
		Recent:          append([]bool(nil), l.recent...),
		CalCorrectMean:  l.calCorrectMean,
		CalCorrectN:     l.calCorrectN,
		CalWrongMean:    l.calWrongMean,
		CalWrongN:       l.calWrongN,
		Persons:         make(map[string]*personStats, len(l.persons)),
	}
	for name, stats := range l.persons {
		cp := *stats
		state.Persons[name] = &cp
	}
	path := l.cfg.StatePath
	l.mu.Unlock()

	if path == "" {
		return fmt.Errorf("no state path configured")
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal learner state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write learner state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace learner state: %w", err)
	}

	slog.Info("saved learner state",
		"path", path,
		"global_threshold", state.GlobalThreshold,
		"total_feedback", state.TotalFeedback,
		"persons", len(state.Persons),
	)
	return nil
}

// Load restores state from the configured path. A missing, unreadable, or
// version-incompatible blob falls back to the current (fresh) state with a
// warning; it is never surfaced as an error to the caller. Returns whether a
// previous state was restored.
func (l *Learner) Load() bool {
	l.mu.Lock()
	path := l.cfg.StatePath
	l.mu.Unlock()

	if path == "" {
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("no previous learner state", "path", path)
		} else {
			slog.Warn("learner state unreadable, starting fresh", "path", path, "error", err)
		}
		return false
	}

	// Decode the version tag first so an incompatible blob is distinguishable
	// from a corrupt one.
	var envelope struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		slog.Warn("learner state corrupt, starting fresh", "path", path, "error", err)
		return false
	}
	if envelope.Version != stateVersion {
		slog.Warn("learner state version unsupported, starting fresh",
			"path", path, "found", envelope.Version, "want", stateVersion)
		return false
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("learner state corrupt, starting fresh", "path", path, "error", err)
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Bounds travel with the blob, but the restored threshold is still
	// clamped so an edited file cannot leave the legal range.
	if state.ThresholdBounds[0] != 0 || state.ThresholdBounds[1] != 0 {
		l.cfg.MinThreshold = state.ThresholdBounds[0]
		l.cfg.MaxThreshold = state.ThresholdBounds[1]
	}
	if state.LearningRate > 0 {
		l.cfg.LearningRate = state.LearningRate
	}
	l.threshold = clip(state.GlobalThreshold, l.cfg.MinThreshold, l.cfg.MaxThreshold)
	l.totalFeedback = state.TotalFeedback
	l.totalCorrect = state.TotalCorrect
	l.recent = append([]bool(nil), state.Recent...)
	if len(l.recent) > l.cfg.RecentWindow {
		l.recent = l.recent[len(l.recent)-l.cfg.RecentWindow:]
	}
	l.calCorrectMean = state.CalCorrectMean
	l.calCorrectN = state.CalCorrectN
	l.calWrongMean = state.CalWrongMean
	l.calWrongN = state.CalWrongN
	l.persons = make(map[string]*personStats, len(state.Persons))
	for name, stats := range state.Persons {
		cp := *stats
		cp.Threshold = clip(cp.Threshold, l.cfg.MinThreshold, l.cfg.MaxThreshold)
		l.persons[name] = &cp
	}

	slog.Info("loaded learner state",
		"path", path,
		"saved_at", state.SavedAt,
		"global_threshold", l.threshold,
		"total_feedback", l.totalFeedback,
		"persons", len(l.persons),
	)
	return true
}

// ExportStatistics writes the current statistics snapshot as indented JSON,
// for external analysis.
func (l *Learner) ExportStatistics(path string) error {
	snap := l.Statistics()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write statistics: %w", err)
	}
	return nil
}
