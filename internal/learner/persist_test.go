package learner

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learner.json")

	l := New(Config{StatePath: path})
	rng := rand.New(rand.NewSource(7))
	names := []string{"alice", "bob", "carol"}
	for i := uint64(1); i <= 200; i++ {
		name := names[rng.Intn(len(names))]
		l.LogPrediction(i, 1, name, 0.6+0.35*rng.Float32())
		if _, err := l.Feedback(i, rng.Intn(3) != 0, names[rng.Intn(len(names))]); err != nil {
			t.Fatalf("feedback %d: %v", i, err)
		}
	}
	if err := l.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fresh := New(Config{StatePath: path})
	if !fresh.Load() {
		t.Fatal("Load reported no restored state")
	}

	want := l.Statistics()
	got := fresh.Statistics()

	if got.GlobalThreshold != want.GlobalThreshold {
		t.Errorf("GlobalThreshold = %v; want %v", got.GlobalThreshold, want.GlobalThreshold)
	}
	if got.TotalFeedback != want.TotalFeedback {
		t.Errorf("TotalFeedback = %d; want %d", got.TotalFeedback, want.TotalFeedback)
	}
	if got.OverallAccuracy != want.OverallAccuracy {
		t.Errorf("OverallAccuracy = %v; want %v", got.OverallAccuracy, want.OverallAccuracy)
	}
	if got.RecentAccuracy != want.RecentAccuracy {
		t.Errorf("RecentAccuracy = %v; want %v", got.RecentAccuracy, want.RecentAccuracy)
	}
	if got.Calibration != want.Calibration {
		t.Errorf("Calibration = %+v; want %+v", got.Calibration, want.Calibration)
	}
	if len(got.Persons) != len(want.Persons) {
		t.Fatalf("persons = %d; want %d", len(got.Persons), len(want.Persons))
	}
	for i := range want.Persons {
		w, g := want.Persons[i], got.Persons[i]
		if g.Name != w.Name || g.Correct != w.Correct || g.Wrong != w.Wrong {
			t.Errorf("person %d: got %+v want %+v", i, g, w)
		}
		if math.Abs(g.MeanCorrect-w.MeanCorrect) > 1e-12 || math.Abs(g.MeanWrong-w.MeanWrong) > 1e-12 {
			t.Errorf("person %s means differ: got %+v want %+v", w.Name, g, w)
		}
		if (g.CustomThreshold == nil) != (w.CustomThreshold == nil) {
			t.Errorf("person %s custom threshold presence differs", w.Name)
		} else if w.CustomThreshold != nil && *g.CustomThreshold != *w.CustomThreshold {
			t.Errorf("person %s custom threshold = %v; want %v", w.Name, *g.CustomThreshold, *w.CustomThreshold)
		}
	}

	// Pending predictions do not survive restarts.
	if got.PendingCount != 0 {
		t.Errorf("pending predictions leaked through persistence: %d", got.PendingCount)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	l := New(Config{StatePath: filepath.Join(t.TempDir(), "nope.json")})
	if l.Load() {
		t.Error("Load of a missing file should report false")
	}
	if g := l.GlobalThreshold(); g != 0.80 {
		t.Errorf("threshold after failed load = %v; want default 0.80", g)
	}
}

func TestLoadCorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learner.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(Config{StatePath: path})
	if l.Load() {
		t.Error("Load of corrupt blob should report false")
	}
	if g := l.GlobalThreshold(); g != 0.80 {
		t.Errorf("threshold after corrupt load = %v; want default 0.80", g)
	}
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learner.json")
	blob, _ := json.Marshal(map[string]any{
		"version":          99,
		"global_threshold": 0.90,
	})
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(Config{StatePath: path})
	if l.Load() {
		t.Error("Load of a future version should report false")
	}
	if g := l.GlobalThreshold(); g != 0.80 {
		t.Errorf("threshold after version mismatch = %v; want default 0.80", g)
	}
}

func TestLoadClampsTamperedThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learner.json")

	l := New(Config{StatePath: path})
	if err := l.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Hand-edit the blob way above the legal range.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatal(err)
	}
	state["global_threshold"] = 5.0
	data, _ = json.Marshal(state)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	fresh := New(Config{StatePath: path})
	if !fresh.Load() {
		t.Fatal("Load should accept a current-version blob")
	}
	if g := fresh.GlobalThreshold(); g != 0.92 {
		t.Errorf("tampered threshold not clamped: %v; want 0.92", g)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "learner.json")

	l := New(Config{StatePath: path})
	if err := l.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Only the final file remains, no leftover temp artifacts.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "learner.json" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

func TestExportStatistics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	l := newTestLearner()
	l.LogPrediction(1, 1, "alice", 0.9)
	l.Feedback(1, true, "")

	if err := l.ExportStatistics(path); err != nil {
		t.Fatalf("ExportStatistics: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("exported statistics not valid JSON: %v", err)
	}
	if snap.TotalFeedback != 1 || len(snap.Persons) != 1 {
		t.Errorf("exported snapshot wrong: %+v", snap)
	}
}
