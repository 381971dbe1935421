package learner

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func newTestLearner() *Learner {
	return New(Config{})
}

func TestDefaults(t *testing.T) {
	l := newTestLearner()
	if got := l.GlobalThreshold(); got != 0.80 {
		t.Errorf("initial threshold = %v; want 0.80", got)
	}
	if got := l.Threshold("anyone"); got != 0.80 {
		t.Errorf("Threshold for unseen person = %v; want global 0.80", got)
	}
}

func TestCorrectFeedbackRelaxesThreshold(t *testing.T) {
	l := newTestLearner()
	l.LogPrediction(1, 7, "john", 0.87)

	res, err := l.Feedback(1, true, "")
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if res.NewThreshold >= res.OldThreshold {
		t.Errorf("correct feedback above threshold should relax: %v -> %v",
			res.OldThreshold, res.NewThreshold)
	}
	// Single-step magnitude is bounded by 2x the learning rate.
	if math.Abs(res.NewThreshold-0.80) > 2*0.02 {
		t.Errorf("step %v exceeds single-step bound", res.NewThreshold-0.80)
	}
	if res.NewThreshold < 0.65 || res.NewThreshold > 0.92 {
		t.Errorf("threshold %v left bounds", res.NewThreshold)
	}
}

func TestCorrectFeedbackAtOrBelowThresholdIsNeutral(t *testing.T) {
	l := newTestLearner()
	// A correct Unknown call: similarity below threshold must not tighten.
	l.LogPrediction(1, 1, "Unknown", 0.40)
	res, err := l.Feedback(1, true, "")
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if res.NewThreshold != res.OldThreshold {
		t.Errorf("correct feedback below threshold changed it: %v -> %v",
			res.OldThreshold, res.NewThreshold)
	}
}

func TestWrongFeedbackTightensThreshold(t *testing.T) {
	l := newTestLearner()
	l.LogPrediction(1, 1, "john", 0.85)
	res, err := l.Feedback(1, false, "jane")
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if res.NewThreshold <= res.OldThreshold {
		t.Errorf("wrong feedback should tighten: %v -> %v", res.OldThreshold, res.NewThreshold)
	}
}

func TestThresholdStaysInBoundsUnderRandomFeedback(t *testing.T) {
	l := newTestLearner()
	rng := rand.New(rand.NewSource(1))

	for i := uint64(1); i <= 2000; i++ {
		l.LogPrediction(i, 1, "alice", rng.Float32())
		if _, err := l.Feedback(i, rng.Intn(2) == 0, "bob"); err != nil {
			t.Fatalf("feedback %d: %v", i, err)
		}
		if g := l.GlobalThreshold(); g < 0.65 || g > 0.92 {
			t.Fatalf("global threshold %v left [0.65, 0.92] at step %d", g, i)
		}
		for _, name := range []string{"alice", "bob"} {
			if p := l.Threshold(name); p < 0.65 || p > 0.92 {
				t.Fatalf("threshold for %s = %v left bounds at step %d", name, p, i)
			}
		}
	}
}

func TestRepeatedWrongFeedbackConvergesToMaxBound(t *testing.T) {
	l := newTestLearner()
	for i := uint64(1); i <= 1000; i++ {
		l.LogPrediction(i, 1, "ghost", 0.75)
		if _, err := l.Feedback(i, false, ""); err != nil {
			t.Fatalf("feedback %d: %v", i, err)
		}
	}
	if g := l.GlobalThreshold(); g != 0.92 {
		t.Errorf("1000 wrong feedbacks should pin threshold at max bound, got %v", g)
	}
}

func TestCustomThresholdRequiresMinSamples(t *testing.T) {
	l := newTestLearner()

	// Four wrong feedbacks for jane: below min_samples, still global.
	for i := uint64(1); i <= 4; i++ {
		l.LogPrediction(i, 1, "jane", 0.75)
		if _, err := l.Feedback(i, false, "jane"); err != nil {
			t.Fatalf("feedback %d: %v", i, err)
		}
	}
	if got, global := l.Threshold("jane"), l.GlobalThreshold(); got != global {
		t.Errorf("before min_samples Threshold(jane) = %v; want global %v", got, global)
	}

	// The fifth sample activates the custom threshold; accuracy 0/5 < 0.75,
	// so jane gets global+0.08 clipped to max.
	l.LogPrediction(5, 1, "jane", 0.75)
	if _, err := l.Feedback(5, false, "jane"); err != nil {
		t.Fatalf("feedback 5: %v", err)
	}
	global := l.GlobalThreshold()
	want := math.Min(0.92, global+0.08)
	if got := l.Threshold("jane"); math.Abs(got-want) > 1e-6 {
		t.Errorf("Threshold(jane) = %v; want %v (stricter than global %v)", got, want, global)
	}
}

func TestHighAccuracyEarnsLenientThreshold(t *testing.T) {
	l := newTestLearner()
	for i := uint64(1); i <= 12; i++ {
		l.LogPrediction(i, 1, "alice", 0.88)
		if _, err := l.Feedback(i, true, ""); err != nil {
			t.Fatalf("feedback %d: %v", i, err)
		}
	}
	global := l.GlobalThreshold()
	got := l.Threshold("alice")
	want := math.Max(0.65, global-0.05)
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("Threshold(alice) = %v; want lenient %v (global %v)", got, want, global)
	}
}

func TestModerateAccuracyBlendsTowardGlobal(t *testing.T) {
	// A tiny learning rate keeps the global threshold away from its bounds so
	// the blend is observable without clipping.
	l := New(Config{LearningRate: 0.002})

	// Drive alice to a strict custom threshold first (accuracy below 0.75).
	for i := uint64(1); i <= 6; i++ {
		l.LogPrediction(i, 1, "alice", 0.70)
		if _, err := l.Feedback(i, false, "alice"); err != nil {
			t.Fatalf("feedback %d: %v", i, err)
		}
	}

	// A long run of correct feedback lifts accuracy into (0.75, 0.95], where
	// the custom threshold blends 0.7/0.3 toward global every step.
	blended := false
	prev := l.Threshold("alice")
	for i := uint64(7); i <= 40; i++ {
		l.LogPrediction(i, 1, "alice", 0.80)
		if _, err := l.Feedback(i, true, ""); err != nil {
			t.Fatalf("feedback %d: %v", i, err)
		}
		acc := personAccuracy(t, l, "alice")
		cur := l.Threshold("alice")
		global := l.GlobalThreshold()
		if acc > 0.75 && acc <= 0.95 && math.Abs(prev-global) > 1e-6 {
			if math.Abs(cur-global) >= math.Abs(prev-global) {
				t.Errorf("step %d: blend did not converge: prev %v cur %v global %v", i, prev, cur, global)
			}
			blended = true
		}
		prev = cur
	}
	if !blended {
		t.Fatal("scenario never exercised the blend branch")
	}
}

func personAccuracy(t *testing.T, l *Learner, name string) float64 {
	t.Helper()
	for _, p := range l.Statistics().Persons {
		if p.Name == name {
			return p.Accuracy
		}
	}
	t.Fatalf("no statistics for %s", name)
	return 0
}

func TestFeedbackNotFound(t *testing.T) {
	l := newTestLearner()

	if _, err := l.Feedback(99, true, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("feedback for never-logged frame: err = %v; want ErrNotFound", err)
	}

	l.LogPrediction(1, 1, "alice", 0.85)
	if _, err := l.Feedback(1, true, ""); err != nil {
		t.Fatalf("first feedback: %v", err)
	}

	before := l.Statistics()
	if _, err := l.Feedback(1, false, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second feedback for same frame: err = %v; want ErrNotFound", err)
	}
	after := l.Statistics()
	if after.TotalFeedback != before.TotalFeedback || after.GlobalThreshold != before.GlobalThreshold {
		t.Errorf("rejected feedback mutated statistics: %+v vs %+v", before, after)
	}
}

func TestPendingQueueEvictsOldest(t *testing.T) {
	l := New(Config{MaxPending: 3})

	for i := uint64(1); i <= 5; i++ {
		l.LogPrediction(i, 1, "alice", 0.85)
	}
	if n := l.Statistics().PendingCount; n != 3 {
		t.Fatalf("pending count = %d; want capacity 3", n)
	}

	// Frames 1 and 2 were evicted: silent expiry, feedback gets NotFound.
	if _, err := l.Feedback(1, true, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("evicted frame: err = %v; want ErrNotFound", err)
	}
	if _, err := l.Feedback(3, true, ""); err != nil {
		t.Errorf("surviving frame: unexpected err %v", err)
	}
}

func TestFeedbackLatest(t *testing.T) {
	l := newTestLearner()

	if _, err := l.FeedbackLatest(true, ""); !errors.Is(err, ErrNoPending) {
		t.Errorf("empty queue: err = %v; want ErrNoPending", err)
	}

	l.LogPrediction(1, 1, "alice", 0.85)
	l.LogPrediction(2, 2, "bob", 0.70)
	res, err := l.FeedbackLatest(false, "carol")
	if err != nil {
		t.Fatalf("FeedbackLatest: %v", err)
	}
	if res.FrameID != 2 || res.Predicted != "bob" || res.Actual != "carol" {
		t.Errorf("latest should target frame 2 (bob->carol), got %+v", res)
	}
}

func TestStatisticsSnapshot(t *testing.T) {
	l := newTestLearner()

	l.LogPrediction(1, 1, "alice", 0.90)
	l.Feedback(1, true, "")
	l.LogPrediction(2, 1, "alice", 0.70)
	l.Feedback(2, false, "bob")
	l.LogPrediction(3, 2, "alice", 0.88)
	l.Feedback(3, true, "")

	snap := l.Statistics()
	if snap.TotalFeedback != 3 {
		t.Errorf("TotalFeedback = %d; want 3", snap.TotalFeedback)
	}
	if want := 2.0 / 3.0; math.Abs(snap.OverallAccuracy-want) > 1e-9 {
		t.Errorf("OverallAccuracy = %v; want %v", snap.OverallAccuracy, want)
	}
	if snap.RecentAccuracy != snap.OverallAccuracy {
		t.Errorf("with 3 samples recent should equal overall, got %v vs %v",
			snap.RecentAccuracy, snap.OverallAccuracy)
	}
	if want := 0.89; math.Abs(snap.Calibration.MeanCorrect-want) > 1e-9 {
		t.Errorf("MeanCorrect = %v; want %v", snap.Calibration.MeanCorrect, want)
	}
	if want := 0.70; math.Abs(snap.Calibration.MeanWrong-want) > 1e-9 {
		t.Errorf("MeanWrong = %v; want %v", snap.Calibration.MeanWrong, want)
	}
	if want := 0.19; math.Abs(snap.Calibration.Separation-want) > 1e-9 {
		t.Errorf("Separation = %v; want %v", snap.Calibration.Separation, want)
	}
	// alice has 2 feedbacks, bob 1: sorted by volume.
	if len(snap.Persons) != 2 || snap.Persons[0].Name != "alice" || snap.Persons[1].Name != "bob" {
		t.Errorf("person ordering wrong: %+v", snap.Persons)
	}
	if snap.Persons[0].CustomThreshold != nil {
		t.Errorf("alice has only 2 samples, custom threshold must not be exported")
	}
}

func TestReset(t *testing.T) {
	l := newTestLearner()
	for i := uint64(1); i <= 10; i++ {
		l.LogPrediction(i, 1, "alice", 0.70)
		l.Feedback(i, false, "alice")
	}
	l.Reset()

	snap := l.Statistics()
	if snap.TotalFeedback != 0 || snap.PendingCount != 0 || len(snap.Persons) != 0 {
		t.Errorf("reset left residue: %+v", snap)
	}
	if g := l.GlobalThreshold(); g != 0.80 {
		t.Errorf("reset threshold = %v; want initial 0.80", g)
	}
}

// End-to-end scenario from the adaptive-learning contract: one correct
// feedback nudges the global threshold within its step bound, and five wrong
// feedbacks for a person drive her custom threshold toward the max bound.
func TestAdaptationScenario(t *testing.T) {
	l := newTestLearner()

	l.LogPrediction(1, 1, "john", 0.87)
	res, err := l.Feedback(1, true, "")
	if err != nil {
		t.Fatalf("john feedback: %v", err)
	}
	if res.NewThreshold <= 0.65 || res.NewThreshold >= 0.92 {
		t.Errorf("threshold %v should remain strictly within bounds", res.NewThreshold)
	}
	if math.Abs(res.NewThreshold-0.80) > 2*0.02 {
		t.Errorf("single step moved threshold too far: %v", res.NewThreshold)
	}

	for i := uint64(2); i <= 6; i++ {
		l.LogPrediction(i, 2, "jane", 0.75)
		if _, err := l.Feedback(i, false, "jane"); err != nil {
			t.Fatalf("jane feedback %d: %v", i, err)
		}
	}
	jane := l.Threshold("jane")
	global := l.GlobalThreshold()
	if jane < global {
		t.Errorf("jane's threshold %v should be at least as strict as global %v", jane, global)
	}
	// Five confident misidentifications pin her at the max bound.
	if jane != 0.92 {
		t.Errorf("jane's threshold = %v; want max bound 0.92", jane)
	}
}
