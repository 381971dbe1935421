package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facewatch/internal/learner"
)

type fakeApplier struct {
	result  learner.FeedbackResult
	err     error
	gotID   uint64
	gotName string
}

func (f *fakeApplier) ProvideFeedback(frameID uint64, correct bool, trueName string) (learner.FeedbackResult, error) {
	f.gotID = frameID
	f.gotName = trueName
	if f.err != nil {
		return learner.FeedbackResult{}, f.err
	}
	return f.result, nil
}

func postFeedback(t *testing.T, applier *fakeApplier, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/feedback", NewFeedbackHandler(applier).Submit)

	req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFeedbackSubmit(t *testing.T) {
	t.Run("applies verdict and reports threshold move", func(t *testing.T) {
		applier := &fakeApplier{result: learner.FeedbackResult{
			FrameID:      42,
			Predicted:    "alice",
			Actual:       "bob",
			Similarity:   0.83,
			OldThreshold: 0.80,
			NewThreshold: 0.8366,
		}}

		w := postFeedback(t, applier, `{"frame_id":42,"correct":false,"true_name":"bob"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if applier.gotID != 42 || applier.gotName != "bob" {
			t.Errorf("applier got frame %d name %q", applier.gotID, applier.gotName)
		}
		if !strings.Contains(w.Body.String(), `"new_threshold":0.8366`) {
			t.Errorf("response missing threshold move: %s", w.Body.String())
		}
		if !strings.Contains(w.Body.String(), `"similarity":0.83`) {
			t.Errorf("response missing similarity: %s", w.Body.String())
		}
	})

	t.Run("missing verdict is a bad request", func(t *testing.T) {
		w := postFeedback(t, &fakeApplier{}, `{"frame_id":42}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("unknown frame is not found", func(t *testing.T) {
		w := postFeedback(t, &fakeApplier{err: learner.ErrNotFound}, `{"frame_id":999,"correct":true}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("empty queue on latest is not found", func(t *testing.T) {
		w := postFeedback(t, &fakeApplier{err: learner.ErrNoPending}, `{"correct":true}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}
