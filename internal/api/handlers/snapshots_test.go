package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type fakeSnapshotStore struct {
	objects   map[string][]byte
	gotPrefix string
	deleted   []string
	listErr   error
}

func (f *fakeSnapshotStore) GetObject(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("key does not exist")
	}
	return data, nil
}

func (f *fakeSnapshotStore) DeleteObject(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeSnapshotStore) ListObjects(_ context.Context, prefix string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.gotPrefix = prefix
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func snapshotRouter(store *fakeSnapshotStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewSnapshotHandler(store)
	r.GET("/snapshots", h.List)
	r.GET("/snapshots/*key", h.Get)
	r.DELETE("/snapshots/*key", h.Delete)
	return r
}

func TestSnapshots(t *testing.T) {
	store := &fakeSnapshotStore{objects: map[string][]byte{
		"snapshots/s1/track-1/frame-3.jpg": []byte("jpeg-bytes"),
		"snapshots/s2/track-4/frame-9.jpg": []byte("other"),
	}}
	r := snapshotRouter(store)

	t.Run("list narrows by prefix", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/snapshots?prefix=snapshots/s1/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if store.gotPrefix != "snapshots/s1/" {
			t.Errorf("prefix = %q", store.gotPrefix)
		}
		if !strings.Contains(w.Body.String(), "frame-3.jpg") || strings.Contains(w.Body.String(), "frame-9.jpg") {
			t.Errorf("unexpected listing: %s", w.Body.String())
		}
	})

	t.Run("get serves the image bytes", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/snapshots/snapshots/s1/track-1/frame-3.jpg", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("content type = %q", ct)
		}
		if w.Body.String() != "jpeg-bytes" {
			t.Errorf("body = %q", w.Body.String())
		}
	})

	t.Run("get of a missing key is not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/snapshots/snapshots/nope.jpg", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("delete removes by key", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/snapshots/snapshots/s2/track-4/frame-9.jpg", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if len(store.deleted) != 1 || store.deleted[0] != "snapshots/s2/track-4/frame-9.jpg" {
			t.Errorf("deleted = %v", store.deleted)
		}
	})
}
