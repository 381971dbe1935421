package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SnapshotStore is the object-store surface snapshot review needs.
type SnapshotStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// SnapshotHandler serves the archived crops of unidentified faces so an
// operator can inspect them and clean up what has been dealt with.
type SnapshotHandler struct {
	store SnapshotStore
}

func NewSnapshotHandler(store SnapshotStore) *SnapshotHandler {
	return &SnapshotHandler{store: store}
}

// List returns the object keys under a prefix, default the whole snapshot
// tree. Narrow with ?prefix=snapshots/<session>/ to inspect one session.
func (h *SnapshotHandler) List(c *gin.Context) {
	prefix := c.DefaultQuery("prefix", "snapshots/")
	keys, err := h.store.ListObjects(c.Request.Context(), prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys, "total": len(keys)})
}

// Get serves one snapshot image by key.
func (h *SnapshotHandler) Get(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	data, err := h.store.GetObject(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Delete removes one snapshot by key.
func (h *SnapshotHandler) Delete(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if err := h.store.DeleteObject(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": key})
}
