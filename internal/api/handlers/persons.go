package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facewatch/internal/storage"
	"github.com/your-org/facewatch/pkg/dto"
)

const timeLayout = "2006-01-02T15:04:05Z"

type PersonHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore
	// EmbedFn extracts a face embedding from image bytes.
	// Set this after the vision adapters are initialized.
	EmbedFn func(imageData []byte) ([]float32, float32, error)
}

func NewPersonHandler(db *storage.PostgresStore, minio *storage.MinIOStore) *PersonHandler {
	return &PersonHandler{db: db, minio: minio}
}

func (h *PersonHandler) Create(c *gin.Context) {
	var req dto.CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if existing, err := h.db.GetPersonByName(c.Request.Context(), req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	} else if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "person already enrolled"})
		return
	}

	person, err := h.db.CreatePerson(c.Request.Context(), req.Name, req.Metadata)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.PersonResponse{
		ID:        person.ID.String(),
		Name:      person.Name,
		Metadata:  person.Metadata,
		CreatedAt: person.CreatedAt.Format(timeLayout),
	})
}

func (h *PersonHandler) List(c *gin.Context) {
	persons, err := h.db.ListPersons(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PersonResponse, 0, len(persons))
	for _, p := range persons {
		refCount, _ := h.db.CountReferences(c.Request.Context(), p.ID)
		resp = append(resp, dto.PersonResponse{
			ID:             p.ID.String(),
			Name:           p.Name,
			Metadata:       p.Metadata,
			ReferenceCount: refCount,
			CreatedAt:      p.CreatedAt.Format(timeLayout),
		})
	}

	c.JSON(http.StatusOK, gin.H{"persons": resp, "total": len(resp)})
}

func (h *PersonHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person, err := h.db.GetPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	refCount, _ := h.db.CountReferences(c.Request.Context(), id)

	c.JSON(http.StatusOK, dto.PersonResponse{
		ID:             person.ID.String(),
		Name:           person.Name,
		Metadata:       person.Metadata,
		ReferenceCount: refCount,
		CreatedAt:      person.CreatedAt.Format(timeLayout),
	})
}

func (h *PersonHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}
	if err := h.db.DeletePerson(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// AddReference accepts a multipart image upload, extracts an embedding, and
// stores it as an extra reference for the person. The next enrollment
// snapshot picks it up automatically.
func (h *PersonHandler) AddReference(c *gin.Context) {
	personID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person, err := h.db.GetPerson(c.Request.Context(), personID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EmbedFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision models not loaded"})
		return
	}

	embedding, quality, err := h.EmbedFn(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	sourceKey := "references/" + personID.String() + "/" + uuid.New().String() + "_" + header.Filename
	if err := h.minio.PutObject(c.Request.Context(), sourceKey, imageData, header.Header.Get("Content-Type")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store image failed"})
		return
	}

	rf, err := h.db.AddReference(c.Request.Context(), personID, embedding, quality, sourceKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.ReferenceResponse{
		ID:        rf.ID.String(),
		PersonID:  rf.PersonID.String(),
		Quality:   rf.Quality,
		SourceKey: rf.SourceKey,
		CreatedAt: rf.CreatedAt.Format(timeLayout),
	})
}

func (h *PersonHandler) ListReferences(c *gin.Context) {
	personID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	refs, err := h.db.ListReferences(c.Request.Context(), personID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.ReferenceResponse, 0, len(refs))
	for _, rf := range refs {
		resp = append(resp, dto.ReferenceResponse{
			ID:        rf.ID.String(),
			PersonID:  rf.PersonID.String(),
			Quality:   rf.Quality,
			SourceKey: rf.SourceKey,
			CreatedAt: rf.CreatedAt.Format(timeLayout),
		})
	}

	c.JSON(http.StatusOK, gin.H{"references": resp, "total": len(resp)})
}

func (h *PersonHandler) DeleteReference(c *gin.Context) {
	personID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}
	refID, err := uuid.Parse(c.Param("refId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reference id"})
		return
	}

	if err := h.db.DeleteReference(c.Request.Context(), personID, refID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Search embeds an uploaded image and returns the closest enrolled persons.
func (h *PersonHandler) Search(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EmbedFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision models not loaded"})
		return
	}

	embedding, _, err := h.EmbedFn(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	threshold := 0.4
	limit := 5

	matches, err := h.db.SearchFaces(c.Request.Context(), embedding, threshold, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]dto.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, dto.SearchResult{
			PersonID: m.PersonID.String(),
			Name:     m.Name,
			Score:    m.Score,
		})
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}
