package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Person is an enrolled identity. Its references are the embeddings the
// resolver compares live faces against.
type Person struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ReferenceFace is one enrolled embedding of a person. The raw vector is
// only loaded when building the resolver snapshot.
type ReferenceFace struct {
	ID        uuid.UUID `json:"id"`
	PersonID  uuid.UUID `json:"person_id"`
	Embedding []float32 `json:"-"`
	Quality   float32   `json:"quality"`
	SourceKey string    `json:"source_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
