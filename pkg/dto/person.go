package dto

import "encoding/json"

type CreatePersonRequest struct {
	Name     string          `json:"name" binding:"required"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type PersonResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	ReferenceCount int             `json:"reference_count"`
	CreatedAt      string          `json:"created_at"`
}

type ReferenceResponse struct {
	ID        string  `json:"id"`
	PersonID  string  `json:"person_id"`
	Quality   float32 `json:"quality"`
	SourceKey string  `json:"source_key,omitempty"`
	CreatedAt string  `json:"created_at"`
}

type SearchResult struct {
	PersonID string  `json:"person_id"`
	Name     string  `json:"name"`
	Score    float32 `json:"score"`
}
