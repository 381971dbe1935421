package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/models"
)

// PostgresStore holds the enrollment catalog: persons and their reference
// embeddings. The engine reads it once per frame through EnrolledIdentities.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Persons ---

func (s *PostgresStore) CreatePerson(ctx context.Context, name string, metadata json.RawMessage) (*models.Person, error) {
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	p := &models.Person{
		ID:       uuid.New(),
		Name:     name,
		Metadata: metadata,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO persons (id, name, metadata) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Metadata,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p := &models.Person{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, metadata, created_at, updated_at FROM persons WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

// GetPersonByName is what the enrollment CLI uses to append references to
// an existing identity.
func (s *PostgresStore) GetPersonByName(ctx context.Context, name string) (*models.Person, error) {
	p := &models.Person{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, metadata, created_at, updated_at FROM persons WHERE name = $1`, name,
	).Scan(&p.ID, &p.Name, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get person by name: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, metadata, created_at, updated_at FROM persons ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, nil
}

func (s *PostgresStore) DeletePerson(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person not found")
	}
	return nil
}

func (s *PostgresStore) CountReferences(ctx context.Context, personID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reference_faces WHERE person_id = $1`, personID,
	).Scan(&count)
	return count, err
}

// --- Reference embeddings ---

func (s *PostgresStore) AddReference(ctx context.Context, personID uuid.UUID, embedding []float32, quality float32, sourceKey string) (*models.ReferenceFace, error) {
	rf := &models.ReferenceFace{
		ID:        uuid.New(),
		PersonID:  personID,
		Embedding: embedding,
		Quality:   quality,
		SourceKey: sourceKey,
	}
	vec := pgvector.NewVector(embedding)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO reference_faces (id, person_id, embedding, quality, source_key) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		rf.ID, rf.PersonID, vec, rf.Quality, rf.SourceKey,
	).Scan(&rf.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add reference: %w", err)
	}
	return rf, nil
}

func (s *PostgresStore) DeleteReference(ctx context.Context, personID, refID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM reference_faces WHERE id = $1 AND person_id = $2`, refID, personID)
	if err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reference not found")
	}
	return nil
}

func (s *PostgresStore) ListReferences(ctx context.Context, personID uuid.UUID) ([]models.ReferenceFace, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, person_id, quality, source_key, created_at FROM reference_faces WHERE person_id = $1 ORDER BY created_at DESC`,
		personID)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	var refs []models.ReferenceFace
	for rows.Next() {
		var rf models.ReferenceFace
		if err := rows.Scan(&rf.ID, &rf.PersonID, &rf.Quality, &rf.SourceKey, &rf.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, rf)
	}
	return refs, nil
}

// EnrolledIdentities loads every reference embedding grouped by person name.
// The engine treats the returned map as an immutable snapshot.
func (s *PostgresStore) EnrolledIdentities(ctx context.Context) (map[string][][]float32, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.name, rf.embedding
		 FROM reference_faces rf
		 JOIN persons p ON p.id = rf.person_id`)
	if err != nil {
		return nil, fmt.Errorf("load enrolled identities: %w", err)
	}
	defer rows.Close()

	enrolled := make(map[string][][]float32)
	for rows.Next() {
		var name string
		var vec pgvector.Vector
		if err := rows.Scan(&name, &vec); err != nil {
			return nil, fmt.Errorf("scan enrolled embedding: %w", err)
		}
		enrolled[name] = append(enrolled[name], vec.Slice())
	}
	return enrolled, nil
}

// SearchFaces finds the closest enrolled persons for a given embedding using
// the pgvector cosine operator. Used by the enrollment CLI to sanity-check a
// new reference before inserting it.
func (s *PostgresStore) SearchFaces(ctx context.Context, embedding []float32, threshold float64, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx,
		`SELECT rf.person_id, p.name, 1 - (rf.embedding <=> $1) AS score
		 FROM reference_faces rf
		 JOIN persons p ON p.id = rf.person_id
		 WHERE 1 - (rf.embedding <=> $1) >= $2
		 ORDER BY rf.embedding <=> $1
		 LIMIT $3`,
		vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search faces: %w", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.PersonID, &m.Name, &m.Score); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

type SearchMatch struct {
	PersonID uuid.UUID `json:"person_id"`
	Name     string    `json:"name"`
	Score    float32   `json:"score"`
}
