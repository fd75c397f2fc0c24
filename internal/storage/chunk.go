package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Chunk is one preprocessed slice of a document, delivered with its
// embedding by the preprocessing collaborator.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Position   int
	Text       string
	Embedding  pgvector.Vector
	CreatedAt  time.Time
}

// ChunkRepository defines the interface for chunk storage operations.
type ChunkRepository interface {
	CreateBatch(ctx context.Context, chunks []*Chunk) error
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*Chunk, error)
	DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error
}

// PostgresChunkRepository implements ChunkRepository using PostgreSQL with pgvector.
type PostgresChunkRepository struct {
	db *sql.DB
}

// NewPostgresChunkRepository creates a new PostgresChunkRepository.
func NewPostgresChunkRepository(db *sql.DB) *PostgresChunkRepository {
	return &PostgresChunkRepository{db: db}
}

// CreateBatch inserts multiple chunks in a single transaction.
func (r *PostgresChunkRepository) CreateBatch(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, position, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}

		_, err := stmt.ExecContext(ctx,
			c.ID,
			c.DocumentID,
			c.Position,
			c.Text,
			vectorOrNil(c.Embedding),
			c.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByDocumentID retrieves all chunks for a document in position order.
func (r *PostgresChunkRepository) GetByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*Chunk, error) {
	query := `
		SELECT id, document_id, position, text, embedding, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY position ASC
	`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk := &Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Position,
			&chunk.Text,
			&nullVector{&chunk.Embedding},
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// DeleteByDocumentID removes all chunks for a document.
func (r *PostgresChunkRepository) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error {
	query := `DELETE FROM chunks WHERE document_id = $1`
	_, err := r.db.ExecContext(ctx, query, documentID)
	return err
}
