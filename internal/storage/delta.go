package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/todmy/knowledge-core/internal/graph"
)

// DeltaRepository defines the interface for delta storage. Deltas are
// append-only: there are no update or delete operations.
type DeltaRepository interface {
	Create(ctx context.Context, delta *graph.Delta) error
	GetByProjectID(ctx context.Context, projectID uuid.UUID, limit int) ([]*graph.Delta, error)
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*graph.Delta, error)
}

// PostgresDeltaRepository implements DeltaRepository using PostgreSQL.
type PostgresDeltaRepository struct {
	db *sql.DB
}

// NewPostgresDeltaRepository creates a new PostgresDeltaRepository.
func NewPostgresDeltaRepository(db *sql.DB) *PostgresDeltaRepository {
	return &PostgresDeltaRepository{db: db}
}

const deltaColumns = `id, project_id, trigger, document_id, message_id, patch, narrative,
	nodes_created, nodes_updated, nodes_removed, edges_created, tensions_surfaced,
	assumptions_challenged, created_at`

// Create appends a new delta.
func (r *PostgresDeltaRepository) Create(ctx context.Context, delta *graph.Delta) error {
	if delta.ID == uuid.Nil {
		delta.ID = uuid.New()
	}
	if delta.CreatedAt.IsZero() {
		delta.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO deltas (id, project_id, trigger, document_id, message_id, patch, narrative,
			nodes_created, nodes_updated, nodes_removed, edges_created, tensions_surfaced,
			assumptions_challenged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		delta.ID,
		delta.ProjectID,
		delta.Trigger,
		delta.DocumentID,
		delta.MessageID,
		delta.Patch,
		delta.Narrative,
		delta.Impact.NodesCreated,
		delta.Impact.NodesUpdated,
		delta.Impact.NodesRemoved,
		delta.Impact.EdgesCreated,
		delta.Impact.TensionsSurfaced,
		delta.Impact.AssumptionsChallenged,
		delta.CreatedAt,
	)

	return err
}

func scanDelta(scanner interface{ Scan(...interface{}) error }) (*graph.Delta, error) {
	delta := &graph.Delta{}
	err := scanner.Scan(
		&delta.ID,
		&delta.ProjectID,
		&delta.Trigger,
		&delta.DocumentID,
		&delta.MessageID,
		&delta.Patch,
		&delta.Narrative,
		&delta.Impact.NodesCreated,
		&delta.Impact.NodesUpdated,
		&delta.Impact.NodesRemoved,
		&delta.Impact.EdgesCreated,
		&delta.Impact.TensionsSurfaced,
		&delta.Impact.AssumptionsChallenged,
		&delta.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return delta, nil
}

// GetByProjectID retrieves the most recent deltas for a project.
func (r *PostgresDeltaRepository) GetByProjectID(ctx context.Context, projectID uuid.UUID, limit int) ([]*graph.Delta, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + deltaColumns + `
		FROM deltas
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deltas []*graph.Delta
	for rows.Next() {
		delta, err := scanDelta(rows)
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, delta)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deltas, nil
}

// GetByDocumentID retrieves the delta produced by a document's pipeline
// run, the most recent one if the document was retried. Returns (nil, nil)
// when the pipeline has not recorded a delta yet.
func (r *PostgresDeltaRepository) GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*graph.Delta, error) {
	query := `
		SELECT ` + deltaColumns + `
		FROM deltas
		WHERE document_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	delta, err := scanDelta(r.db.QueryRowContext(ctx, query, documentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return delta, nil
}
