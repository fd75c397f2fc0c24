package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/todmy/knowledge-core/internal/graph"
)

// ErrDuplicateEdge is returned when an edge with the same (source, target,
// type) triple already exists.
var ErrDuplicateEdge = errors.New("edge already exists for (source, target, type)")

const pqUniqueViolation = "23505"

// EdgeRepository defines the interface for edge storage operations.
type EdgeRepository interface {
	Create(ctx context.Context, edge *graph.Edge) error
	CreateTx(ctx context.Context, tx *sql.Tx, edge *graph.Edge) error
	CreateIgnoreTx(ctx context.Context, tx *sql.Tx, edge *graph.Edge) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*graph.Edge, error)
	GetByProjectID(ctx context.Context, projectID uuid.UUID) ([]*graph.Edge, error)
	GetByNodeID(ctx context.Context, nodeID uuid.UUID) ([]*graph.Edge, error)
	GetAmong(ctx context.Context, nodeIDs []uuid.UUID) ([]*graph.Edge, error)
	DeleteByNodeIDTx(ctx context.Context, tx *sql.Tx, nodeID uuid.UUID) (int, error)
	DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) (int, error)
}

// PostgresEdgeRepository implements EdgeRepository using PostgreSQL.
type PostgresEdgeRepository struct {
	db *sql.DB
}

// NewPostgresEdgeRepository creates a new PostgresEdgeRepository.
func NewPostgresEdgeRepository(db *sql.DB) *PostgresEdgeRepository {
	return &PostgresEdgeRepository{db: db}
}

const edgeColumns = `id, project_id, type, source_node_id, target_node_id,
	strength, provenance, source_type, document_id, message_id, created_at`

const edgeInsert = `
	INSERT INTO edges (id, project_id, type, source_node_id, target_node_id,
		strength, provenance, source_type, document_id, message_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

func insertEdge(ctx context.Context, ex execer, edge *graph.Edge) error {
	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}

	_, err := ex.ExecContext(ctx, edgeInsert,
		edge.ID,
		edge.ProjectID,
		edge.Type,
		edge.SourceNodeID,
		edge.TargetNodeID,
		edge.Strength,
		edge.Provenance,
		edge.SourceType,
		edge.DocumentID,
		edge.MessageID,
		edge.CreatedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrDuplicateEdge
	}
	return err
}

// Create inserts a new edge. The edges_source_target_type unique index
// enforces the one-edge-per-triple invariant; violations surface as
// ErrDuplicateEdge.
func (r *PostgresEdgeRepository) Create(ctx context.Context, edge *graph.Edge) error {
	return insertEdge(ctx, r.db, edge)
}

// CreateTx inserts a new edge inside an existing transaction.
func (r *PostgresEdgeRepository) CreateTx(ctx context.Context, tx *sql.Tx, edge *graph.Edge) error {
	return insertEdge(ctx, tx, edge)
}

// CreateIgnoreTx inserts a new edge inside an existing transaction, skipping
// the insert when the (source, target, type) triple already exists. A plain
// unique violation would abort the surrounding Postgres transaction, so the
// integration batch uses ON CONFLICT DO NOTHING instead. Returns whether a
// row was inserted.
func (r *PostgresEdgeRepository) CreateIgnoreTx(ctx context.Context, tx *sql.Tx, edge *graph.Edge) (bool, error) {
	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}

	query := edgeInsert + ` ON CONFLICT (source_node_id, target_node_id, type) DO NOTHING`

	result, err := tx.ExecContext(ctx, query,
		edge.ID,
		edge.ProjectID,
		edge.Type,
		edge.SourceNodeID,
		edge.TargetNodeID,
		edge.Strength,
		edge.Provenance,
		edge.SourceType,
		edge.DocumentID,
		edge.MessageID,
		edge.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func scanEdge(scanner interface{ Scan(...interface{}) error }) (*graph.Edge, error) {
	edge := &graph.Edge{}
	err := scanner.Scan(
		&edge.ID,
		&edge.ProjectID,
		&edge.Type,
		&edge.SourceNodeID,
		&edge.TargetNodeID,
		&edge.Strength,
		&edge.Provenance,
		&edge.SourceType,
		&edge.DocumentID,
		&edge.MessageID,
		&edge.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// GetByID retrieves an edge by its ID. Returns (nil, nil) when not found.
func (r *PostgresEdgeRepository) GetByID(ctx context.Context, id uuid.UUID) (*graph.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE id = $1`

	edge, err := scanEdge(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// GetByProjectID retrieves all edges for a project.
func (r *PostgresEdgeRepository) GetByProjectID(ctx context.Context, projectID uuid.UUID) ([]*graph.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE project_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEdges(rows)
}

// GetByNodeID retrieves all edges incident to a node, in either direction.
func (r *PostgresEdgeRepository) GetByNodeID(ctx context.Context, nodeID uuid.UUID) ([]*graph.Edge, error) {
	query := `
		SELECT ` + edgeColumns + `
		FROM edges
		WHERE source_node_id = $1 OR target_node_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEdges(rows)
}

// GetAmong retrieves edges whose endpoints are both within the given node
// set. The context assembler uses this to keep the selected subgraph closed.
func (r *PostgresEdgeRepository) GetAmong(ctx context.Context, nodeIDs []uuid.UUID) ([]*graph.Edge, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + edgeColumns + `
		FROM edges
		WHERE source_node_id = ANY($1) AND target_node_id = ANY($1)
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(nodeIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEdges(rows)
}

func collectEdges(rows *sql.Rows) ([]*graph.Edge, error) {
	var edges []*graph.Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

// DeleteByNodeIDTx removes all edges incident to a node inside an existing
// transaction, returning the number removed. This is the explicit orphan
// cleanup run when a node is deleted.
func (r *PostgresEdgeRepository) DeleteByNodeIDTx(ctx context.Context, tx *sql.Tx, nodeID uuid.UUID) (int, error) {
	query := `DELETE FROM edges WHERE source_node_id = $1 OR target_node_id = $1`

	result, err := tx.ExecContext(ctx, query, nodeID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// DeleteByDocumentID removes all edges attributed to a document, returning
// the number removed. The pipeline uses this to clear a failed integration
// attempt before retrying.
func (r *PostgresEdgeRepository) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) (int, error) {
	query := `DELETE FROM edges WHERE document_id = $1`

	result, err := r.db.ExecContext(ctx, query, documentID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}
