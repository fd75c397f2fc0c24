package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/todmy/knowledge-core/internal/graph"
)

// NodeRepository defines the interface for node storage operations.
type NodeRepository interface {
	Create(ctx context.Context, node *graph.Node) error
	CreateTx(ctx context.Context, tx *sql.Tx, node *graph.Node) error
	CreateBatch(ctx context.Context, nodes []*graph.Node) error
	GetByID(ctx context.Context, id uuid.UUID) (*graph.Node, error)
	GetByProjectID(ctx context.Context, projectID uuid.UUID, exclude *uuid.UUID) ([]*graph.Node, error)
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*graph.Node, error)
	CountByProjectID(ctx context.Context, projectID uuid.UUID, exclude *uuid.UUID) (int, error)
	CountByDocumentID(ctx context.Context, documentID uuid.UUID) (int, error)
	FindSimilar(ctx context.Context, projectID uuid.UUID, embedding pgvector.Vector, limit int, threshold float64, exclude *uuid.UUID) ([]*NodeWithSimilarity, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status graph.NodeStatus) error
	UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status graph.NodeStatus) error
	UpdateContent(ctx context.Context, id uuid.UUID, content string, embedding pgvector.Vector) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	DeleteByDocumentSource(ctx context.Context, documentID uuid.UUID, source graph.SourceType) error
}

// NodeWithSimilarity pairs a node with its similarity to a query embedding.
type NodeWithSimilarity struct {
	Node       *graph.Node
	Similarity float64
}

// PostgresNodeRepository implements NodeRepository using PostgreSQL with pgvector.
type PostgresNodeRepository struct {
	db *sql.DB
}

// NewPostgresNodeRepository creates a new PostgresNodeRepository.
func NewPostgresNodeRepository(db *sql.DB) *PostgresNodeRepository {
	return &PostgresNodeRepository{db: db}
}

const nodeColumns = `id, project_id, case_id, type, status, content, properties,
	source_type, document_id, message_id, chunk_ids, source_quote, source_location,
	embedding, created_at, updated_at`

const nodeInsert = `
	INSERT INTO nodes (id, project_id, case_id, type, status, content, properties,
		source_type, document_id, message_id, chunk_ids, source_quote, source_location,
		embedding, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func prepareNode(node *graph.Node) {
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	now := time.Now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	if node.UpdatedAt.IsZero() {
		node.UpdatedAt = now
	}
}

func insertNode(ctx context.Context, ex execer, node *graph.Node) error {
	prepareNode(node)

	_, err := ex.ExecContext(ctx, nodeInsert,
		node.ID,
		node.ProjectID,
		node.CaseID,
		node.Type,
		node.Status,
		node.Content,
		node.Properties,
		node.SourceType,
		node.DocumentID,
		node.MessageID,
		pq.Array(node.ChunkIDs),
		node.SourceQuote,
		node.SourceLocation,
		vectorOrNil(node.Embedding),
		node.CreatedAt,
		node.UpdatedAt,
	)
	return err
}

// Create inserts a new node into the database.
func (r *PostgresNodeRepository) Create(ctx context.Context, node *graph.Node) error {
	return insertNode(ctx, r.db, node)
}

// CreateTx inserts a new node inside an existing transaction.
func (r *PostgresNodeRepository) CreateTx(ctx context.Context, tx *sql.Tx, node *graph.Node) error {
	return insertNode(ctx, tx, node)
}

// CreateBatch inserts multiple nodes in a single transaction: either all
// nodes are created or none is.
func (r *PostgresNodeRepository) CreateBatch(ctx context.Context, nodes []*graph.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, node := range nodes {
		if err := insertNode(ctx, tx, node); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func scanNode(scanner interface{ Scan(...interface{}) error }, extra ...interface{}) (*graph.Node, error) {
	node := &graph.Node{}
	dest := []interface{}{
		&node.ID,
		&node.ProjectID,
		&node.CaseID,
		&node.Type,
		&node.Status,
		&node.Content,
		&node.Properties,
		&node.SourceType,
		&node.DocumentID,
		&node.MessageID,
		pq.Array(&node.ChunkIDs),
		&node.SourceQuote,
		&node.SourceLocation,
		&nullVector{&node.Embedding},
		&node.CreatedAt,
		&node.UpdatedAt,
	}
	dest = append(dest, extra...)

	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}
	return node, nil
}

// GetByID retrieves a node by its ID. Returns (nil, nil) when not found.
func (r *PostgresNodeRepository) GetByID(ctx context.Context, id uuid.UUID) (*graph.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = $1`

	node, err := scanNode(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

// GetByProjectID retrieves all nodes for a project. When exclude is set,
// nodes originating from that document are left out, which is how the
// context assembler sees the graph minus a pipeline's own new batch.
func (r *PostgresNodeRepository) GetByProjectID(ctx context.Context, projectID uuid.UUID, exclude *uuid.UUID) ([]*graph.Node, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes
		WHERE project_id = $1 AND ($2::uuid IS NULL OR document_id IS DISTINCT FROM $2)
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, projectID, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNodes(rows)
}

// GetByDocumentID retrieves all nodes extracted from a specific document.
func (r *PostgresNodeRepository) GetByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*graph.Node, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM nodes
		WHERE document_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectNodes(rows)
}

func collectNodes(rows *sql.Rows) ([]*graph.Node, error) {
	var nodes []*graph.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

// CountByProjectID counts nodes in a project, optionally excluding one
// document's nodes.
func (r *PostgresNodeRepository) CountByProjectID(ctx context.Context, projectID uuid.UUID, exclude *uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM nodes
		WHERE project_id = $1 AND ($2::uuid IS NULL OR document_id IS DISTINCT FROM $2)
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, projectID, exclude).Scan(&count)
	return count, err
}

// CountByDocumentID counts nodes extracted from a document.
func (r *PostgresNodeRepository) CountByDocumentID(ctx context.Context, documentID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM nodes WHERE document_id = $1`

	var count int
	err := r.db.QueryRowContext(ctx, query, documentID).Scan(&count)
	return count, err
}

// FindSimilar finds project nodes similar to the given embedding using
// pgvector cosine distance, most similar first.
func (r *PostgresNodeRepository) FindSimilar(ctx context.Context, projectID uuid.UUID, embedding pgvector.Vector, limit int, threshold float64, exclude *uuid.UUID) ([]*NodeWithSimilarity, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT ` + nodeColumns + `, 1 - (embedding <=> $2) AS similarity
		FROM nodes
		WHERE project_id = $1
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $2) >= $3
		  AND ($4::uuid IS NULL OR document_id IS DISTINCT FROM $4)
		ORDER BY embedding <=> $2
		LIMIT $5
	`

	rows, err := r.db.QueryContext(ctx, query, projectID, embedding, threshold, exclude, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*NodeWithSimilarity
	for rows.Next() {
		var similarity float64
		node, err := scanNode(rows, &similarity)
		if err != nil {
			return nil, err
		}
		results = append(results, &NodeWithSimilarity{Node: node, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateStatus sets a node's status.
func (r *PostgresNodeRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status graph.NodeStatus) error {
	return updateNodeStatus(ctx, r.db, id, status)
}

// UpdateStatusTx sets a node's status inside an existing transaction.
func (r *PostgresNodeRepository) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status graph.NodeStatus) error {
	return updateNodeStatus(ctx, tx, id, status)
}

func updateNodeStatus(ctx context.Context, ex execer, id uuid.UUID, status graph.NodeStatus) error {
	query := `UPDATE nodes SET status = $2, updated_at = $3 WHERE id = $1`
	_, err := ex.ExecContext(ctx, query, id, status, time.Now())
	return err
}

// UpdateContent replaces a node's content and embedding.
func (r *PostgresNodeRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string, embedding pgvector.Vector) error {
	query := `UPDATE nodes SET content = $2, embedding = $3, updated_at = $4 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, content, vectorOrNil(embedding), time.Now())
	return err
}

// Delete removes a node. Incident edges are removed by the store's cascade,
// not here.
func (r *PostgresNodeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM nodes WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// DeleteTx removes a node inside an existing transaction.
func (r *PostgresNodeRepository) DeleteTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	query := `DELETE FROM nodes WHERE id = $1`
	_, err := tx.ExecContext(ctx, query, id)
	return err
}

// DeleteByDocumentSource removes nodes attributed to a document with the
// given source type. The pipeline uses this to clear a failed integration
// attempt's tensions and gap nodes before retrying.
func (r *PostgresNodeRepository) DeleteByDocumentSource(ctx context.Context, documentID uuid.UUID, source graph.SourceType) error {
	query := `DELETE FROM nodes WHERE document_id = $1 AND source_type = $2`
	_, err := r.db.ExecContext(ctx, query, documentID, source)
	return err
}

// vectorOrNil maps an unset embedding to SQL NULL.
func vectorOrNil(v pgvector.Vector) interface{} {
	if v.Slice() == nil {
		return nil
	}
	return v
}

// nullVector scans a nullable vector column.
type nullVector struct {
	v *pgvector.Vector
}

func (n *nullVector) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	return n.v.Scan(src)
}
