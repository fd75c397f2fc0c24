package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the pipeline state recorded on a document.
type DocumentStatus string

const (
	DocumentPending     DocumentStatus = "pending"
	DocumentExtracting  DocumentStatus = "extracting"
	DocumentIntegrating DocumentStatus = "integrating"
	DocumentCompleted   DocumentStatus = "completed"
	DocumentFailed      DocumentStatus = "failed"
)

// Phase names the pipeline stage that produced a state transition or failure.
type Phase string

const (
	PhaseExtraction  Phase = "extraction"
	PhaseIntegration Phase = "integration"
)

// Document represents an ingested document together with its pipeline state.
// Content and chunks arrive preprocessed; this service does no chunking.
type Document struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Title       string
	Content     string
	ContentHash string

	Status             DocumentStatus
	FailedPhase        Phase
	ErrorMessage       string
	PartialNodeCount   int
	FailedAt           *time.Time
	ExtractedNodeCount int
	Summary            string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentRepository defines the interface for document storage operations.
type DocumentRepository interface {
	Create(ctx context.Context, document *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetByProjectID(ctx context.Context, projectID uuid.UUID) ([]*Document, error)
	GetByHash(ctx context.Context, projectID uuid.UUID, hash string) (*Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error
	MarkFailed(ctx context.Context, id uuid.UUID, phase Phase, message string, partialNodeCount int) error
	SetExtractionResult(ctx context.Context, id uuid.UUID, nodeCount int, summary string) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByProjectID(ctx context.Context, projectID uuid.UUID) error
}

// PostgresDocumentRepository implements DocumentRepository using PostgreSQL.
type PostgresDocumentRepository struct {
	db *sql.DB
}

// NewPostgresDocumentRepository creates a new PostgresDocumentRepository.
func NewPostgresDocumentRepository(db *sql.DB) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{db: db}
}

const documentColumns = `id, project_id, title, content, content_hash,
	status, failed_phase, error_message, partial_node_count, failed_at,
	extracted_node_count, summary, created_at, updated_at`

// Create inserts a new document into the database.
func (r *PostgresDocumentRepository) Create(ctx context.Context, document *Document) error {
	if document.ID == uuid.Nil {
		document.ID = uuid.New()
	}
	if document.Status == "" {
		document.Status = DocumentPending
	}

	now := time.Now()
	if document.CreatedAt.IsZero() {
		document.CreatedAt = now
	}
	if document.UpdatedAt.IsZero() {
		document.UpdatedAt = now
	}

	query := `
		INSERT INTO documents (id, project_id, title, content, content_hash,
			status, failed_phase, error_message, partial_node_count, failed_at,
			extracted_node_count, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		document.ID,
		document.ProjectID,
		document.Title,
		document.Content,
		document.ContentHash,
		document.Status,
		document.FailedPhase,
		document.ErrorMessage,
		document.PartialNodeCount,
		document.FailedAt,
		document.ExtractedNodeCount,
		document.Summary,
		document.CreatedAt,
		document.UpdatedAt,
	)

	return err
}

func scanDocument(scanner interface{ Scan(...interface{}) error }) (*Document, error) {
	document := &Document{}
	err := scanner.Scan(
		&document.ID,
		&document.ProjectID,
		&document.Title,
		&document.Content,
		&document.ContentHash,
		&document.Status,
		&document.FailedPhase,
		&document.ErrorMessage,
		&document.PartialNodeCount,
		&document.FailedAt,
		&document.ExtractedNodeCount,
		&document.Summary,
		&document.CreatedAt,
		&document.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return document, nil
}

// GetByID retrieves a document by its ID. Returns (nil, nil) when not found.
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	document, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return document, nil
}

// GetByProjectID retrieves all documents for a specific project.
func (r *PostgresDocumentRepository) GetByProjectID(ctx context.Context, projectID uuid.UUID) ([]*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE project_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var documents []*Document
	for rows.Next() {
		document, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return documents, nil
}

// GetByHash retrieves a document by its content hash within a project.
func (r *PostgresDocumentRepository) GetByHash(ctx context.Context, projectID uuid.UUID, hash string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE project_id = $1 AND content_hash = $2`

	document, err := scanDocument(r.db.QueryRowContext(ctx, query, projectID, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return document, nil
}

// UpdateStatus transitions a document's pipeline state. Moving out of the
// failed state clears the recorded failure.
func (r *PostgresDocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	query := `
		UPDATE documents
		SET status = $2, failed_phase = '', error_message = '', partial_node_count = 0,
			failed_at = NULL, updated_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, status, time.Now())
	return err
}

// MarkFailed records a pipeline failure: the phase that failed, a message,
// and how many nodes already exist for the document.
func (r *PostgresDocumentRepository) MarkFailed(ctx context.Context, id uuid.UUID, phase Phase, message string, partialNodeCount int) error {
	now := time.Now()
	query := `
		UPDATE documents
		SET status = $2, failed_phase = $3, error_message = $4, partial_node_count = $5,
			failed_at = $6, updated_at = $6
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, DocumentFailed, phase, message, partialNodeCount, now)
	return err
}

// SetExtractionResult records the extracted node count and auto-generated
// summary after a successful Phase A.
func (r *PostgresDocumentRepository) SetExtractionResult(ctx context.Context, id uuid.UUID, nodeCount int, summary string) error {
	query := `
		UPDATE documents
		SET extracted_node_count = $2, summary = $3, updated_at = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, nodeCount, summary, time.Now())
	return err
}

// Delete removes a document from the database.
func (r *PostgresDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// DeleteByProjectID removes all documents for a project.
func (r *PostgresDocumentRepository) DeleteByProjectID(ctx context.Context, projectID uuid.UUID) error {
	query := `DELETE FROM documents WHERE project_id = $1`
	_, err := r.db.ExecContext(ctx, query, projectID)
	return err
}
