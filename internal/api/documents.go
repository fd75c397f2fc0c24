package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/todmy/knowledge-core/internal/pipeline"
	"github.com/todmy/knowledge-core/internal/storage"
)

// ChunkRequest is one preprocessed document slice delivered by the
// preprocessing collaborator, embedding included.
type ChunkRequest struct {
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// IngestRequest is the document ingest payload. The text arrives already
// extracted and chunked; this service starts the pipeline, it does not
// preprocess.
type IngestRequest struct {
	Title   string         `json:"title"`
	Content string         `json:"content"`
	Chunks  []ChunkRequest `json:"chunks"`
}

// handleIngestDocument registers a document and launches its pipeline.
// Re-submitting identical content to the same project returns the existing
// document instead of running the pipeline twice.
func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "title and content are required")
		return
	}

	hash := sha256.Sum256([]byte(req.Content))
	contentHash := hex.EncodeToString(hash[:])

	existing, err := s.documents.GetByHash(r.Context(), project.ID, contentHash)
	if err != nil {
		s.logger.Error("check document hash", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to ingest document")
		return
	}
	if existing != nil {
		respondJSON(w, http.StatusOK, toModelDocument(existing))
		return
	}

	document := &storage.Document{
		ProjectID:   project.ID,
		Title:       req.Title,
		Content:     req.Content,
		ContentHash: contentHash,
		Status:      storage.DocumentPending,
	}

	if err := s.documents.Create(r.Context(), document); err != nil {
		s.logger.Error("create document", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to ingest document")
		return
	}

	if len(req.Chunks) > 0 {
		chunks := make([]*storage.Chunk, 0, len(req.Chunks))
		for _, c := range req.Chunks {
			chunk := &storage.Chunk{
				DocumentID: document.ID,
				Position:   c.Position,
				Text:       c.Text,
			}
			if len(c.Embedding) > 0 {
				chunk.Embedding = pgvector.NewVector(c.Embedding)
			}
			chunks = append(chunks, chunk)
		}
		if err := s.chunks.CreateBatch(r.Context(), chunks); err != nil {
			s.logger.Error("store chunks", errField(err))
			respondError(w, http.StatusInternalServerError, "failed to ingest document")
			return
		}
	}

	s.pipeline.Start(document.ID)

	s.logger.Info("document ingested",
		zap.String("project_id", project.ID.String()),
		zap.String("document_id", document.ID.String()),
		zap.Int("chunks", len(req.Chunks)))

	respondJSON(w, http.StatusAccepted, toModelDocument(document))
}

// handleListDocuments returns all documents in a project with their
// pipeline state.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return
	}

	documents, err := s.documents.GetByProjectID(r.Context(), project.ID)
	if err != nil {
		s.logger.Error("list documents", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to fetch documents")
		return
	}

	response := make([]interface{}, 0, len(documents))
	for _, d := range documents {
		response = append(response, toModelDocument(d))
	}
	respondJSON(w, http.StatusOK, response)
}

// handleGetDocument returns one document's pipeline state.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	document, ok := s.requireDocument(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, toModelDocument(document))
}

// handleRetryDocument re-runs a failed pipeline from its failing phase.
func (s *Server) handleRetryDocument(w http.ResponseWriter, r *http.Request) {
	document, ok := s.requireDocument(w, r)
	if !ok {
		return
	}

	if err := s.pipeline.Retry(r.Context(), document.ID); err != nil {
		if errors.Is(err, pipeline.ErrNotRetryable) {
			respondError(w, http.StatusConflict, "document is not in a failed state")
			return
		}
		s.logger.Error("retry document", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to retry document")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}

// handleDeleteDocument removes a document. Chunks, extracted nodes, and
// their edges go with it via the schema's cascades; deltas remain as the
// project's audit history.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	document, ok := s.requireDocument(w, r)
	if !ok {
		return
	}

	if err := s.documents.Delete(r.Context(), document.ID); err != nil {
		s.logger.Error("delete document", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// requireDocument loads the documentID route parameter and checks it
// belongs to the (ownership-checked) project in the route.
func (s *Server) requireDocument(w http.ResponseWriter, r *http.Request) (*storage.Document, bool) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return nil, false
	}

	did, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return nil, false
	}

	document, err := s.documents.GetByID(r.Context(), did)
	if err != nil {
		s.logger.Error("fetch document", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to fetch document")
		return nil, false
	}
	if document == nil || document.ProjectID != project.ID {
		respondError(w, http.StatusNotFound, "document not found")
		return nil, false
	}

	return document, true
}
