// Package extraction implements Phase A of the document pipeline: turning
// one document's text into a batch of nodes with source provenance.
package extraction

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/storage"
)

// Completer is the completion call both pipeline stages depend on.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Embedder generates embeddings for node content and quoted passages.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds extraction tuning knobs.
type Config struct {
	// ChunkMatchThreshold is the embedding-similarity floor for linking a
	// quoted passage to its chunk when the substring match misses.
	ChunkMatchThreshold float64
}

// Service runs Phase A for one document.
type Service struct {
	completer Completer
	embedder  Embedder
	nodes     storage.NodeRepository
	chunks    storage.ChunkRepository
	documents storage.DocumentRepository
	matcher   *matcher
}

// NewService creates an extraction service.
func NewService(completer Completer, embedder Embedder, nodes storage.NodeRepository, chunks storage.ChunkRepository, documents storage.DocumentRepository, config Config) *Service {
	return &Service{
		completer: completer,
		embedder:  embedder,
		nodes:     nodes,
		chunks:    chunks,
		documents: documents,
		matcher:   newMatcher(config.ChunkMatchThreshold, embedder),
	}
}

// Run extracts knowledge units from the document and creates them as one
// atomic node batch. Retrying a document that already has extracted nodes
// returns the existing batch instead of creating a second one.
func (s *Service) Run(ctx context.Context, doc *storage.Document) ([]*graph.Node, error) {
	count, err := s.nodes.CountByDocumentID(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("count existing nodes: %w", err)
	}
	if count > 0 {
		return s.nodes.GetByDocumentID(ctx, doc.ID)
	}

	raw, err := s.completer.Complete(ctx, buildPrompt(doc.Title, doc.Content), 3000)
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}

	result, err := parseReply(raw)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunks.GetByDocumentID(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	nodes, err := s.buildNodes(ctx, doc, result.Entries, chunks)
	if err != nil {
		return nil, err
	}

	// Atomic: either the whole batch is created or none of it is.
	if err := s.nodes.CreateBatch(ctx, nodes); err != nil {
		return nil, fmt.Errorf("create node batch: %w", err)
	}

	summary := result.Summary
	if summary == "" {
		summary = autoSummary(doc.Title, result.Entries)
	}
	if err := s.documents.SetExtractionResult(ctx, doc.ID, len(nodes), summary); err != nil {
		return nil, fmt.Errorf("record extraction result: %w", err)
	}

	return nodes, nil
}

func (s *Service) buildNodes(ctx context.Context, doc *storage.Document, entries []Entry, chunks []*storage.Chunk) ([]*graph.Node, error) {
	embeddings, err := s.embedContents(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("embed node contents: %w", err)
	}

	docID := doc.ID
	nodes := make([]*graph.Node, 0, len(entries))
	for i, entry := range entries {
		chunkIDs, err := s.matcher.Match(ctx, entry.Quote, chunks)
		if err != nil {
			// A failed chunk match degrades provenance, not extraction.
			chunkIDs = nil
		}

		spec := graph.NodeSpec{
			ProjectID:      doc.ProjectID,
			Type:           entry.Type,
			Status:         entry.Status,
			Content:        entry.Content,
			SourceType:     graph.SourceDocumentExtraction,
			DocumentID:     &docID,
			ChunkIDs:       chunkIDs,
			SourceQuote:    entry.Quote,
			SourceLocation: entry.Location,
		}
		if embeddings != nil && embeddings[i] != nil {
			spec.Embedding = pgvector.NewVector(embeddings[i])
		}

		spec, _, err = graph.NormalizeNode(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid extracted node: %w", err)
		}

		nodes = append(nodes, &graph.Node{
			ProjectID:      spec.ProjectID,
			Type:           spec.Type,
			Status:         spec.Status,
			Content:        spec.Content,
			SourceType:     spec.SourceType,
			DocumentID:     spec.DocumentID,
			ChunkIDs:       spec.ChunkIDs,
			SourceQuote:    spec.SourceQuote,
			SourceLocation: spec.SourceLocation,
			Embedding:      spec.Embedding,
		})
	}
	return nodes, nil
}

func (s *Service) embedContents(ctx context.Context, entries []Entry) ([][]float32, error) {
	if s.embedder == nil {
		return nil, nil
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Content
	}
	return s.embedder.EmbedTexts(ctx, texts)
}

func autoSummary(title string, entries []Entry) string {
	counts := map[graph.NodeType]int{}
	for _, e := range entries {
		counts[e.Type]++
	}
	return fmt.Sprintf("%s: %d claims, %d evidence items, %d assumptions extracted.",
		title, counts[graph.NodeClaim], counts[graph.NodeEvidence], counts[graph.NodeAssumption])
}
