// Package pipeline sequences the per-document state machine:
// pending → extracting → integrating → completed, with failed reachable
// from any phase. Each document runs as an independent asynchronous unit of
// work; Phase A is document-local and safe to run in parallel across
// documents, while Phase B serializes on the project's mutation lock, held
// here from context assembly through the integration apply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/todmy/knowledge-core/internal/assembler"
	"github.com/todmy/knowledge-core/internal/delta"
	"github.com/todmy/knowledge-core/internal/extraction"
	"github.com/todmy/knowledge-core/internal/graph"
	"github.com/todmy/knowledge-core/internal/integration"
	"github.com/todmy/knowledge-core/internal/storage"
	"github.com/todmy/knowledge-core/internal/store"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrNotRetryable     = errors.New("document is not in a retryable state")
)

// Config holds orchestrator tuning knobs.
type Config struct {
	// PhaseTimeout bounds each model-backed phase. A phase that exceeds it
	// is abandoned and the document marked failed for that phase.
	PhaseTimeout time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{PhaseTimeout: 3 * time.Minute}
}

// Orchestrator drives document pipelines.
type Orchestrator struct {
	documents   storage.DocumentRepository
	nodes       storage.NodeRepository
	edges       storage.EdgeRepository
	extraction  *extraction.Service
	assembler   *assembler.Assembler
	integration *integration.Service
	graph       *store.Store
	recorder    *delta.Recorder
	logger      *zap.Logger
	config      Config
}

// New creates an Orchestrator.
func New(
	documents storage.DocumentRepository,
	nodes storage.NodeRepository,
	edges storage.EdgeRepository,
	ext *extraction.Service,
	asm *assembler.Assembler,
	integ *integration.Service,
	graphStore *store.Store,
	recorder *delta.Recorder,
	logger *zap.Logger,
	config Config,
) *Orchestrator {
	if config.PhaseTimeout <= 0 {
		config.PhaseTimeout = DefaultConfig().PhaseTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		documents:   documents,
		nodes:       nodes,
		edges:       edges,
		extraction:  ext,
		assembler:   asm,
		integration: integ,
		graph:       graphStore,
		recorder:    recorder,
		logger:      logger,
		config:      config,
	}
}

// Start launches the pipeline for a document asynchronously. Failures are
// recorded on the document, never returned to the triggering caller.
func (o *Orchestrator) Start(documentID uuid.UUID) {
	go func() {
		if err := o.Run(context.Background(), documentID); err != nil {
			o.logger.Error("pipeline run failed",
				zap.String("document_id", documentID.String()),
				zap.Error(err))
		}
	}()
}

// Retry re-runs a failed document's pipeline, resuming at the recorded
// failing phase.
func (o *Orchestrator) Retry(ctx context.Context, documentID uuid.UUID) error {
	doc, err := o.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	if doc.Status != storage.DocumentFailed {
		return ErrNotRetryable
	}

	o.Start(documentID)
	return nil
}

// Run executes the pipeline synchronously. Exposed for the asynchronous
// launcher and for tests.
func (o *Orchestrator) Run(ctx context.Context, documentID uuid.UUID) error {
	doc, err := o.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	nodeCount, err := o.nodes.CountByDocumentID(ctx, documentID)
	if err != nil {
		return err
	}

	start := resumePhase(doc.Status, doc.FailedPhase, nodeCount)
	if start == "" {
		o.logger.Info("pipeline already completed", zap.String("document_id", documentID.String()))
		return nil
	}

	if start == storage.PhaseIntegration && nodeCount > 0 {
		// Re-entering Phase B: clear anything a prior attempt attributed
		// to this document before reading the graph again.
		if err := o.cleanupPartialIntegration(ctx, doc); err != nil {
			return fmt.Errorf("cleanup partial integration: %w", err)
		}
	}

	newNodes, err := o.runExtraction(ctx, doc, nodeCount > 0)
	if err != nil {
		return err
	}

	return o.runIntegration(ctx, doc, newNodes)
}

// resumePhase maps the document's recorded state to where the pipeline
// should (re)start. An empty phase means there is nothing to do.
func resumePhase(status storage.DocumentStatus, failedPhase storage.Phase, nodeCount int) storage.Phase {
	switch status {
	case storage.DocumentPending:
		return storage.PhaseExtraction
	case storage.DocumentExtracting:
		// Extraction is atomic: nodes present means it finished and the
		// process died before the transition was persisted.
		if nodeCount > 0 {
			return storage.PhaseIntegration
		}
		return storage.PhaseExtraction
	case storage.DocumentIntegrating:
		return storage.PhaseIntegration
	case storage.DocumentFailed:
		if failedPhase == storage.PhaseIntegration || nodeCount > 0 {
			return storage.PhaseIntegration
		}
		return storage.PhaseExtraction
	case storage.DocumentCompleted:
		return ""
	}
	return storage.PhaseExtraction
}

func (o *Orchestrator) cleanupPartialIntegration(ctx context.Context, doc *storage.Document) error {
	removed, err := o.edges.DeleteByDocumentID(ctx, doc.ID)
	if err != nil {
		return err
	}
	if err := o.nodes.DeleteByDocumentSource(ctx, doc.ID, graph.SourceIntegration); err != nil {
		return err
	}
	if removed > 0 {
		o.logger.Info("removed partial integration state",
			zap.String("document_id", doc.ID.String()),
			zap.Int("edges_removed", removed))
	}
	return nil
}

func (o *Orchestrator) runExtraction(ctx context.Context, doc *storage.Document, haveNodes bool) ([]*graph.Node, error) {
	// A resumed document with surviving nodes takes the idempotence path in
	// the extraction service; don't flip its visible status back first.
	if !haveNodes {
		if err := o.documents.UpdateStatus(ctx, doc.ID, storage.DocumentExtracting); err != nil {
			return nil, err
		}
	}

	phaseCtx, cancel := context.WithTimeout(ctx, o.config.PhaseTimeout)
	defer cancel()

	newNodes, err := o.extraction.Run(phaseCtx, doc)
	if err != nil {
		// No nodes exist on extraction failure; safe to retry from scratch.
		if markErr := o.documents.MarkFailed(ctx, doc.ID, storage.PhaseExtraction, err.Error(), 0); markErr != nil {
			o.logger.Error("failed to record extraction failure", zap.Error(markErr))
		}
		return nil, fmt.Errorf("extraction: %w", err)
	}

	o.logger.Info("extraction complete",
		zap.String("document_id", doc.ID.String()),
		zap.Int("nodes", len(newNodes)))
	return newNodes, nil
}

func (o *Orchestrator) runIntegration(ctx context.Context, doc *storage.Document, newNodes []*graph.Node) error {
	if err := o.documents.UpdateStatus(ctx, doc.ID, storage.DocumentIntegrating); err != nil {
		return err
	}

	phaseCtx, cancel := context.WithTimeout(ctx, o.config.PhaseTimeout)
	defer cancel()

	// The lock spans context assembly through the integration apply: no
	// other mutation may slip in between reading the graph and writing the
	// proposals reconciled against that read.
	unlock := o.graph.LockProject(doc.ProjectID)
	defer unlock()

	docID := doc.ID
	assembled, err := o.assembler.Assemble(phaseCtx, doc.ProjectID, newNodes, &docID)
	if err != nil {
		return o.failIntegration(ctx, doc, len(newNodes), fmt.Errorf("assemble context: %w", err))
	}

	ref := integration.DocumentRef{ID: doc.ID, ProjectID: doc.ProjectID, Title: doc.Title}
	outcome, err := o.integration.Run(phaseCtx, ref, newNodes, assembled)
	if err != nil {
		// Phase A nodes stay valid and queryable: un-integrated, not
		// corrupted.
		return o.failIntegration(ctx, doc, len(newNodes), err)
	}

	patch := make(graph.Patch, 0, len(newNodes)+len(outcome.Patch))
	for _, node := range newNodes {
		patch = append(patch, graph.Change{
			Kind:     graph.ChangeCreateNode,
			NodeID:   node.ID,
			NodeType: node.Type,
		})
	}
	patch = append(patch, outcome.Patch...)

	if _, err := o.recorder.Record(ctx, doc.ProjectID, graph.TriggerDocumentUpload, &docID, nil, patch, outcome.Narrative); err != nil {
		return o.failIntegration(ctx, doc, len(newNodes), err)
	}

	if err := o.documents.UpdateStatus(ctx, doc.ID, storage.DocumentCompleted); err != nil {
		return err
	}

	o.logger.Info("pipeline complete",
		zap.String("document_id", doc.ID.String()),
		zap.Bool("integration_skipped", outcome.Skipped),
		zap.Int("patch_entries", len(patch)))
	return nil
}

func (o *Orchestrator) failIntegration(ctx context.Context, doc *storage.Document, partialNodes int, err error) error {
	if markErr := o.documents.MarkFailed(ctx, doc.ID, storage.PhaseIntegration, err.Error(), partialNodes); markErr != nil {
		o.logger.Error("failed to record integration failure", zap.Error(markErr))
	}
	return fmt.Errorf("integration: %w", err)
}
