// Package api exposes the HTTP surface: auth, project CRUD, document
// ingest, the graph read API, the mutation API used by conversational
// editors, and the delta feed.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/todmy/knowledge-core/internal/auth"
	"github.com/todmy/knowledge-core/internal/delta"
	"github.com/todmy/knowledge-core/internal/pipeline"
	"github.com/todmy/knowledge-core/internal/storage"
	"github.com/todmy/knowledge-core/internal/store"
)

// Deps carries everything the server needs. All fields are required except
// Logger, which defaults to a no-op.
type Deps struct {
	Logger *zap.Logger

	AuthService auth.Service

	Projects  storage.ProjectRepository
	Documents storage.DocumentRepository
	Chunks    storage.ChunkRepository
	Nodes     storage.NodeRepository
	Edges     storage.EdgeRepository
	Deltas    storage.DeltaRepository

	Graph    *store.Store
	Recorder *delta.Recorder
	Pipeline *pipeline.Orchestrator
}

type Server struct {
	router *chi.Mux
	logger *zap.Logger

	authService auth.Service
	authHandler *auth.Handlers

	projects  storage.ProjectRepository
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	nodes     storage.NodeRepository
	edges     storage.EdgeRepository
	deltas    storage.DeltaRepository

	graph    *store.Store
	recorder *delta.Recorder
	pipeline *pipeline.Orchestrator
}

func NewServer(deps Deps) *Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		router:      r,
		logger:      logger,
		authService: deps.AuthService,
		authHandler: auth.NewHandlers(deps.AuthService, logger),
		projects:    deps.Projects,
		documents:   deps.Documents,
		chunks:      deps.Chunks,
		nodes:       deps.Nodes,
		edges:       deps.Edges,
		deltas:      deps.Deltas,
		graph:       deps.Graph,
		recorder:    deps.Recorder,
		pipeline:    deps.Pipeline,
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public)
		r.Post("/auth/register", s.authHandler.Register)
		r.Post("/auth/login", s.authHandler.Login)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.authService))

			r.Get("/auth/me", s.authHandler.Me)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.handleListProjects)
				r.Post("/", s.handleCreateProject)

				r.Route("/{projectID}", func(r chi.Router) {
					r.Get("/", s.handleGetProject)
					r.Delete("/", s.handleDeleteProject)

					// Document ingest and pipeline state
					r.Route("/documents", func(r chi.Router) {
						r.Get("/", s.handleListDocuments)
						r.Post("/", s.handleIngestDocument)
						r.Get("/{documentID}", s.handleGetDocument)
						r.Delete("/{documentID}", s.handleDeleteDocument)
						r.Post("/{documentID}/retry", s.handleRetryDocument)
						r.Get("/{documentID}/delta", s.handleGetDocumentDelta)
					})

					// Graph read API
					r.Get("/graph", s.handleGetGraph)
					r.Get("/graph/health", s.handleGetGraphHealth)
					r.Get("/graph/orientation", s.handleGetOrientation)

					// Mutation API
					r.Post("/nodes", s.handleCreateNode)
					r.Patch("/nodes/{nodeID}/status", s.handleUpdateNodeStatus)
					r.Patch("/nodes/{nodeID}/content", s.handleUpdateNodeContent)
					r.Delete("/nodes/{nodeID}", s.handleDeleteNode)
					r.Post("/edges", s.handleCreateEdge)

					// Delta feed
					r.Get("/deltas", s.handleListDeltas)
				})
			})
		})
	})
}

func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper to send JSON responses
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
