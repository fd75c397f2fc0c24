package api

import (
	"net/http"
	"strconv"
)

const defaultDeltaLimit = 20

// handleListDeltas returns the most recent deltas for a project, newest
// first. The limit query parameter caps the count.
func (s *Server) handleListDeltas(w http.ResponseWriter, r *http.Request) {
	project, ok := s.requireProject(w, r)
	if !ok {
		return
	}

	limit := defaultDeltaLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	deltas, err := s.deltas.GetByProjectID(r.Context(), project.ID, limit)
	if err != nil {
		s.logger.Error("list deltas", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to fetch deltas")
		return
	}

	response := make([]interface{}, 0, len(deltas))
	for _, d := range deltas {
		response = append(response, toModelDelta(d))
	}
	respondJSON(w, http.StatusOK, response)
}

// handleGetDocumentDelta returns the delta produced by a document's
// pipeline run.
func (s *Server) handleGetDocumentDelta(w http.ResponseWriter, r *http.Request) {
	document, ok := s.requireDocument(w, r)
	if !ok {
		return
	}

	delta, err := s.deltas.GetByDocumentID(r.Context(), document.ID)
	if err != nil {
		s.logger.Error("fetch document delta", errField(err))
		respondError(w, http.StatusInternalServerError, "failed to fetch delta")
		return
	}
	if delta == nil {
		respondError(w, http.StatusNotFound, "no delta recorded for this document")
		return
	}

	respondJSON(w, http.StatusOK, toModelDelta(delta))
}
