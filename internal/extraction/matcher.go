package extraction

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/todmy/knowledge-core/internal/similarity"
	"github.com/todmy/knowledge-core/internal/storage"
)

const (
	// quotePrefixLength is how much of a quoted passage is used for the
	// exact substring match against chunk text.
	quotePrefixLength = 80

	// defaultMatchThreshold is the embedding-similarity floor for the
	// fallback match when no substring hit is found.
	defaultMatchThreshold = 0.85

	// matchTopK caps how many chunks an entry is linked to by the
	// embedding fallback.
	matchTopK = 3
)

// matcher links an extracted entry's quoted passage back to the document
// chunks it came from.
type matcher struct {
	threshold float64
	embedder  Embedder
}

func newMatcher(threshold float64, embedder Embedder) *matcher {
	if threshold <= 0 {
		threshold = defaultMatchThreshold
	}
	return &matcher{threshold: threshold, embedder: embedder}
}

// Match returns the ids of the chunks the quote most plausibly originated
// from. The exact substring match runs first; the embedding fallback only
// runs when it misses and the chunks carry embeddings.
func (m *matcher) Match(ctx context.Context, quote string, chunks []*storage.Chunk) ([]uuid.UUID, error) {
	if quote == "" || len(chunks) == 0 {
		return nil, nil
	}

	if id, ok := substringMatch(quote, chunks); ok {
		return []uuid.UUID{id}, nil
	}

	return m.embeddingMatch(ctx, quote, chunks)
}

// substringMatch looks for the quote's leading characters inside any chunk,
// case-insensitively.
func substringMatch(quote string, chunks []*storage.Chunk) (uuid.UUID, bool) {
	prefix := quote
	if len(prefix) > quotePrefixLength {
		// Back off to a rune boundary so a multi-byte character is never
		// split in half.
		cut := quotePrefixLength
		for cut > 0 && !utf8.RuneStart(prefix[cut]) {
			cut--
		}
		prefix = prefix[:cut]
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return uuid.Nil, false
	}

	for _, chunk := range chunks {
		if strings.Contains(strings.ToLower(chunk.Text), prefix) {
			return chunk.ID, true
		}
	}
	return uuid.Nil, false
}

func (m *matcher) embeddingMatch(ctx context.Context, quote string, chunks []*storage.Chunk) ([]uuid.UUID, error) {
	if m.embedder == nil {
		return nil, nil
	}

	var candidates [][]float32
	var candidateIDs []uuid.UUID
	for _, chunk := range chunks {
		if emb := chunk.Embedding.Slice(); emb != nil {
			candidates = append(candidates, emb)
			candidateIDs = append(candidateIDs, chunk.ID)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	quoteEmbedding, err := m.embedder.EmbedText(ctx, quote)
	if err != nil {
		return nil, err
	}

	matches := similarity.TopK(quoteEmbedding, candidates, matchTopK, m.threshold)

	ids := make([]uuid.UUID, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, candidateIDs[match.Index])
	}
	return ids, nil
}
