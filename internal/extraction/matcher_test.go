package extraction

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/todmy/knowledge-core/internal/storage"
)

type fakeEmbedder struct {
	embedding []float32
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return f.embedding, nil
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.embedding
	}
	return out, nil
}

func TestMatcher_SubstringMatch(t *testing.T) {
	chunks := []*storage.Chunk{
		{ID: uuid.New(), Position: 0, Text: "Unrelated opening paragraph about scope."},
		{ID: uuid.New(), Position: 1, Text: "We traced the outage to the cache migration on Tuesday."},
	}

	m := newMatcher(0, nil)
	ids, err := m.Match(context.Background(), "we traced the outage to the cache migration", chunks)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ids) != 1 || ids[0] != chunks[1].ID {
		t.Errorf("expected substring match on chunk 1, got %v", ids)
	}
}

func TestMatcher_SubstringMatchMultibyteQuote(t *testing.T) {
	// Long enough that the prefix cut lands inside a two-byte character;
	// the cut has to land on a rune boundary or the lowercased prefix
	// picks up a replacement character and never matches.
	quote := "x" + strings.Repeat("ё", 45)
	chunks := []*storage.Chunk{
		{ID: uuid.New(), Position: 0, Text: "intro words " + quote + " trailing words"},
	}

	m := newMatcher(0, nil)
	ids, err := m.Match(context.Background(), quote, chunks)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ids) != 1 || ids[0] != chunks[0].ID {
		t.Errorf("expected substring match on the multibyte quote, got %v", ids)
	}
}

func TestMatcher_EmbeddingFallback(t *testing.T) {
	near := pgvector.NewVector([]float32{1, 0})
	far := pgvector.NewVector([]float32{0, 1})
	chunks := []*storage.Chunk{
		{ID: uuid.New(), Position: 0, Text: "completely different wording", Embedding: far},
		{ID: uuid.New(), Position: 1, Text: "also different wording", Embedding: near},
	}

	m := newMatcher(0.8, &fakeEmbedder{embedding: []float32{1, 0}})
	ids, err := m.Match(context.Background(), "a paraphrase that appears nowhere verbatim", chunks)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ids) != 1 || ids[0] != chunks[1].ID {
		t.Errorf("expected embedding match on the near chunk, got %v", ids)
	}
}

func TestMatcher_NoQuote(t *testing.T) {
	m := newMatcher(0, nil)
	ids, err := m.Match(context.Background(), "", []*storage.Chunk{{ID: uuid.New(), Text: "anything"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ids != nil {
		t.Errorf("expected no match without a quote, got %v", ids)
	}
}

func TestMatcher_MissWithoutEmbedder(t *testing.T) {
	chunks := []*storage.Chunk{{ID: uuid.New(), Text: "nothing in common"}}

	m := newMatcher(0, nil)
	ids, err := m.Match(context.Background(), "a quote that matches nothing", chunks)
	if err != nil {
		t.Fatalf("expected graceful miss, got %v", err)
	}
	if ids != nil {
		t.Errorf("expected nil ids, got %v", ids)
	}
}
