package plancache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"queryforge/internal/llm"
)

// Snippet is a short piece of documentation text indexed for similarity
// search, so the planner can drop relevant docs into prompts.
type Snippet struct {
	Title     string
	Text      string
	embedding []float32
}

// SnippetStore is an in-memory similarity index over documentation
// snippets. Rebuilt on process start; never persisted.
type SnippetStore struct {
	mu       sync.RWMutex
	embedder llm.Embedder
	snippets []Snippet
	floor    float64
}

// NewSnippetStore creates an empty store. floor is the minimum similarity
// for a snippet to be returned.
func NewSnippetStore(embedder llm.Embedder, floor float64) *SnippetStore {
	return &SnippetStore{embedder: embedder, floor: floor}
}

// Add indexes a snippet.
func (s *SnippetStore) Add(ctx context.Context, title, text string) error {
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed snippet %q: %w", title, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snippets = append(s.snippets, Snippet{Title: title, Text: text, embedding: embedding})
	return nil
}

// Search returns up to topK snippets relevant to query, best first.
func (s *SnippetStore) Search(ctx context.Context, query string, topK int) ([]Snippet, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		snippet Snippet
		score   float64
	}
	var ranked []scored
	for _, sn := range s.snippets {
		score := cosineSimilarity(embedding, sn.embedding)
		if score < s.floor {
			continue
		}
		ranked = append(ranked, scored{sn, score})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]Snippet, 0, topK)
	for _, r := range ranked {
		if topK > 0 && len(out) >= topK {
			break
		}
		out = append(out, r.snippet)
	}
	return out, nil
}

// Len returns the number of indexed snippets.
func (s *SnippetStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snippets)
}
