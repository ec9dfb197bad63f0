package embedding

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zhaxinji/recagent/internal/vectorstore"
)

// Embedder is the fabric surface the service needs.
type Embedder interface {
	Embed(ctx context.Context, userID uuid.UUID, provider, input string) ([]float32, error)
}

// Service turns paper text into stored embeddings and answers similarity
// queries. It satisfies the analysis pipeline's Indexer contract.
type Service struct {
	embedder Embedder
	store    vectorstore.VectorStore
	provider string
}

func NewService(embedder Embedder, store vectorstore.VectorStore, provider string) *Service {
	if provider == "" {
		provider = "openai"
	}
	return &Service{embedder: embedder, store: store, provider: provider}
}

// IndexPaper embeds a representative slice of the paper and upserts it.
func (s *Service) IndexPaper(ctx context.Context, paperID, ownerID uuid.UUID, content string) error {
	if content == "" {
		return fmt.Errorf("index paper %s: empty content", paperID)
	}
	vec, err := s.embedder.Embed(ctx, ownerID, s.provider, content)
	if err != nil {
		return fmt.Errorf("embed paper %s: %w", paperID, err)
	}
	return s.store.Upsert(ctx, vectorstore.PaperVector{
		PaperID:   paperID,
		OwnerID:   ownerID,
		Embedding: vec,
	})
}

// SimilarPapers ranks the owner's other papers against one indexed paper.
func (s *Service) SimilarPapers(ctx context.Context, paperID, ownerID uuid.UUID, topK int) ([]vectorstore.SimilarPaper, error) {
	vec, err := s.store.Get(ctx, paperID)
	if err != nil {
		return nil, err
	}
	results, err := s.store.SimilarPapers(ctx, ownerID, vec, topK+1)
	if err != nil {
		return nil, err
	}
	// The query paper ranks itself first; drop it.
	filtered := results[:0]
	for _, r := range results {
		if r.PaperID != paperID {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered, nil
}
