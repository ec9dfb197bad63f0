package vectorstore

import (
	"context"

	"github.com/google/uuid"
)

// PaperVector is one paper's embedding; a paper has at most one.
type PaperVector struct {
	ID        uuid.UUID
	PaperID   uuid.UUID
	OwnerID   uuid.UUID
	Embedding []float32
}

type SimilarPaper struct {
	PaperID uuid.UUID `json:"paper_id"`
	Score   float64   `json:"score"`
}

// VectorStore is the embedding persistence surface. There is no delete:
// paper_embeddings rows are dropped by the paper's foreign-key cascade.
type VectorStore interface {
	Upsert(ctx context.Context, v PaperVector) error
	SimilarPapers(ctx context.Context, ownerID uuid.UUID, query []float32, topK int) ([]SimilarPaper, error)
	Get(ctx context.Context, paperID uuid.UUID) ([]float32, error)
}
