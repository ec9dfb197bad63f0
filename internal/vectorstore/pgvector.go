package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var ErrNotIndexed = errors.New("paper has no embedding")

type PgVectorStore struct {
	db *pgxpool.Pool
}

func NewPgVectorStore(db *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (s *PgVectorStore) Upsert(ctx context.Context, v PaperVector) error {
	id := v.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	embedding := pgvector.NewVector(v.Embedding)

	_, err := s.db.Exec(ctx,
		`INSERT INTO paper_embeddings (id, paper_id, owner_id, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (paper_id) DO UPDATE SET embedding = $4`,
		id, v.PaperID, v.OwnerID, embedding,
	)
	if err != nil {
		return fmt.Errorf("upsert paper embedding: %w", err)
	}
	return nil
}

// SimilarPapers ranks the owner's indexed papers by cosine similarity to
// the query vector.
func (s *PgVectorStore) SimilarPapers(ctx context.Context, ownerID uuid.UUID, query []float32, topK int) ([]SimilarPaper, error) {
	if topK <= 0 {
		topK = 10
	}
	embedding := pgvector.NewVector(query)

	rows, err := s.db.Query(ctx,
		`SELECT paper_id, 1 - (embedding <=> $1) AS score
		 FROM paper_embeddings
		 WHERE owner_id = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		embedding, ownerID, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var results []SimilarPaper
	for rows.Next() {
		var r SimilarPaper
		if err := rows.Scan(&r.PaperID, &r.Score); err != nil {
			return nil, fmt.Errorf("scan similar paper: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PgVectorStore) Get(ctx context.Context, paperID uuid.UUID) ([]float32, error) {
	var embedding pgvector.Vector
	err := s.db.QueryRow(ctx,
		"SELECT embedding FROM paper_embeddings WHERE paper_id = $1", paperID,
	).Scan(&embedding)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotIndexed
	}
	if err != nil {
		return nil, fmt.Errorf("get paper embedding: %w", err)
	}
	return embedding.Slice(), nil
}
