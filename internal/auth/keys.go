package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhaxinji/recagent/internal/models"
)

// KeyStore persists per-user provider API keys. It satisfies the LLM
// fabric's KeyResolver contract: an empty result means no override.
type KeyStore struct {
	db *pgxpool.Pool
}

func NewKeyStore(db *pgxpool.Pool) *KeyStore {
	return &KeyStore{db: db}
}

func (s *KeyStore) Get(ctx context.Context, userID uuid.UUID, provider string) (string, error) {
	var key string
	err := s.db.QueryRow(ctx,
		`SELECT api_key FROM user_provider_keys WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup provider key: %w", err)
	}
	return key, nil
}

func (s *KeyStore) Set(ctx context.Context, userID uuid.UUID, provider, apiKey string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_provider_keys (id, user_id, provider, api_key)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, provider) DO UPDATE SET api_key = EXCLUDED.api_key`,
		uuid.New(), userID, provider, apiKey,
	)
	if err != nil {
		return fmt.Errorf("store provider key: %w", err)
	}
	return nil
}

func (s *KeyStore) Delete(ctx context.Context, userID uuid.UUID, provider string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM user_provider_keys WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	)
	if err != nil {
		return fmt.Errorf("delete provider key: %w", err)
	}
	return nil
}

// List returns the user's configured providers with the key values blanked.
func (s *KeyStore) List(ctx context.Context, userID uuid.UUID) ([]models.UserProviderKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, provider, created_at FROM user_provider_keys WHERE user_id = $1 ORDER BY provider`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list provider keys: %w", err)
	}
	defer rows.Close()

	var keys []models.UserProviderKey
	for rows.Next() {
		var k models.UserProviderKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Provider, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan provider key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
