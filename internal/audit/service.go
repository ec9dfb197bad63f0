package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhaxinji/recagent/internal/llm"
	"github.com/zhaxinji/recagent/internal/models"
)

// Service persists LLM usage records for cost review. It satisfies the
// fabric's UsageRecorder contract.
type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// RecordUsage is called once per successful provider call. Failures are
// logged, not surfaced; accounting never blocks a response.
func (s *Service) RecordUsage(ctx context.Context, rec llm.UsageRecord) {
	var userID *uuid.UUID
	if rec.UserID != uuid.Nil {
		userID = &rec.UserID
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO llm_usage_logs (id, user_id, provider, model, prompt_chars, output_chars, latency_ms, attempts, endpoint)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), userID, rec.Provider, rec.Model, rec.PromptChars, rec.OutputChars,
		rec.LatencyMs, rec.Attempts, rec.Endpoint,
	)
	if err != nil {
		slog.Error("failed to record LLM usage", "provider", rec.Provider, "error", err)
	}
}

type UsageQuery struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

func (s *Service) GetUsageLogs(ctx context.Context, userID uuid.UUID, q UsageQuery) ([]models.LLMUsageLog, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	query := `SELECT id, user_id, provider, model, prompt_chars, output_chars, latency_ms, attempts, endpoint, metadata, created_at
			  FROM llm_usage_logs WHERE user_id = $1`
	args := []interface{}{userID}
	argIdx := 2

	if q.StartDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *q.StartDate)
		argIdx++
	}
	if q.EndDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *q.EndDate)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage logs: %w", err)
	}
	defer rows.Close()

	var logs []models.LLMUsageLog
	for rows.Next() {
		var l models.LLMUsageLog
		var metadata []byte
		if err := rows.Scan(&l.ID, &l.UserID, &l.Provider, &l.Model, &l.PromptChars, &l.OutputChars,
			&l.LatencyMs, &l.Attempts, &l.Endpoint, &metadata, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage log: %w", err)
		}
		if len(metadata) > 0 {
			l.Metadata = json.RawMessage(metadata)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type UsageSummary struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	TotalCalls  int    `json:"total_calls"`
	PromptChars int64  `json:"prompt_chars"`
	OutputChars int64  `json:"output_chars"`
	AvgLatency  int64  `json:"avg_latency_ms"`
}

func (s *Service) GetUsageSummary(ctx context.Context, userID uuid.UUID, startDate, endDate *time.Time) ([]UsageSummary, error) {
	query := `SELECT provider, model, COUNT(*) as total_calls,
			         COALESCE(SUM(prompt_chars), 0), COALESCE(SUM(output_chars), 0),
			         COALESCE(AVG(latency_ms), 0)::bigint
			  FROM llm_usage_logs WHERE user_id = $1`
	args := []interface{}{userID}
	argIdx := 2

	if startDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *startDate)
		argIdx++
	}
	if endDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *endDate)
		argIdx++
	}

	query += " GROUP BY provider, model ORDER BY total_calls DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	defer rows.Close()

	var summaries []UsageSummary
	for rows.Next() {
		var us UsageSummary
		if err := rows.Scan(&us.Provider, &us.Model, &us.TotalCalls, &us.PromptChars, &us.OutputChars, &us.AvgLatency); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summaries = append(summaries, us)
	}
	return summaries, rows.Err()
}
