package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/zhaxinji/recagent/internal/analysis"
	"github.com/zhaxinji/recagent/internal/cache"
	"github.com/zhaxinji/recagent/internal/models"
	"github.com/zhaxinji/recagent/internal/paper"
	"github.com/zhaxinji/recagent/internal/queue"
)

// AnalysisWorker runs the paper pipeline off the queue. A redis lock keeps
// one run per paper; a locked paper is retried by asynq later and resumes
// from the persisted progress.
type AnalysisWorker struct {
	pipeline *analysis.Pipeline
	cache    *cache.Cache
}

func NewAnalysisWorker(pipeline *analysis.Pipeline, c *cache.Cache) *AnalysisWorker {
	return &AnalysisWorker{pipeline: pipeline, cache: c}
}

func (w *AnalysisWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.PaperAnalyzePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	paperID, err := uuid.Parse(payload.PaperID)
	if err != nil {
		return fmt.Errorf("parse paper ID: %w", err)
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("parse user ID: %w", err)
	}

	ok, err := w.cache.AcquireAnalysisLock(ctx, paperID)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("paper %s already being analyzed", paperID)
	}
	defer func() {
		if err := w.cache.ReleaseAnalysisLock(context.WithoutCancel(ctx), paperID); err != nil {
			slog.Error("failed to release analysis lock", "paper_id", paperID, "error", err)
		}
	}()

	slog.Info("analysis task started", "paper_id", paperID, "user_id", userID)

	p, err := w.pipeline.Analyze(ctx, paperID, analysis.Options{
		UserID:             userID,
		Provider:           payload.Provider,
		ExtractCoreContent: payload.ExtractCoreContent,
		AnalyzeExperiments: payload.AnalyzeExperiments,
		AnalyzeReferences:  payload.AnalyzeReferences,
	})
	if err != nil {
		// Invariant failures will not heal on retry.
		if errors.Is(err, paper.ErrNotFound) || errors.Is(err, paper.ErrEmptyContent) {
			slog.Error("analysis task rejected", "paper_id", paperID, "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("analyze paper %s: %w", paperID, err)
	}

	if p.AnalysisStatus != models.AnalysisCompleted {
		slog.Warn("analysis task finished degraded", "paper_id", paperID, "status", p.AnalysisStatus)
	} else {
		slog.Info("analysis task finished", "paper_id", paperID, "progress", p.AnalysisProgress)
	}
	return nil
}
