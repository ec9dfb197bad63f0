package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/zhaxinji/recagent/internal/models"
	"github.com/zhaxinji/recagent/internal/paper"
	"github.com/zhaxinji/recagent/internal/queue"
	"github.com/zhaxinji/recagent/internal/storage"
	"github.com/zhaxinji/recagent/pkg/textextract"
)

// IngestWorker pulls an uploaded file out of storage, extracts its text
// into the paper record, and chains into analysis.
type IngestWorker struct {
	papers      *paper.Service
	storage     storage.Storage
	queueClient *queue.Client
}

func NewIngestWorker(papers *paper.Service, store storage.Storage, qc *queue.Client) *IngestWorker {
	return &IngestWorker{papers: papers, storage: store, queueClient: qc}
}

func (w *IngestWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.PaperIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	paperID, err := uuid.Parse(payload.PaperID)
	if err != nil {
		return fmt.Errorf("parse paper ID: %w", err)
	}

	slog.Info("ingest task started", "paper_id", paperID, "file_type", payload.FileType)

	p, err := w.papers.Get(ctx, paperID)
	if err != nil {
		return fmt.Errorf("get paper: %w", err)
	}
	if p.FilePath == "" {
		return fmt.Errorf("paper %s has no file: %w", paperID, asynq.SkipRetry)
	}

	reader, err := w.storage.DownloadPaper(ctx, p.FilePath)
	if err != nil {
		return fmt.Errorf("download paper file: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read paper file: %w", err)
	}

	extracted, err := textextract.Extract(textextract.ReaderAtFromBytes(data), int64(len(data)), payload.FileType)
	if err != nil {
		if stopErr := w.papers.MarkStopped(ctx, paperID, models.AnalysisFailed, "text extraction failed: "+err.Error()); stopErr != nil {
			slog.Error("failed to record extraction failure", "paper_id", paperID, "error", stopErr)
		}
		return fmt.Errorf("extract text: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(extracted.Content) == "" {
		if stopErr := w.papers.MarkStopped(ctx, paperID, models.AnalysisFailed, "extracted file contains no text"); stopErr != nil {
			slog.Error("failed to record empty extraction", "paper_id", paperID, "error", stopErr)
		}
		return fmt.Errorf("paper %s extracted empty: %w", paperID, asynq.SkipRetry)
	}

	if err := w.papers.SetContent(ctx, paperID, extracted.Content); err != nil {
		return fmt.Errorf("store extracted content: %w", err)
	}

	if err := w.queueClient.EnqueuePaperAnalyze(queue.PaperAnalyzePayload{
		PaperID:            payload.PaperID,
		UserID:             payload.UserID,
		Provider:           payload.Provider,
		ExtractCoreContent: payload.ExtractCoreContent,
		AnalyzeExperiments: payload.AnalyzeExperiments,
		AnalyzeReferences:  payload.AnalyzeReferences,
	}); err != nil {
		return fmt.Errorf("enqueue analysis: %w", err)
	}

	slog.Info("ingest task finished", "paper_id", paperID, "pages", extracted.Pages, "chars", len(extracted.Content))
	return nil
}
