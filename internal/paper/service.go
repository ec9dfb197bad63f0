package paper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhaxinji/recagent/internal/models"
)

var (
	ErrNotFound      = errors.New("paper not found")
	ErrNotAuthorized = errors.New("paper not owned by user")
	ErrEmptyContent  = errors.New("paper has no content")
)

const paperColumns = `id, owner_id, title, content, file_path, analysis_status, analysis_progress,
	analysis_error, sections, methodology, key_findings, weaknesses, future_work,
	experiment_data, code_implementation, reference_list, analysis_completed_at, created_at, updated_at`

// Service is the papers repository. The analysis pipeline writes through the
// Set*/Save* methods, each a short single-statement transaction so progress
// is visible while LLM calls are pending.
type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

func (s *Service) Create(ctx context.Context, p *models.Paper) (*models.Paper, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.AnalysisStatus == "" {
		p.AnalysisStatus = models.AnalysisPending
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO papers (id, owner_id, title, content, file_path, analysis_status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		p.ID, p.OwnerID, p.Title, p.Content, p.FilePath, p.AnalysisStatus,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert paper: %w", err)
	}
	return p, nil
}

// Get fetches a paper without an ownership check; pipeline internal use.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Paper, error) {
	row := s.db.QueryRow(ctx, `SELECT `+paperColumns+` FROM papers WHERE id = $1`, id)
	p, err := scanPaper(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}
	return p, nil
}

// GetOwned fetches a paper and enforces ownership.
func (s *Service) GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*models.Paper, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, ErrNotAuthorized
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Paper, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	var papers []models.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		p.Content = "" // listings stay light
		papers = append(papers, *p)
	}
	return papers, rows.Err()
}

// SetFilePath records where the uploaded file landed in object storage.
func (s *Service) SetFilePath(ctx context.Context, id uuid.UUID, path string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE papers SET file_path = $2, updated_at = now() WHERE id = $1`,
		id, path)
	if err != nil {
		return fmt.Errorf("set file path: %w", err)
	}
	return nil
}

// SetContent stores extracted text after file ingestion.
func (s *Service) SetContent(ctx context.Context, id uuid.UUID, content string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE papers SET content = $2, updated_at = now() WHERE id = $1`,
		id, content)
	if err != nil {
		return fmt.Errorf("set content: %w", err)
	}
	return nil
}

// SetProgress advances analysis progress; GREATEST keeps it monotone even if
// a stale writer races a resumed run.
func (s *Service) SetProgress(ctx context.Context, id uuid.UUID, progress int, status string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE papers SET analysis_progress = GREATEST(analysis_progress, $2),
		        analysis_status = $3, updated_at = now()
		 WHERE id = $1`,
		id, progress, status)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE papers SET analysis_status = $2, analysis_progress = 100,
		        analysis_error = '', analysis_completed_at = $3, updated_at = now()
		 WHERE id = $1`,
		id, models.AnalysisCompleted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkStopped records a terminal partial or failed state with a diagnostic.
func (s *Service) MarkStopped(ctx context.Context, id uuid.UUID, status, diagnostic string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE papers SET analysis_status = $2, analysis_error = $3, updated_at = now()
		 WHERE id = $1`,
		id, status, diagnostic)
	if err != nil {
		return fmt.Errorf("mark stopped: %w", err)
	}
	return nil
}

func (s *Service) SaveSections(ctx context.Context, id uuid.UUID, v []models.Section) error {
	return s.saveJSON(ctx, id, "sections", v)
}

func (s *Service) SaveMethodology(ctx context.Context, id uuid.UUID, v *models.Methodology) error {
	return s.saveJSON(ctx, id, "methodology", v)
}

func (s *Service) SaveKeyFindings(ctx context.Context, id uuid.UUID, v []string) error {
	return s.saveJSON(ctx, id, "key_findings", v)
}

func (s *Service) SaveWeaknesses(ctx context.Context, id uuid.UUID, v []models.Weakness) error {
	return s.saveJSON(ctx, id, "weaknesses", v)
}

func (s *Service) SaveFutureWork(ctx context.Context, id uuid.UUID, v []models.FutureWork) error {
	return s.saveJSON(ctx, id, "future_work", v)
}

func (s *Service) SaveExperimentData(ctx context.Context, id uuid.UUID, v *models.ExperimentData) error {
	return s.saveJSON(ctx, id, "experiment_data", v)
}

func (s *Service) SaveReferences(ctx context.Context, id uuid.UUID, v []string) error {
	return s.saveJSON(ctx, id, "reference_list", v)
}

func (s *Service) SaveCodeImplementation(ctx context.Context, id uuid.UUID, code string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE papers SET code_implementation = $2, updated_at = now() WHERE id = $1`,
		id, code)
	if err != nil {
		return fmt.Errorf("save code_implementation: %w", err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM papers WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete paper: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// allowed jsonb columns for saveJSON; the column name is never caller input.
func (s *Service) saveJSON(ctx context.Context, id uuid.UUID, column string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", column, err)
	}
	_, err = s.db.Exec(ctx,
		`UPDATE papers SET `+column+` = $2, updated_at = now() WHERE id = $1`,
		id, data)
	if err != nil {
		return fmt.Errorf("save %s: %w", column, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaper(row rowScanner) (*models.Paper, error) {
	var (
		p              models.Paper
		analysisErr    *string
		sections       []byte
		methodology    []byte
		keyFindings    []byte
		weaknesses     []byte
		futureWork     []byte
		experimentData []byte
		references     []byte
	)
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Content, &p.FilePath,
		&p.AnalysisStatus, &p.AnalysisProgress, &analysisErr,
		&sections, &methodology, &keyFindings, &weaknesses, &futureWork,
		&experimentData, &p.CodeImplementation, &references,
		&p.AnalysisCompletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if analysisErr != nil {
		p.AnalysisError = *analysisErr
	}

	decode := func(data []byte, dest any) {
		if len(data) > 0 {
			_ = json.Unmarshal(data, dest)
		}
	}
	decode(sections, &p.Sections)
	decode(methodology, &p.Methodology)
	decode(keyFindings, &p.KeyFindings)
	decode(weaknesses, &p.Weaknesses)
	decode(futureWork, &p.FutureWork)
	decode(experimentData, &p.ExperimentData)
	decode(references, &p.References)
	return &p, nil
}
