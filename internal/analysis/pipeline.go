package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/zhaxinji/recagent/internal/llm"
	"github.com/zhaxinji/recagent/internal/models"
	"github.com/zhaxinji/recagent/internal/paper"
	"github.com/zhaxinji/recagent/pkg/textprep"
)

// Store is the slice of the paper repository the pipeline writes through.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Paper, error)
	SetProgress(ctx context.Context, id uuid.UUID, progress int, status string) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkStopped(ctx context.Context, id uuid.UUID, status, diagnostic string) error
	SaveSections(ctx context.Context, id uuid.UUID, v []models.Section) error
	SaveMethodology(ctx context.Context, id uuid.UUID, v *models.Methodology) error
	SaveKeyFindings(ctx context.Context, id uuid.UUID, v []string) error
	SaveWeaknesses(ctx context.Context, id uuid.UUID, v []models.Weakness) error
	SaveFutureWork(ctx context.Context, id uuid.UUID, v []models.FutureWork) error
	SaveExperimentData(ctx context.Context, id uuid.UUID, v *models.ExperimentData) error
	SaveReferences(ctx context.Context, id uuid.UUID, v []string) error
	SaveCodeImplementation(ctx context.Context, id uuid.UUID, code string) error
}

// Completer is the fabric surface the pipeline needs.
type Completer interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// Indexer receives the analyzed paper for embedding storage; optional and
// best effort.
type Indexer interface {
	IndexPaper(ctx context.Context, paperID uuid.UUID, ownerID uuid.UUID, content string) error
}

type Options struct {
	UserID             uuid.UUID
	Provider           string
	ExtractCoreContent bool
	AnalyzeExperiments bool
	AnalyzeReferences  bool
}

// errPersist marks store failures inside a phase; unlike extraction noise
// they escape the retry loop and end the run.
var errPersist = errors.New("persist phase result")

// methodologyMilestone is the progress value that separates a failed run
// from a partial one.
const methodologyMilestone = 40

// Pipeline drives one paper through the ordered phase script. Progress is
// committed before each phase's network call so readers see forward motion,
// and a re-run skips every phase whose target is already persisted.
type Pipeline struct {
	store   Store
	llm     Completer
	indexer Indexer
}

func NewPipeline(store Store, completer Completer) *Pipeline {
	return &Pipeline{store: store, llm: completer}
}

// WithIndexer attaches an embedding sink invoked after a successful run.
func (p *Pipeline) WithIndexer(ix Indexer) *Pipeline {
	p.indexer = ix
	return p
}

type runContext struct {
	paper       *models.Paper
	opts        Options
	content     string
	core        string
	methodology *models.Methodology
}

type phase struct {
	name     string
	begin    int
	target   int
	required bool
	enabled  bool
	run      func(ctx context.Context, rc *runContext, input string) error
}

// Analyze runs the full script against one paper and returns the terminal
// record. A completed paper returns immediately without any LLM calls.
func (p *Pipeline) Analyze(ctx context.Context, paperID uuid.UUID, opts Options) (*models.Paper, error) {
	pp, err := p.store.Get(ctx, paperID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(pp.Content) == "" {
		return nil, fmt.Errorf("paper %s: %w", paperID, paper.ErrEmptyContent)
	}
	if pp.AnalysisStatus == models.AnalysisCompleted && pp.AnalysisProgress >= 100 {
		return pp, nil
	}
	if pp.AnalysisStatus == models.AnalysisPartial {
		// Partial is terminal: defaults were already substituted, and the
		// skip rule would otherwise relabel the degraded record as complete
		// without a single new extraction.
		return pp, nil
	}

	cur := pp.AnalysisProgress
	if cur < 0 {
		cur = 0
	}

	rc := &runContext{paper: pp, opts: opts, methodology: pp.Methodology}

	commit := func(progress int) error {
		if progress > cur {
			cur = progress
		}
		return p.store.SetProgress(ctx, paperID, cur, models.AnalysisProcessing)
	}

	if err := commit(5); err != nil {
		return nil, p.stop(ctx, paperID, cur, err)
	}

	// Deterministic content prep; recomputed cheaply on resume.
	rc.content = textprep.Normalize(textprep.SmartFilter(pp.Content))
	rc.core = rc.content
	if opts.ExtractCoreContent {
		rc.core = textprep.ExtractCore(rc.content, 30000)
	}
	if err := commit(10); err != nil {
		return nil, p.stop(ctx, paperID, cur, err)
	}

	degraded := false
	for _, ph := range p.phases(rc) {
		if !ph.enabled {
			continue
		}
		if ph.target <= pp.AnalysisProgress {
			// Persisted by an earlier run; resume past it.
			slog.Info("analysis phase skipped", "paper_id", paperID, "phase", ph.name, "progress", pp.AnalysisProgress)
			continue
		}

		if err := commit(ph.begin); err != nil {
			return nil, p.stop(ctx, paperID, cur, err)
		}
		slog.Info("analysis phase started", "paper_id", paperID, "phase", ph.name, "progress", ph.begin)

		phaseDegraded, err := p.runPhase(ctx, rc, ph)
		if err != nil {
			return nil, p.stop(ctx, paperID, cur, err)
		}
		if phaseDegraded {
			degraded = true
			slog.Warn("analysis phase degraded to default", "paper_id", paperID, "phase", ph.name)
		}

		if err := commit(ph.target); err != nil {
			return nil, p.stop(ctx, paperID, cur, err)
		}
	}

	if degraded {
		if err := p.store.MarkStopped(ctx, paperID, models.AnalysisPartial, "one or more phases fell back to default values"); err != nil {
			return nil, err
		}
	} else {
		if err := p.store.MarkCompleted(ctx, paperID); err != nil {
			return nil, err
		}
		if p.indexer != nil {
			head := rc.core
			if runes := []rune(head); len(runes) > 2000 {
				head = string(runes[:2000])
			}
			if err := p.indexer.IndexPaper(ctx, paperID, pp.OwnerID, head); err != nil {
				slog.Warn("paper embedding index failed", "paper_id", paperID, "error", err)
			}
		}
	}

	return p.store.Get(ctx, paperID)
}

// runPhase tries a phase up to three times, shrinking the input 25% per
// retry on required phases, and substitutes the phase default when every
// try fails. The bool reports that degradation.
func (p *Pipeline) runPhase(ctx context.Context, rc *runContext, ph phase) (bool, error) {
	input := rc.core
	const maxTries = 3

	var lastErr error
	for try := 1; try <= maxTries; try++ {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		err := ph.run(ctx, rc, input)
		if err == nil {
			return false, nil
		}
		if errors.Is(err, errPersist) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return false, err
		}
		lastErr = err
		slog.Warn("analysis phase attempt failed",
			"paper_id", rc.paper.ID, "phase", ph.name, "try", try, "error", err)

		if ph.required && try >= 1 {
			runes := []rune(input)
			input = string(runes[:len(runes)*3/4])
		}
	}

	slog.Warn("analysis phase exhausted retries, substituting default",
		"paper_id", rc.paper.ID, "phase", ph.name, "error", lastErr)
	if err := p.saveDefault(ctx, rc, ph.name); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pipeline) phases(rc *runContext) []phase {
	id := rc.paper.ID
	wrap := func(save func() error) error {
		if err := save(); err != nil {
			return fmt.Errorf("%w: %w", errPersist, err)
		}
		return nil
	}

	return []phase{
		{
			name: "sections", begin: 10, target: 15, enabled: true,
			run: func(ctx context.Context, rc *runContext, input string) error {
				sections, err := p.extractSections(ctx, rc, input)
				if err != nil {
					return err
				}
				return wrap(func() error { return p.store.SaveSections(ctx, id, sections) })
			},
		},
		{
			name: "methodology", begin: 20, target: methodologyMilestone, required: true, enabled: true,
			run: func(ctx context.Context, rc *runContext, input string) error {
				m, err := p.extractMethodology(ctx, rc, input)
				if err != nil {
					return err
				}
				rc.methodology = m
				return wrap(func() error { return p.store.SaveMethodology(ctx, id, m) })
			},
		},
		{
			name: "experiments", begin: 45, target: 50, enabled: rc.opts.AnalyzeExperiments,
			run: func(ctx context.Context, rc *runContext, input string) error {
				data, err := p.extractExperiments(ctx, rc, input)
				if err != nil {
					return err
				}
				return wrap(func() error { return p.store.SaveExperimentData(ctx, id, data) })
			},
		},
		{
			name: "key_findings", begin: 60, target: 65, required: true, enabled: true,
			run: func(ctx context.Context, rc *runContext, input string) error {
				findings, err := p.extractKeyFindings(ctx, rc, input)
				if err != nil {
					return err
				}
				return wrap(func() error { return p.store.SaveKeyFindings(ctx, id, findings) })
			},
		},
		{
			name: "weaknesses", begin: 70, target: 75, enabled: true,
			run: func(ctx context.Context, rc *runContext, input string) error {
				weaknesses, err := p.extractWeaknesses(ctx, rc, input)
				if err != nil {
					return err
				}
				return wrap(func() error { return p.store.SaveWeaknesses(ctx, id, weaknesses) })
			},
		},
		{
			name: "future_work", begin: 80, target: 85, enabled: true,
			run: func(ctx context.Context, rc *runContext, input string) error {
				fw, err := p.extractFutureWork(ctx, rc, input)
				if err != nil {
					return err
				}
				return wrap(func() error { return p.store.SaveFutureWork(ctx, id, fw) })
			},
		},
		{
			name: "code_implementation", begin: 88, target: 90, enabled: true,
			run: func(ctx context.Context, rc *runContext, input string) error {
				code, err := p.extractCode(ctx, rc, input)
				if err != nil {
					return err
				}
				return wrap(func() error { return p.store.SaveCodeImplementation(ctx, id, code) })
			},
		},
		{
			name: "references", begin: 93, target: 95, enabled: rc.opts.AnalyzeReferences,
			run: func(ctx context.Context, rc *runContext, input string) error {
				refs, err := p.extractReferences(ctx, rc, input)
				if err != nil {
					return err
				}
				return wrap(func() error { return p.store.SaveReferences(ctx, id, refs) })
			},
		},
	}
}

func (p *Pipeline) saveDefault(ctx context.Context, rc *runContext, name string) error {
	id := rc.paper.ID
	var err error
	switch name {
	case "sections":
		err = p.store.SaveSections(ctx, id, defaultSections())
	case "methodology":
		m := defaultMethodology()
		rc.methodology = m
		err = p.store.SaveMethodology(ctx, id, m)
	case "experiments":
		err = p.store.SaveExperimentData(ctx, id, defaultExperimentData())
	case "key_findings":
		err = p.store.SaveKeyFindings(ctx, id, defaultKeyFindings())
	case "weaknesses":
		err = p.store.SaveWeaknesses(ctx, id, defaultWeaknesses())
	case "future_work":
		err = p.store.SaveFutureWork(ctx, id, defaultFutureWork())
	case "code_implementation":
		err = p.store.SaveCodeImplementation(ctx, id, defaultCodeImplementation(rc.paper.Title))
	case "references":
		err = p.store.SaveReferences(ctx, id, defaultReferences())
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errPersist, err)
	}
	return nil
}

// stop records the terminal status for an escaped error: partial once the
// methodology milestone is behind us, failed before it.
func (p *Pipeline) stop(ctx context.Context, paperID uuid.UUID, progress int, cause error) error {
	status := models.AnalysisFailed
	if progress >= methodologyMilestone {
		status = models.AnalysisPartial
	}
	diagnostic := cause.Error()
	if len(diagnostic) > 500 {
		diagnostic = diagnostic[:500]
	}
	// Best effort with a fresh context; the cause may be the ctx itself.
	if err := p.store.MarkStopped(context.WithoutCancel(ctx), paperID, status, diagnostic); err != nil {
		slog.Error("failed to record terminal analysis status", "paper_id", paperID, "error", err)
	}
	return fmt.Errorf("analysis stopped at %d%%: %w", progress, cause)
}
