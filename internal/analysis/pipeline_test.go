package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaxinji/recagent/internal/llm"
	"github.com/zhaxinji/recagent/internal/models"
	"github.com/zhaxinji/recagent/internal/paper"
)

// fakeStore keeps one paper in memory and mirrors the repository's
// terminal-status behavior.
type fakeStore struct {
	mu    sync.Mutex
	paper *models.Paper

	failSaveMethodology bool
}

func newFakeStore(p *models.Paper) *fakeStore {
	return &fakeStore{paper: p}
}

func (s *fakeStore) Get(_ context.Context, id uuid.UUID) (*models.Paper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.paper.ID {
		return nil, paper.ErrNotFound
	}
	cp := *s.paper
	return &cp, nil
}

func (s *fakeStore) SetProgress(_ context.Context, _ uuid.UUID, progress int, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paper.AnalysisProgress = progress
	s.paper.AnalysisStatus = status
	return nil
}

func (s *fakeStore) MarkCompleted(_ context.Context, _ uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paper.AnalysisStatus = models.AnalysisCompleted
	s.paper.AnalysisProgress = 100
	return nil
}

func (s *fakeStore) MarkStopped(_ context.Context, _ uuid.UUID, status, diagnostic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paper.AnalysisStatus = status
	s.paper.AnalysisError = diagnostic
	return nil
}

func (s *fakeStore) SaveSections(_ context.Context, _ uuid.UUID, v []models.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paper.Sections = v
	return nil
}

func (s *fakeStore) SaveMethodology(_ context.Context, _ uuid.UUID, v *models.Methodology) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaveMethodology {
		return errors.New("connection reset")
	}
	s.paper.Methodology = v
	return nil
}

func (s *fakeStore) SaveKeyFindings(_ context.Context, _ uuid.UUID, v []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paper.KeyFindings = v
	return nil
}

func (s *fakeStore) SaveWeaknesses(_ context.Context, _ uuid.UUID, v []models.Weakness) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paper.Weaknesses = v
	return nil
}

func (s *fakeStore) SaveFutureWork(_ context.Context, _ uuid.UUID, v []models.FutureWork) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paper.FutureWork = v
	return nil
}

func (s *fakeStore) SaveExperimentData(_ context.Context, _ uuid.UUID, v *models.ExperimentData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paper.ExperimentData = v
	return nil
}

func (s *fakeStore) SaveReferences(_ context.Context, _ uuid.UUID, v []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paper.References = v
	return nil
}

func (s *fakeStore) SaveCodeImplementation(_ context.Context, _ uuid.UUID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paper.CodeImplementation = code
	return nil
}

// fakeCompleter answers by system prompt so phase order does not matter.
type fakeCompleter struct {
	mu       sync.Mutex
	requests []llm.GenerateRequest
	answers  map[string]string
	failures map[string]error
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{
		answers: map[string]string{
			sectionsSystem:    `{"sections": [{"title": "Introduction", "level": 1, "summary": "Sets up the problem."}]}`,
			methodologySystem: `{"modelArchitecture": "Two-tower transformer", "algorithm": "Contrastive pretraining", "innovations": ["cross-domain negatives"], "keyComponents": [{"name": "item encoder", "description": "shared embedding table"}]}`,
			experimentsSystem: `{"datasets": ["ml-1m"], "baselines": ["SASRec"], "metrics": ["NDCG@10"], "results_summary": "Beats all baselines."}`,
			findingsSystem:    `{"key_findings": ["Pretraining helps cold start."]}`,
			weaknessesSystem:  `{"weaknesses": [{"type": "scalability", "description": "Quadratic attention cost."}]}`,
			futureWorkSystem:  `{"future_work": [{"direction": "Streaming variant", "description": "Adapt to online updates."}]}`,
			codeSystem:        "```python\nimport torch\n\nclass Model(torch.nn.Module):\n    pass\n```",
			referencesSystem:  `{"references": ["[1] Kang and McAuley, SASRec, 2018."]}`,
		},
		failures: map[string]error{},
	}
}

func (c *fakeCompleter) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if err, ok := c.failures[req.SystemPrompt]; ok {
		return "", err
	}
	return c.answers[req.SystemPrompt], nil
}

func (c *fakeCompleter) callsFor(system string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.requests {
		if r.SystemPrompt == system {
			n++
		}
	}
	return n
}

type fakeIndexer struct {
	mu    sync.Mutex
	calls []string
}

func (ix *fakeIndexer) IndexPaper(_ context.Context, paperID, _ uuid.UUID, content string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.calls = append(ix.calls, content)
	return nil
}

func testPaper() *models.Paper {
	return &models.Paper{
		ID:             uuid.New(),
		OwnerID:        uuid.New(),
		Title:          "Sequential Recommendation with Contrastive Pretraining",
		Content:        strings.Repeat("The model attends over the interaction history. ", 200),
		AnalysisStatus: models.AnalysisPending,
	}
}

func fullOptions() Options {
	return Options{
		UserID:             uuid.New(),
		ExtractCoreContent: true,
		AnalyzeExperiments: true,
		AnalyzeReferences:  true,
	}
}

func TestAnalyzeCompletesAllPhases(t *testing.T) {
	store := newFakeStore(testPaper())
	completer := newFakeCompleter()
	ix := &fakeIndexer{}
	p := NewPipeline(store, completer).WithIndexer(ix)

	out, err := p.Analyze(context.Background(), store.paper.ID, fullOptions())
	require.NoError(t, err)

	assert.Equal(t, models.AnalysisCompleted, out.AnalysisStatus)
	assert.Equal(t, 100, out.AnalysisProgress)
	assert.Len(t, out.Sections, 1)
	require.NotNil(t, out.Methodology)
	assert.Equal(t, "Two-tower transformer", out.Methodology.ModelArchitecture)
	assert.Equal(t, []string{"Pretraining helps cold start."}, out.KeyFindings)
	assert.Len(t, out.Weaknesses, 1)
	assert.Len(t, out.FutureWork, 1)
	require.NotNil(t, out.ExperimentData)
	assert.Equal(t, []string{"ml-1m"}, out.ExperimentData.Datasets)
	assert.Contains(t, out.CodeImplementation, "import torch")
	assert.Len(t, out.References, 1)

	require.Len(t, ix.calls, 1, "completed run must index the paper")
	assert.LessOrEqual(t, len([]rune(ix.calls[0])), 2000)
}

func TestAnalyzeEmptyContentRejected(t *testing.T) {
	pp := testPaper()
	pp.Content = "   \n  "
	store := newFakeStore(pp)
	p := NewPipeline(store, newFakeCompleter())

	_, err := p.Analyze(context.Background(), pp.ID, fullOptions())
	assert.ErrorIs(t, err, paper.ErrEmptyContent)
}

func TestAnalyzeCompletedPaperMakesNoCalls(t *testing.T) {
	pp := testPaper()
	pp.AnalysisStatus = models.AnalysisCompleted
	pp.AnalysisProgress = 100
	store := newFakeStore(pp)
	completer := newFakeCompleter()
	p := NewPipeline(store, completer)

	out, err := p.Analyze(context.Background(), pp.ID, fullOptions())
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisCompleted, out.AnalysisStatus)
	assert.Empty(t, completer.requests)
}

func TestAnalyzePartialPaperIsTerminal(t *testing.T) {
	pp := testPaper()
	pp.AnalysisStatus = models.AnalysisPartial
	pp.AnalysisProgress = 95
	pp.KeyFindings = defaultKeyFindings()
	store := newFakeStore(pp)
	completer := newFakeCompleter()
	ix := &fakeIndexer{}
	p := NewPipeline(store, completer).WithIndexer(ix)

	out, err := p.Analyze(context.Background(), pp.ID, fullOptions())
	require.NoError(t, err)

	assert.Equal(t, models.AnalysisPartial, out.AnalysisStatus, "a degraded record must not be relabeled complete")
	assert.Equal(t, 95, out.AnalysisProgress)
	assert.Empty(t, completer.requests)
	assert.Empty(t, ix.calls, "degraded content must never be indexed")
}

func TestAnalyzeResumeSkipsPersistedPhases(t *testing.T) {
	pp := testPaper()
	pp.AnalysisStatus = models.AnalysisProcessing
	pp.AnalysisProgress = 40
	pp.Sections = []models.Section{{Title: "Introduction", Level: 1}}
	pp.Methodology = &models.Methodology{
		ModelArchitecture: "Two-tower transformer",
		Algorithm:         "Contrastive pretraining",
		Innovations:       []string{"cross-domain negatives"},
		KeyComponents:     []models.KeyComponent{{Name: "item encoder"}},
	}
	store := newFakeStore(pp)
	completer := newFakeCompleter()
	p := NewPipeline(store, completer)

	opts := fullOptions()
	opts.AnalyzeExperiments = false
	opts.AnalyzeReferences = false

	out, err := p.Analyze(context.Background(), pp.ID, opts)
	require.NoError(t, err)

	assert.Equal(t, models.AnalysisCompleted, out.AnalysisStatus)
	assert.Zero(t, completer.callsFor(sectionsSystem), "persisted sections must not be re-extracted")
	assert.Zero(t, completer.callsFor(methodologySystem), "persisted methodology must not be re-extracted")
	assert.Equal(t, 1, completer.callsFor(findingsSystem))
	assert.Equal(t, 1, completer.callsFor(codeSystem))
}

func TestAnalyzeDegradedPhaseFallsBackToDefault(t *testing.T) {
	store := newFakeStore(testPaper())
	completer := newFakeCompleter()
	completer.answers[weaknessesSystem] = "I could not find any JSON to give you."
	p := NewPipeline(store, completer).WithIndexer(&fakeIndexer{})

	opts := fullOptions()
	opts.AnalyzeExperiments = false
	opts.AnalyzeReferences = false

	out, err := p.Analyze(context.Background(), store.paper.ID, opts)
	require.NoError(t, err)

	assert.Equal(t, models.AnalysisPartial, out.AnalysisStatus)
	assert.Equal(t, 3, completer.callsFor(weaknessesSystem), "a failing phase gets three tries")
	require.Len(t, out.Weaknesses, 1)
	assert.Equal(t, "other", out.Weaknesses[0].Type)

	// Later phases still ran with real output.
	assert.Len(t, out.FutureWork, 1)
	assert.Equal(t, "Streaming variant", out.FutureWork[0].Direction)
}

func TestAnalyzeDegradedRunSkipsIndexing(t *testing.T) {
	store := newFakeStore(testPaper())
	completer := newFakeCompleter()
	completer.answers[findingsSystem] = "no structure here"
	ix := &fakeIndexer{}
	p := NewPipeline(store, completer).WithIndexer(ix)

	out, err := p.Analyze(context.Background(), store.paper.ID, fullOptions())
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisPartial, out.AnalysisStatus)
	assert.Empty(t, ix.calls)
}

func TestAnalyzePersistFailureStopsEarly(t *testing.T) {
	store := newFakeStore(testPaper())
	store.failSaveMethodology = true
	completer := newFakeCompleter()
	p := NewPipeline(store, completer)

	_, err := p.Analyze(context.Background(), store.paper.ID, fullOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis stopped at 20%")

	assert.Equal(t, 1, completer.callsFor(methodologySystem), "store failures are not retried")
	assert.Equal(t, models.AnalysisFailed, store.paper.AnalysisStatus)
	assert.NotEmpty(t, store.paper.AnalysisError)
}

func TestAnalyzeCancelledContextStops(t *testing.T) {
	store := newFakeStore(testPaper())
	completer := newFakeCompleter()
	p := NewPipeline(store, completer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Analyze(ctx, store.paper.ID, fullOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
