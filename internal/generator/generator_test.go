package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaxinji/recagent/internal/config"
	"github.com/zhaxinji/recagent/internal/llm"
	"github.com/zhaxinji/recagent/internal/models"
	"github.com/zhaxinji/recagent/internal/paper"
	"github.com/zhaxinji/recagent/internal/session"
)

type recordedMessage struct {
	Role     string
	Content  string
	Metadata any
}

// memorySessions is an in-memory SessionStore recording everything the
// generator writes.
type memorySessions struct {
	mu       sync.Mutex
	sessions []*models.Session
	messages map[uuid.UUID][]recordedMessage
	results  map[uuid.UUID]any
}

func newMemorySessions() *memorySessions {
	return &memorySessions{
		messages: map[uuid.UUID][]recordedMessage{},
		results:  map[uuid.UUID]any{},
	}
}

func (m *memorySessions) Create(_ context.Context, in session.CreateInput) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := &models.Session{
		ID:          uuid.New(),
		OwnerID:     in.OwnerID,
		Title:       in.Title,
		SessionType: in.SessionType,
		PaperID:     in.PaperID,
		IsActive:    true,
	}
	m.sessions = append(m.sessions, sess)
	return sess, nil
}

func (m *memorySessions) AppendMessage(_ context.Context, sessionID uuid.UUID, role, content string, metadata any) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[sessionID] = append(m.messages[sessionID], recordedMessage{Role: role, Content: content, Metadata: metadata})
	return &models.Message{ID: uuid.New(), SessionID: sessionID, Role: role, Content: content}, nil
}

func (m *memorySessions) SetResult(_ context.Context, sessionID uuid.UUID, result any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[sessionID] = result
	return nil
}

func (m *memorySessions) lastMessage(sessionID uuid.UUID) recordedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[sessionID]
	if len(msgs) == 0 {
		return recordedMessage{}
	}
	return msgs[len(msgs)-1]
}

// scriptedLLM answers by system prompt so round order stays irrelevant to
// the script.
type scriptedLLM struct {
	mu       sync.Mutex
	requests []llm.GenerateRequest
	answers  map[string]string
	failures map[string]error
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{answers: map[string]string{}, failures: map[string]error{}}
}

func (s *scriptedLLM) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err, ok := s.failures[req.SystemPrompt]; ok {
		return "", err
	}
	return s.answers[req.SystemPrompt], nil
}

func (s *scriptedLLM) callsFor(system string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.SystemPrompt == system {
			n++
		}
	}
	return n
}

func testGeneratorConfig() config.GeneratorConfig {
	return config.GeneratorConfig{
		GapTimeoutSeconds:        600,
		InnovationTimeoutSeconds: 450,
		ExperimentTimeoutSeconds: 300,
	}
}

func gapScript() map[string]string {
	return map[string]string{
		gapFrameworkSystem: `{"summary": "Cold start remains open.", "researchGaps": [
			{"title": "Cross-domain cold start", "description": "New users lack signal.", "importance": "high", "challenges": "data sparsity"},
			{"title": "Evaluation realism", "description": "Offline metrics mislead.", "importance": "medium", "challenges": "no counterfactuals"}]}`,
		gapDeepenSystem: `{"description": "Deepened description.", "rootCauses": ["sparse feedback"],
			"evidence": [{"text": "Reported in multiple studies.", "reference": "Smith 2023"}]}`,
		gapDirectionsSystem: `{"potentialDirections": [{"direction": "Transfer pretraining", "approach": "Share encoders", "challenges": "domain shift", "impact": "large"}]}`,
		gapSynthesisSystem:  `{"enhancedSummary": "A richer synthesis.", "references": ["Smith 2023"]}`,
	}
}

func TestAnalyzeResearchGapsFullRun(t *testing.T) {
	sessions := newMemorySessions()
	mock := newScriptedLLM()
	mock.answers = gapScript()
	g := New(mock, sessions, testGeneratorConfig())

	in := GapInput{OwnerID: uuid.New(), Domain: "sequential recommendation", Perspective: "industry"}
	sess, result, err := g.AnalyzeResearchGaps(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.NotNil(t, result)

	assert.Equal(t, models.SessionResearchGap, sess.SessionType)
	assert.Equal(t, "sequential recommendation", result.Domain)
	require.Len(t, result.ResearchGaps, 2)

	gap := result.ResearchGaps[0]
	assert.Equal(t, "Cross-domain cold start", gap.Title)
	assert.Equal(t, "Deepened description.", gap.Description, "round 2 refines round 1 output")
	assert.Equal(t, []string{"sparse feedback"}, gap.RootCauses)
	require.Len(t, gap.Evidence, 1)
	assert.Equal(t, "Smith 2023", gap.Evidence[0].Reference)
	require.Len(t, gap.PotentialDirections, 1)
	assert.Equal(t, "Transfer pretraining", gap.PotentialDirections[0].Direction)

	assert.Equal(t, "A richer synthesis.", result.EnhancedSummary)
	assert.Equal(t, 4, result.Meta.Rounds)
	assert.False(t, result.Meta.GeneratedAt.IsZero())

	// One framework call, one deepen and one directions call per gap, one
	// synthesis call.
	assert.Equal(t, 1, mock.callsFor(gapFrameworkSystem))
	assert.Equal(t, 2, mock.callsFor(gapDeepenSystem))
	assert.Equal(t, 2, mock.callsFor(gapDirectionsSystem))
	assert.Equal(t, 1, mock.callsFor(gapSynthesisSystem))

	assert.Same(t, result, sessions.results[sess.ID])
	last := sessions.lastMessage(sess.ID)
	assert.Equal(t, models.RoleAssistant, last.Role)
	assert.Contains(t, last.Content, "2 research gaps")
}

func TestAnalyzeResearchGapsFrameworkFailure(t *testing.T) {
	sessions := newMemorySessions()
	mock := newScriptedLLM()
	mock.failures[gapFrameworkSystem] = errors.New("upstream 503")
	g := New(mock, sessions, testGeneratorConfig())

	sess, result, err := g.AnalyzeResearchGaps(context.Background(), GapInput{OwnerID: uuid.New(), Domain: "ctr prediction"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameworkRound)
	assert.Nil(t, result)
	require.NotNil(t, sess, "the session survives so the failure is inspectable")

	last := sessions.lastMessage(sess.ID)
	assert.Equal(t, models.RoleAssistant, last.Role)
	assert.Contains(t, last.Content, "could not complete")
	assert.NotContains(t, sessions.results, sess.ID, "no result is persisted for a failed run")
}

func TestAnalyzeResearchGapsNoGapsIsFrameworkFailure(t *testing.T) {
	sessions := newMemorySessions()
	mock := newScriptedLLM()
	mock.answers = gapScript()
	mock.answers[gapFrameworkSystem] = `{"summary": "nothing found", "researchGaps": []}`
	g := New(mock, sessions, testGeneratorConfig())

	_, _, err := g.AnalyzeResearchGaps(context.Background(), GapInput{OwnerID: uuid.New(), Domain: "ranking"})
	assert.ErrorIs(t, err, ErrFrameworkRound)
}

func TestAnalyzeResearchGapsItemFailureDegrades(t *testing.T) {
	sessions := newMemorySessions()
	mock := newScriptedLLM()
	mock.answers = gapScript()
	mock.failures[gapDeepenSystem] = errors.New("upstream 503")
	g := New(mock, sessions, testGeneratorConfig())

	_, result, err := g.AnalyzeResearchGaps(context.Background(), GapInput{OwnerID: uuid.New(), Domain: "sequential recommendation"})
	require.NoError(t, err, "item failures past round 1 do not fail the run")
	require.Len(t, result.ResearchGaps, 2)

	gap := result.ResearchGaps[0]
	assert.Equal(t, "New users lack signal.", gap.Description, "failed item keeps its round-1 data")
	assert.Empty(t, gap.Evidence)
	assert.NotNil(t, gap.Evidence, "normalized shape is never nil")
	require.Len(t, gap.PotentialDirections, 1, "later rounds still run for the item")
}

func TestGenerateInnovationIdeasNormalizesDegradedRounds(t *testing.T) {
	sessions := newMemorySessions()
	mock := newScriptedLLM()
	mock.answers[innovationCandidateSystem] = `{"innovations": [
		{"title": "Session-graph distillation", "core_concept": "Distill graphs into sequences.", "key_insight": "Graphs are redundant."},
		{"title": "Curriculum negatives", "core_concept": "Order negatives by difficulty."},
		{"title": "Latency-aware reranking"}]}`
	mock.failures[innovationDeepenSystem] = errors.New("upstream 503")
	mock.failures[innovationPositionSystem] = errors.New("upstream 503")
	mock.failures[innovationSummarySystem] = errors.New("upstream 503")
	g := New(mock, sessions, testGeneratorConfig())

	in := InnovationInput{OwnerID: uuid.New(), ResearchTopic: "efficient recommendation", InnovationType: "model"}
	sess, result, err := g.GenerateInnovationIdeas(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, result.Innovations, 3)

	inn := result.Innovations[2]
	assert.Equal(t, "Latency-aware reranking", inn.Title)
	assert.Equal(t, "Not described.", inn.CoreConcept)
	assert.Equal(t, "model", inn.InnovationType, "requested type backfills missing ones")
	assert.Equal(t, "Not elaborated.", inn.TechnicalDescription)
	assert.NotNil(t, inn.ImplementationSteps)
	assert.NotNil(t, inn.Differentiators)

	assert.Equal(t, "No summary produced.", result.FinalSummary)
	assert.NotEmpty(t, result.ImplementationStrategy)
	assert.Equal(t, 4, result.Meta.Rounds)

	last := sessions.lastMessage(sess.ID)
	assert.Contains(t, last.Content, "3 innovation ideas")
}

func experimentScript() map[string]string {
	return map[string]string{
		experimentObjectivesSystem: `{"objectives": ["Measure cold-start lift"], "research_questions": ["Does pretraining help?"],
			"hypotheses": ["Pretraining improves NDCG"], "methodology_overview": "Two-phase training."}`,
		experimentDataSystem: `{"datasets": [{"name": "ml-1m", "justification": "standard benchmark"}],
			"metrics": [{"name": "NDCG@10", "justification": "ranking quality"}]}`,
		experimentBaselineSystem: `{"baselines": [{"name": "SASRec", "description": "strong sequential baseline"}],
			"proposed_implementation": "Extend SASRec with a pretraining stage."}`,
		experimentAblationSystem: `{"ablation_studies": ["Remove pretraining"], "parameter_sensitivity": ["embedding size"]}`,
		experimentCodeSystem: `{"code_files": [{"file_name": "train.py", "purpose": "training loop", "code_content": "import torch"}],
			"codeSnippet": "import torch\n"}`,
	}
}

func TestGenerateExperimentDesignFullRun(t *testing.T) {
	sessions := newMemorySessions()
	mock := newScriptedLLM()
	mock.answers = experimentScript()
	g := New(mock, sessions, testGeneratorConfig())

	paperID := uuid.New()
	in := ExperimentInput{
		OwnerID:               uuid.New(),
		PaperID:               &paperID,
		ExperimentName:        "Pretraining for cold start",
		ExperimentDescription: "Test whether pretraining helps new users.",
	}
	sess, result, err := g.GenerateExperimentDesign(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, models.SessionExperimentDesign, sess.SessionType)
	require.NotNil(t, sess.PaperID)
	assert.Equal(t, paperID, *sess.PaperID)

	assert.Equal(t, []string{"Measure cold-start lift"}, result.Objectives)
	require.Len(t, result.Datasets, 1)
	assert.Equal(t, "ml-1m", result.Datasets[0].Name)
	require.Len(t, result.Metrics, 1)
	require.Len(t, result.Baselines, 1)
	assert.Equal(t, "SASRec", result.Baselines[0].Name)
	assert.Equal(t, []string{"Remove pretraining"}, result.AblationStudies)
	require.Len(t, result.CodeFiles, 1)
	assert.Equal(t, "train.py", result.CodeFiles[0].FileName)
	assert.Equal(t, "import torch\n", result.CodeSnippet)
	assert.Equal(t, 5, result.Meta.Rounds)

	last := sessions.lastMessage(sess.ID)
	assert.Contains(t, last.Content, "1 code files")
}

func TestGenerateExperimentDesignCodeRoundFallsBack(t *testing.T) {
	sessions := newMemorySessions()
	mock := newScriptedLLM()
	mock.answers = experimentScript()
	mock.failures[experimentCodeSystem] = errors.New("upstream 503")
	g := New(mock, sessions, testGeneratorConfig())

	// Framework and language default when omitted.
	_, result, err := g.GenerateExperimentDesign(context.Background(), ExperimentInput{
		OwnerID:        uuid.New(),
		ExperimentName: "Pretraining for cold start",
	})
	require.NoError(t, err)

	assert.NotNil(t, result.CodeFiles)
	assert.Empty(t, result.CodeFiles)
	assert.Contains(t, result.CodeSnippet, "Code generation was unavailable")
	assert.Contains(t, result.CodeSnippet, "pytorch")
}

func TestGenerateExperimentDesignFrameworkFailure(t *testing.T) {
	sessions := newMemorySessions()
	mock := newScriptedLLM()
	mock.failures[experimentObjectivesSystem] = errors.New("upstream 503")
	g := New(mock, sessions, testGeneratorConfig())

	sess, result, err := g.GenerateExperimentDesign(context.Background(), ExperimentInput{
		OwnerID:        uuid.New(),
		ExperimentName: "Anything",
	})
	assert.ErrorIs(t, err, ErrFrameworkRound)
	assert.Nil(t, result)
	require.NotNil(t, sess)
	assert.Equal(t, models.RoleAssistant, sessions.lastMessage(sess.ID).Role)
}

// fakePapers serves one owned paper and rejects everything else.
type fakePapers struct {
	paper *models.Paper
}

func (f *fakePapers) GetOwned(_ context.Context, id, ownerID uuid.UUID) (*models.Paper, error) {
	if f.paper != nil && id == f.paper.ID && ownerID == f.paper.OwnerID {
		return f.paper, nil
	}
	return nil, paper.ErrNotFound
}

func TestPaperContextFeedsFrameworkPrompt(t *testing.T) {
	ownerID := uuid.New()
	known := &models.Paper{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       "Contrastive Pretraining for Sequential Recommendation",
		Methodology: &models.Methodology{ModelArchitecture: "Two-tower transformer"},
		KeyFindings: []string{"Pretraining helps cold start."},
	}

	sessions := newMemorySessions()
	mock := newScriptedLLM()
	mock.answers = gapScript()
	g := New(mock, sessions, testGeneratorConfig()).WithPapers(&fakePapers{paper: known})

	_, _, err := g.AnalyzeResearchGaps(context.Background(), GapInput{
		OwnerID:  ownerID,
		Domain:   "sequential recommendation",
		PaperIDs: []uuid.UUID{known.ID, uuid.New()}, // second id is unknown and skipped
	})
	require.NoError(t, err)

	var framework string
	for _, req := range mock.requests {
		if req.SystemPrompt == gapFrameworkSystem {
			framework = req.Prompt
		}
	}
	assert.Contains(t, framework, known.Title)
	assert.Contains(t, framework, "Two-tower transformer")
	assert.True(t, strings.Contains(framework, "Pretraining helps cold start."))
}
