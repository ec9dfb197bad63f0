package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zhaxinji/recagent/internal/models"
	"github.com/zhaxinji/recagent/internal/session"
)

const innovationRounds = 4

type InnovationInput struct {
	OwnerID           uuid.UUID
	ResearchTopic     string
	PaperIDs          []uuid.UUID
	InnovationType    string
	AdditionalContext string
	Provider          string
}

type Innovation struct {
	Title                string   `json:"title"`
	CoreConcept          string   `json:"core_concept"`
	InnovationType       string   `json:"innovation_type"`
	KeyInsight           string   `json:"key_insight"`
	TechnicalDescription string   `json:"technical_description"`
	InnovationBasis      string   `json:"innovation_basis"`
	ExistingMethods      string   `json:"existing_methods"`
	FeasibilityAnalysis  string   `json:"feasibility_analysis"`
	ImplementationSteps  []string `json:"implementation_steps"`
	Differentiators      []string `json:"differentiators"`
	AcademicValue        string   `json:"academic_value"`
	TechnicalChallenges  []string `json:"technical_challenges"`
	SolutionApproaches   []string `json:"solution_approaches"`
	ExpectedPerformance  string   `json:"expected_performance"`
	ResearchImpact       string   `json:"research_impact"`
}

type InnovationResult struct {
	ResearchTopic          string       `json:"research_topic"`
	Innovations            []Innovation `json:"innovations"`
	FinalSummary           string       `json:"final_summary"`
	ImplementationStrategy string       `json:"implementation_strategy"`
	References             []string     `json:"references"`
	Meta                   Meta         `json:"meta"`
}

// GenerateInnovationIdeas runs the four-round innovation script: candidate
// ideas, per-candidate technical deepening, per-candidate positioning, then
// an overall strategy round.
func (g *Generator) GenerateInnovationIdeas(ctx context.Context, in InnovationInput) (*models.Session, *InnovationResult, error) {
	start := time.Now()

	sess, err := g.sessions.Create(ctx, session.CreateInput{
		OwnerID:     in.OwnerID,
		Title:       "Innovation ideas: " + in.ResearchTopic,
		SessionType: models.SessionInnovation,
		Context:     in,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create innovation session: %w", err)
	}
	if _, err := g.sessions.AppendMessage(ctx, sess.ID, models.RoleUser,
		fmt.Sprintf("Generate innovation ideas for %q.", in.ResearchTopic), nil); err != nil {
		return nil, nil, fmt.Errorf("record innovation request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.cfg.InnovationTimeoutSeconds)*time.Second)
	defer cancel()

	papers := g.paperContext(ctx, in.OwnerID, in.PaperIDs)

	obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, innovationCandidateSystem,
		innovationCandidatePrompt(in, papers), 2500)
	if err != nil {
		return sess, nil, g.recordFailure(ctx, sess.ID, "innovation generation", err)
	}

	result := &InnovationResult{ResearchTopic: in.ResearchTopic}
	for _, item := range pickObjectSlice(obj, "innovations", "candidates", "ideas") {
		inn := Innovation{
			Title:          pickString(item, "title", "name"),
			CoreConcept:    pickString(item, "core_concept", "coreConcept", "concept"),
			InnovationType: pickStringOr(item, in.InnovationType, "innovation_type", "innovationType", "type"),
			KeyInsight:     pickString(item, "key_insight", "keyInsight", "insight"),
		}
		if inn.Title != "" {
			result.Innovations = append(result.Innovations, inn)
		}
	}
	if len(result.Innovations) == 0 {
		return sess, nil, g.recordFailure(ctx, sess.ID, "innovation generation",
			fmt.Errorf("framework round produced no candidates"))
	}

	// Round 2: technical deepening, one candidate at a time.
	for i := range result.Innovations {
		inn := &result.Innovations[i]
		obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, innovationDeepenSystem,
			innovationDeepenPrompt(in.ResearchTopic, inn), 2000)
		if err != nil {
			if ctx.Err() != nil {
				return sess, nil, g.recordFailure(ctx, sess.ID, "innovation generation", ctx.Err())
			}
			slog.Warn("innovation deepening failed for item", "session_id", sess.ID, "idea", inn.Title, "error", err)
			continue
		}
		inn.TechnicalDescription = pickString(obj, "technical_description", "technicalDescription")
		inn.InnovationBasis = pickString(obj, "innovation_basis", "innovationBasis", "basis")
		inn.ExistingMethods = pickString(obj, "existing_methods", "existingMethods")
		inn.FeasibilityAnalysis = pickString(obj, "feasibility_analysis", "feasibilityAnalysis", "feasibility")
		inn.ImplementationSteps = pickStringSlice(obj, "implementation_steps", "implementationSteps", "steps")
	}

	// Round 3: positioning and expected impact per candidate.
	for i := range result.Innovations {
		inn := &result.Innovations[i]
		obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, innovationPositionSystem,
			innovationPositionPrompt(in.ResearchTopic, inn), 2000)
		if err != nil {
			if ctx.Err() != nil {
				return sess, nil, g.recordFailure(ctx, sess.ID, "innovation generation", ctx.Err())
			}
			slog.Warn("innovation positioning failed for item", "session_id", sess.ID, "idea", inn.Title, "error", err)
			continue
		}
		inn.Differentiators = pickStringSlice(obj, "differentiators", "advantages")
		inn.AcademicValue = pickString(obj, "academic_value", "academicValue")
		inn.TechnicalChallenges = pickStringSlice(obj, "technical_challenges", "technicalChallenges", "challenges")
		inn.SolutionApproaches = pickStringSlice(obj, "solution_approaches", "solutionApproaches", "solutions")
		inn.ExpectedPerformance = pickString(obj, "expected_performance", "expectedPerformance")
		inn.ResearchImpact = pickString(obj, "research_impact", "researchImpact", "impact")
	}

	// Round 4: overall summary and strategy.
	if obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, innovationSummarySystem,
		innovationSummaryPrompt(result), 2000); err != nil {
		if ctx.Err() != nil {
			return sess, nil, g.recordFailure(ctx, sess.ID, "innovation generation", ctx.Err())
		}
		slog.Warn("innovation summary round failed", "session_id", sess.ID, "error", err)
	} else {
		result.FinalSummary = pickString(obj, "final_summary", "finalSummary", "summary")
		result.ImplementationStrategy = pickString(obj, "implementation_strategy", "implementationStrategy", "strategy")
		result.References = pickStringSlice(obj, "references", "bibliography")
	}

	g.normalizeInnovations(result)
	result.Meta = Meta{
		ProcessingTime: time.Since(start).Seconds(),
		Rounds:         innovationRounds,
		GeneratedAt:    time.Now().UTC(),
	}

	if err := g.sessions.SetResult(ctx, sess.ID, result); err != nil {
		return sess, nil, fmt.Errorf("persist innovation result: %w", err)
	}
	if _, err := g.sessions.AppendMessage(ctx, sess.ID, models.RoleAssistant,
		fmt.Sprintf("Generated %d innovation ideas for %s.", len(result.Innovations), in.ResearchTopic),
		map[string]any{"idea_count": len(result.Innovations)}); err != nil {
		return sess, nil, fmt.Errorf("record innovation response: %w", err)
	}
	return sess, result, nil
}

func (g *Generator) normalizeInnovations(r *InnovationResult) {
	r.FinalSummary = orDefault(r.FinalSummary, "No summary produced.")
	r.ImplementationStrategy = orDefault(r.ImplementationStrategy, "Start with the most feasible idea and validate it on a public benchmark.")
	r.References = orEmpty(r.References)
	for i := range r.Innovations {
		inn := &r.Innovations[i]
		inn.CoreConcept = orDefault(inn.CoreConcept, "Not described.")
		inn.InnovationType = orDefault(inn.InnovationType, "method")
		inn.KeyInsight = orDefault(inn.KeyInsight, "Not described.")
		inn.TechnicalDescription = orDefault(inn.TechnicalDescription, "Not elaborated.")
		inn.InnovationBasis = orDefault(inn.InnovationBasis, "Not elaborated.")
		inn.ExistingMethods = orDefault(inn.ExistingMethods, "Not surveyed.")
		inn.FeasibilityAnalysis = orDefault(inn.FeasibilityAnalysis, "Not assessed.")
		inn.AcademicValue = orDefault(inn.AcademicValue, "Not assessed.")
		inn.ExpectedPerformance = orDefault(inn.ExpectedPerformance, "Not estimated.")
		inn.ResearchImpact = orDefault(inn.ResearchImpact, "Not assessed.")
		inn.ImplementationSteps = orEmpty(inn.ImplementationSteps)
		inn.Differentiators = orEmpty(inn.Differentiators)
		inn.TechnicalChallenges = orEmpty(inn.TechnicalChallenges)
		inn.SolutionApproaches = orEmpty(inn.SolutionApproaches)
	}
}

const innovationCandidateSystem = `You are a creative but rigorous recommender-systems researcher proposing novel ideas. You respond with JSON only, never prose.`

func innovationCandidatePrompt(in InnovationInput, papers string) string {
	prompt := fmt.Sprintf(`Propose 3-5 candidate innovations for research on %q`, in.ResearchTopic)
	if in.InnovationType != "" {
		prompt += fmt.Sprintf(", focusing on %s innovations", in.InnovationType)
	}
	prompt += `.

Return ONLY a JSON object of this exact shape:
{"innovations": [{"title": "<idea title>", "core_concept": "<the idea in 2-3 sentences>",
 "innovation_type": "<model|training|data|evaluation|system>",
 "key_insight": "<the observation that makes it work>"}]}`
	if papers != "" {
		prompt += "\n\nBuild on these papers:\n" + papers
	}
	if in.AdditionalContext != "" {
		prompt += "\n\nAdditional context from the requester:\n" + in.AdditionalContext
	}
	return prompt
}

const innovationDeepenSystem = `You are a machine-learning engineer assessing research ideas for implementability. You respond with JSON only, never prose.`

func innovationDeepenPrompt(topic string, inn *Innovation) string {
	return fmt.Sprintf(`Deepen the technical design of this innovation for research on %q.

Idea: %s
Core concept: %s
Key insight: %s

Return ONLY a JSON object of this exact shape:
{"technical_description": "<detailed technical design>",
 "innovation_basis": "<theoretical or empirical grounding>",
 "existing_methods": "<closest existing methods and how they fall short>",
 "feasibility_analysis": "<what is easy, what is hard, what is risky>",
 "implementation_steps": ["<step 1>", "<step 2>"]}`,
		topic, inn.Title, inn.CoreConcept, inn.KeyInsight)
}

const innovationPositionSystem = `You are an area chair evaluating research contributions. You respond with JSON only, never prose.`

func innovationPositionPrompt(topic string, inn *Innovation) string {
	return fmt.Sprintf(`Position this innovation for research on %q against the field.

Idea: %s
Technical design: %s

Return ONLY a JSON object of this exact shape:
{"differentiators": ["<what sets it apart>"], "academic_value": "<contribution to the field>",
 "technical_challenges": ["<challenge>"], "solution_approaches": ["<approach per challenge>"],
 "expected_performance": "<expected gains and on what benchmarks>",
 "research_impact": "<who benefits and how>"}`,
		topic, inn.Title, inn.TechnicalDescription)
}

const innovationSummarySystem = `You synthesize research roadmaps. You respond with JSON only, never prose.`

func innovationSummaryPrompt(r *InnovationResult) string {
	titles := make([]string, 0, len(r.Innovations))
	for _, inn := range r.Innovations {
		titles = append(titles, inn.Title)
	}
	return fmt.Sprintf(`Summarize this set of innovation ideas for research on %q and lay out an implementation strategy ordering them by expected return on effort.

Ideas: %v

Return ONLY a JSON object of this exact shape:
{"final_summary": "<2-3 paragraph synthesis>",
 "implementation_strategy": "<recommended order and rationale>",
 "references": ["<relevant reference>"]}`,
		r.ResearchTopic, titles)
}
