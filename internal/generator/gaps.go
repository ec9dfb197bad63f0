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

const gapRounds = 4

type GapInput struct {
	OwnerID           uuid.UUID
	Domain            string
	Perspective       string
	PaperIDs          []uuid.UUID
	AdditionalContext string
	Provider          string
}

type GapEvidence struct {
	Text      string `json:"text"`
	Reference string `json:"reference"`
}

type GapDirection struct {
	Direction  string `json:"direction"`
	Approach   string `json:"approach"`
	Challenges string `json:"challenges"`
	Impact     string `json:"impact"`
}

type ResearchGap struct {
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	Importance          string         `json:"importance"`
	Challenges          string         `json:"challenges"`
	RootCauses          []string       `json:"rootCauses"`
	Evidence            []GapEvidence  `json:"evidence"`
	PotentialDirections []GapDirection `json:"potentialDirections"`
}

type GapResult struct {
	Domain          string        `json:"domain"`
	Summary         string        `json:"summary"`
	EnhancedSummary string        `json:"enhancedSummary"`
	ResearchGaps    []ResearchGap `json:"researchGaps"`
	References      []string      `json:"references"`
	Meta            Meta          `json:"meta"`
}

// AnalyzeResearchGaps runs the four-round gap script: framework, per-gap
// deepening, per-gap directions, then synthesis. Rounds past the first
// degrade per gap instead of failing the run.
func (g *Generator) AnalyzeResearchGaps(ctx context.Context, in GapInput) (*models.Session, *GapResult, error) {
	start := time.Now()

	sess, err := g.sessions.Create(ctx, session.CreateInput{
		OwnerID:     in.OwnerID,
		Title:       "Research gaps: " + in.Domain,
		SessionType: models.SessionResearchGap,
		Context:     in,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create gap session: %w", err)
	}
	if _, err := g.sessions.AppendMessage(ctx, sess.ID, models.RoleUser,
		fmt.Sprintf("Analyze research gaps in %q from the %s perspective.", in.Domain, orDefault(in.Perspective, "general")), nil); err != nil {
		return nil, nil, fmt.Errorf("record gap request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.cfg.GapTimeoutSeconds)*time.Second)
	defer cancel()

	papers := g.paperContext(ctx, in.OwnerID, in.PaperIDs)

	// Round 1: the framework round. Everything downstream hangs off it.
	obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, gapFrameworkSystem,
		gapFrameworkPrompt(in, papers), 2500)
	if err != nil {
		return sess, nil, g.recordFailure(ctx, sess.ID, "research gap analysis", err)
	}

	result := &GapResult{
		Domain:  in.Domain,
		Summary: pickStringOr(obj, "No summary produced.", "summary", "overview"),
	}
	for _, item := range pickObjectSlice(obj, "researchGaps", "research_gaps", "gaps") {
		gap := ResearchGap{
			Title:       pickString(item, "title", "name"),
			Description: pickString(item, "description", "detail"),
			Importance:  pickString(item, "importance", "significance"),
			Challenges:  pickString(item, "challenges", "difficulty"),
		}
		if gap.Title != "" {
			result.ResearchGaps = append(result.ResearchGaps, gap)
		}
	}
	if len(result.ResearchGaps) == 0 {
		return sess, nil, g.recordFailure(ctx, sess.ID, "research gap analysis",
			fmt.Errorf("framework round produced no gaps"))
	}

	// Round 2: deepen each gap sequentially. A failed item keeps its
	// round-1 data.
	for i := range result.ResearchGaps {
		gap := &result.ResearchGaps[i]
		obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, gapDeepenSystem,
			gapDeepenPrompt(in.Domain, gap), 1500)
		if err != nil {
			if ctx.Err() != nil {
				return sess, nil, g.recordFailure(ctx, sess.ID, "research gap analysis", ctx.Err())
			}
			slog.Warn("gap deepening round failed for item", "session_id", sess.ID, "gap", gap.Title, "error", err)
			continue
		}
		gap.Description = pickStringOr(obj, gap.Description, "description", "detail")
		gap.RootCauses = pickStringSlice(obj, "rootCauses", "root_causes", "causes")
		for _, ev := range pickObjectSlice(obj, "evidence", "supporting_evidence") {
			e := GapEvidence{
				Text:      pickString(ev, "text", "quote", "description"),
				Reference: pickString(ev, "reference", "source"),
			}
			if e.Text != "" {
				gap.Evidence = append(gap.Evidence, e)
			}
		}
	}

	// Round 3: potential directions per gap.
	for i := range result.ResearchGaps {
		gap := &result.ResearchGaps[i]
		obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, gapDirectionsSystem,
			gapDirectionsPrompt(in.Domain, gap), 1500)
		if err != nil {
			if ctx.Err() != nil {
				return sess, nil, g.recordFailure(ctx, sess.ID, "research gap analysis", ctx.Err())
			}
			slog.Warn("gap directions round failed for item", "session_id", sess.ID, "gap", gap.Title, "error", err)
			continue
		}
		for _, d := range pickObjectSlice(obj, "potentialDirections", "potential_directions", "directions") {
			dir := GapDirection{
				Direction:  pickString(d, "direction", "title"),
				Approach:   pickString(d, "approach", "method"),
				Challenges: pickString(d, "challenges", "difficulty"),
				Impact:     pickString(d, "impact", "value"),
			}
			if dir.Direction != "" {
				gap.PotentialDirections = append(gap.PotentialDirections, dir)
			}
		}
	}

	// Round 4: synthesis across all gaps.
	if obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, gapSynthesisSystem,
		gapSynthesisPrompt(in.Domain, result), 2000); err != nil {
		if ctx.Err() != nil {
			return sess, nil, g.recordFailure(ctx, sess.ID, "research gap analysis", ctx.Err())
		}
		slog.Warn("gap synthesis round failed", "session_id", sess.ID, "error", err)
	} else {
		result.EnhancedSummary = pickString(obj, "enhancedSummary", "enhanced_summary", "summary")
		result.References = pickStringSlice(obj, "references", "bibliography")
	}

	g.normalizeGaps(result)
	result.Meta = Meta{
		ProcessingTime: time.Since(start).Seconds(),
		Rounds:         gapRounds,
		GeneratedAt:    time.Now().UTC(),
	}

	if err := g.sessions.SetResult(ctx, sess.ID, result); err != nil {
		return sess, nil, fmt.Errorf("persist gap result: %w", err)
	}
	if _, err := g.sessions.AppendMessage(ctx, sess.ID, models.RoleAssistant,
		fmt.Sprintf("Identified %d research gaps in %s.", len(result.ResearchGaps), in.Domain),
		map[string]any{"gap_count": len(result.ResearchGaps)}); err != nil {
		return sess, nil, fmt.Errorf("record gap response: %w", err)
	}
	return sess, result, nil
}

// normalizeGaps fills every promised field so callers always receive the
// complete shape.
func (g *Generator) normalizeGaps(r *GapResult) {
	r.EnhancedSummary = orDefault(r.EnhancedSummary, r.Summary)
	r.References = orEmpty(r.References)
	for i := range r.ResearchGaps {
		gap := &r.ResearchGaps[i]
		gap.Description = orDefault(gap.Description, "No description available.")
		gap.Importance = orDefault(gap.Importance, "Not assessed.")
		gap.Challenges = orDefault(gap.Challenges, "Not assessed.")
		gap.RootCauses = orEmpty(gap.RootCauses)
		if gap.Evidence == nil {
			gap.Evidence = []GapEvidence{}
		}
		if gap.PotentialDirections == nil {
			gap.PotentialDirections = []GapDirection{}
		}
	}
}

const gapFrameworkSystem = `You are a senior recommender-systems researcher surveying open problems. You respond with JSON only, never prose.`

func gapFrameworkPrompt(in GapInput, papers string) string {
	prompt := fmt.Sprintf(`Identify 3-5 significant research gaps in the domain of %q`, in.Domain)
	if in.Perspective != "" {
		prompt += fmt.Sprintf(" from the perspective of %s", in.Perspective)
	}
	prompt += `.

Return ONLY a JSON object of this exact shape:
{"summary": "<overview of the state of the field>",
 "researchGaps": [{"title": "<short gap title>", "description": "<what is missing>",
  "importance": "<why it matters>", "challenges": "<why it is unsolved>"}]}`
	if papers != "" {
		prompt += "\n\nGround your analysis in these papers:\n" + papers
	}
	if in.AdditionalContext != "" {
		prompt += "\n\nAdditional context from the requester:\n" + in.AdditionalContext
	}
	return prompt
}

const gapDeepenSystem = `You are a recommender-systems researcher performing root-cause analysis. You respond with JSON only, never prose.`

func gapDeepenPrompt(domain string, gap *ResearchGap) string {
	return fmt.Sprintf(`Deepen the analysis of this research gap in %q.

Gap: %s
Description: %s

Return ONLY a JSON object of this exact shape:
{"title": "%s", "description": "<expanded description>",
 "rootCauses": ["<cause 1>", "<cause 2>"],
 "evidence": [{"text": "<observation supporting the gap>", "reference": "<paper or venue, if known>"}]}`,
		domain, gap.Title, gap.Description, gap.Title)
}

const gapDirectionsSystem = `You are a research strategist proposing concrete directions. You respond with JSON only, never prose.`

func gapDirectionsPrompt(domain string, gap *ResearchGap) string {
	return fmt.Sprintf(`Propose 2-3 promising research directions addressing this gap in %q.

Gap: %s
Description: %s

Return ONLY a JSON object of this exact shape:
{"potentialDirections": [{"direction": "<short title>", "approach": "<technical approach>",
 "challenges": "<main obstacles>", "impact": "<expected impact>"}]}`,
		domain, gap.Title, gap.Description)
}

const gapSynthesisSystem = `You synthesize research-gap analyses into publication-ready summaries. You respond with JSON only, never prose.`

func gapSynthesisPrompt(domain string, r *GapResult) string {
	titles := make([]string, 0, len(r.ResearchGaps))
	for _, gap := range r.ResearchGaps {
		titles = append(titles, gap.Title)
	}
	return fmt.Sprintf(`Synthesize the following research-gap analysis of %q into an enhanced summary, and consolidate the references cited across the gaps.

Gaps analyzed: %v
Original summary: %s

Return ONLY a JSON object of this exact shape:
{"enhancedSummary": "<2-4 paragraph synthesis>", "references": ["<reference string>"]}`,
		domain, titles, r.Summary)
}
