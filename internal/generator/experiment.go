package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhaxinji/recagent/internal/models"
	"github.com/zhaxinji/recagent/internal/session"
)

const experimentRounds = 5

type ExperimentInput struct {
	OwnerID               uuid.UUID
	PaperID               *uuid.UUID
	ExperimentName        string
	ExperimentDescription string
	Framework             string
	Language              string
	Provider              string
}

type DatasetPlan struct {
	Name          string `json:"name"`
	Justification string `json:"justification"`
}

type MetricPlan struct {
	Name          string `json:"name"`
	Justification string `json:"justification"`
}

type BaselinePlan struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CodeFile struct {
	FileName    string `json:"file_name"`
	Purpose     string `json:"purpose"`
	CodeContent string `json:"code_content"`
}

type ExperimentResult struct {
	ExperimentName         string         `json:"experiment_name"`
	Objectives             []string       `json:"objectives"`
	ResearchQuestions      []string       `json:"research_questions"`
	Hypotheses             []string       `json:"hypotheses"`
	MethodologyOverview    string         `json:"methodology_overview"`
	Datasets               []DatasetPlan  `json:"datasets"`
	Metrics                []MetricPlan   `json:"metrics"`
	Baselines              []BaselinePlan `json:"baselines"`
	ProposedImplementation string         `json:"proposed_implementation"`
	AblationStudies        []string       `json:"ablation_studies"`
	ParameterSensitivity   []string       `json:"parameter_sensitivity"`
	CodeFiles              []CodeFile     `json:"code_files"`
	CodeSnippet            string         `json:"codeSnippet"`
	Meta                   Meta           `json:"meta"`
}

// GenerateExperimentDesign runs the five-round experiment script:
// objectives, data and metrics, baselines and implementation, ablations,
// then code structure.
func (g *Generator) GenerateExperimentDesign(ctx context.Context, in ExperimentInput) (*models.Session, *ExperimentResult, error) {
	start := time.Now()
	in.Framework = orDefault(in.Framework, "pytorch")
	in.Language = orDefault(in.Language, "python")

	sess, err := g.sessions.Create(ctx, session.CreateInput{
		OwnerID:     in.OwnerID,
		Title:       "Experiment design: " + in.ExperimentName,
		SessionType: models.SessionExperimentDesign,
		Context:     in,
		PaperID:     in.PaperID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create experiment session: %w", err)
	}
	if _, err := g.sessions.AppendMessage(ctx, sess.ID, models.RoleUser,
		fmt.Sprintf("Design the experiment %q using %s/%s.", in.ExperimentName, in.Language, in.Framework), nil); err != nil {
		return nil, nil, fmt.Errorf("record experiment request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.cfg.ExperimentTimeoutSeconds)*time.Second)
	defer cancel()

	var paperCtx string
	if in.PaperID != nil {
		paperCtx = g.paperContext(ctx, in.OwnerID, []uuid.UUID{*in.PaperID})
	}

	obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, experimentObjectivesSystem,
		experimentObjectivesPrompt(in, paperCtx), 2000)
	if err != nil {
		return sess, nil, g.recordFailure(ctx, sess.ID, "experiment design", err)
	}

	result := &ExperimentResult{
		ExperimentName:      in.ExperimentName,
		Objectives:          pickStringSlice(obj, "objectives", "goals"),
		ResearchQuestions:   pickStringSlice(obj, "research_questions", "researchQuestions", "questions"),
		Hypotheses:          pickStringSlice(obj, "hypotheses", "hypothesis"),
		MethodologyOverview: pickString(obj, "methodology_overview", "methodologyOverview", "methodology"),
	}
	if len(result.Objectives) == 0 && result.MethodologyOverview == "" {
		return sess, nil, g.recordFailure(ctx, sess.ID, "experiment design",
			fmt.Errorf("framework round produced no objectives"))
	}

	// Round 2: datasets and metrics.
	if obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, experimentDataSystem,
		experimentDataPrompt(in, result), 1800); err != nil {
		if ctx.Err() != nil {
			return sess, nil, g.recordFailure(ctx, sess.ID, "experiment design", ctx.Err())
		}
		slog.Warn("experiment data round failed", "session_id", sess.ID, "error", err)
	} else {
		for _, d := range pickObjectSlice(obj, "datasets", "data_sets") {
			ds := DatasetPlan{Name: pickString(d, "name", "dataset"), Justification: pickString(d, "justification", "reason")}
			if ds.Name != "" {
				result.Datasets = append(result.Datasets, ds)
			}
		}
		for _, m := range pickObjectSlice(obj, "metrics", "evaluation_metrics") {
			mp := MetricPlan{Name: pickString(m, "name", "metric"), Justification: pickString(m, "justification", "reason")}
			if mp.Name != "" {
				result.Metrics = append(result.Metrics, mp)
			}
		}
	}

	// Round 3: baselines and the proposed method's implementation.
	if obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, experimentBaselineSystem,
		experimentBaselinePrompt(in, result), 2000); err != nil {
		if ctx.Err() != nil {
			return sess, nil, g.recordFailure(ctx, sess.ID, "experiment design", ctx.Err())
		}
		slog.Warn("experiment baseline round failed", "session_id", sess.ID, "error", err)
	} else {
		for _, b := range pickObjectSlice(obj, "baselines", "baseline_methods") {
			bp := BaselinePlan{Name: pickString(b, "name", "method"), Description: pickString(b, "description", "detail")}
			if bp.Name != "" {
				result.Baselines = append(result.Baselines, bp)
			}
		}
		result.ProposedImplementation = pickString(obj, "proposed_implementation", "proposedImplementation", "implementation_details")
	}

	// Round 4: ablations and sensitivity plans.
	if obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, experimentAblationSystem,
		experimentAblationPrompt(in, result), 1500); err != nil {
		if ctx.Err() != nil {
			return sess, nil, g.recordFailure(ctx, sess.ID, "experiment design", ctx.Err())
		}
		slog.Warn("experiment ablation round failed", "session_id", sess.ID, "error", err)
	} else {
		result.AblationStudies = pickStringSlice(obj, "ablation_studies", "ablationStudies", "ablations")
		result.ParameterSensitivity = pickStringSlice(obj, "parameter_sensitivity", "parameterSensitivity", "sensitivity")
	}

	// Round 5: code structure plus the focal snippet.
	if obj, err := g.callJSON(ctx, in.OwnerID, in.Provider, experimentCodeSystem,
		experimentCodePrompt(in, result), 4000); err != nil {
		if ctx.Err() != nil {
			return sess, nil, g.recordFailure(ctx, sess.ID, "experiment design", ctx.Err())
		}
		slog.Warn("experiment code round failed", "session_id", sess.ID, "error", err)
	} else {
		for _, f := range pickObjectSlice(obj, "code_files", "codeFiles", "files") {
			cf := CodeFile{
				FileName:    pickString(f, "file_name", "fileName", "name"),
				Purpose:     pickString(f, "purpose", "description"),
				CodeContent: pickString(f, "code_content", "codeContent", "content", "code"),
			}
			if cf.FileName != "" {
				result.CodeFiles = append(result.CodeFiles, cf)
			}
		}
		result.CodeSnippet = pickString(obj, "codeSnippet", "code_snippet", "snippet")
	}

	g.normalizeExperiment(result, in)
	result.Meta = Meta{
		ProcessingTime: time.Since(start).Seconds(),
		Rounds:         experimentRounds,
		GeneratedAt:    time.Now().UTC(),
	}

	if err := g.sessions.SetResult(ctx, sess.ID, result); err != nil {
		return sess, nil, fmt.Errorf("persist experiment result: %w", err)
	}
	if _, err := g.sessions.AppendMessage(ctx, sess.ID, models.RoleAssistant,
		fmt.Sprintf("Designed the experiment %q with %d datasets, %d baselines, and %d code files.",
			in.ExperimentName, len(result.Datasets), len(result.Baselines), len(result.CodeFiles)),
		map[string]any{"code_files": len(result.CodeFiles)}); err != nil {
		return sess, nil, fmt.Errorf("record experiment response: %w", err)
	}
	return sess, result, nil
}

func (g *Generator) normalizeExperiment(r *ExperimentResult, in ExperimentInput) {
	r.Objectives = orEmpty(r.Objectives)
	r.ResearchQuestions = orEmpty(r.ResearchQuestions)
	r.Hypotheses = orEmpty(r.Hypotheses)
	r.MethodologyOverview = orDefault(r.MethodologyOverview, "Not described.")
	r.ProposedImplementation = orDefault(r.ProposedImplementation, "Not elaborated.")
	r.AblationStudies = orEmpty(r.AblationStudies)
	r.ParameterSensitivity = orEmpty(r.ParameterSensitivity)
	if r.Datasets == nil {
		r.Datasets = []DatasetPlan{}
	}
	if r.Metrics == nil {
		r.Metrics = []MetricPlan{}
	}
	if r.Baselines == nil {
		r.Baselines = []BaselinePlan{}
	}
	if r.CodeFiles == nil {
		r.CodeFiles = []CodeFile{}
	}
	if strings.TrimSpace(r.CodeSnippet) == "" {
		r.CodeSnippet = fmt.Sprintf("# %s\n# Code generation was unavailable; implement per the design above using %s.\n",
			in.ExperimentName, in.Framework)
	}
}

const experimentObjectivesSystem = `You are an experimental-methodology expert for recommender systems. You respond with JSON only, never prose.`

func experimentObjectivesPrompt(in ExperimentInput, paperCtx string) string {
	prompt := fmt.Sprintf(`Define the objectives of the experiment %q.`, in.ExperimentName)
	if in.ExperimentDescription != "" {
		prompt += "\n\nDescription: " + in.ExperimentDescription
	}
	if paperCtx != "" {
		prompt += "\n\nThe experiment builds on:\n" + paperCtx
	}
	prompt += `

Return ONLY a JSON object of this exact shape:
{"objectives": ["<objective>"], "research_questions": ["<question>"],
 "hypotheses": ["<testable hypothesis>"], "methodology_overview": "<overall experimental approach>"}`
	return prompt
}

const experimentDataSystem = `You choose datasets and metrics for recommender-systems experiments. You respond with JSON only, never prose.`

func experimentDataPrompt(in ExperimentInput, r *ExperimentResult) string {
	return fmt.Sprintf(`Choose datasets and evaluation metrics for the experiment %q.

Methodology: %s

Return ONLY a JSON object of this exact shape:
{"datasets": [{"name": "<public dataset>", "justification": "<why it fits>"}],
 "metrics": [{"name": "<metric>", "justification": "<what it measures here>"}]}`,
		in.ExperimentName, r.MethodologyOverview)
}

const experimentBaselineSystem = `You select baselines and plan implementations for recommender-systems experiments. You respond with JSON only, never prose.`

func experimentBaselinePrompt(in ExperimentInput, r *ExperimentResult) string {
	return fmt.Sprintf(`Select baseline methods and describe the proposed method's implementation for the experiment %q (%s, %s).

Methodology: %s

Return ONLY a JSON object of this exact shape:
{"baselines": [{"name": "<baseline>", "description": "<what it is and why it is a fair comparison>"}],
 "proposed_implementation": "<implementation details of the proposed method>"}`,
		in.ExperimentName, in.Language, in.Framework, r.MethodologyOverview)
}

const experimentAblationSystem = `You design ablation and sensitivity studies. You respond with JSON only, never prose.`

func experimentAblationPrompt(in ExperimentInput, r *ExperimentResult) string {
	return fmt.Sprintf(`Plan ablation studies and parameter-sensitivity analyses for the experiment %q.

Proposed implementation: %s

Return ONLY a JSON object of this exact shape:
{"ablation_studies": ["<component to ablate and what it shows>"],
 "parameter_sensitivity": ["<parameter to sweep and the range>"]}`,
		in.ExperimentName, r.ProposedImplementation)
}

const experimentCodeSystem = `You are a senior machine-learning engineer who scaffolds clean experiment codebases. You respond with JSON only, never prose.`

func experimentCodePrompt(in ExperimentInput, r *ExperimentResult) string {
	datasets := make([]string, 0, len(r.Datasets))
	for _, d := range r.Datasets {
		datasets = append(datasets, d.Name)
	}
	return fmt.Sprintf(`Lay out the code structure for the experiment %q in %s using %s. Datasets: %v.

Return ONLY a JSON object of this exact shape:
{"code_files": [{"file_name": "<path>", "purpose": "<role in the experiment>", "code_content": "<full file content>"}],
 "codeSnippet": "<the core model or training-loop code>"}

Keep code_content complete and runnable. Include at minimum a model file, a data-loading file, a training script, and an evaluation script.`,
		in.ExperimentName, in.Language, in.Framework, datasets)
}
