package analysis

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zhaxinji/recagent/internal/llm"
	"github.com/zhaxinji/recagent/internal/models"
	"github.com/zhaxinji/recagent/internal/prompt"
	"github.com/zhaxinji/recagent/pkg/jsonx"
)

// ErrInvalidOutput marks model output that parsed but failed the phase
// schema; the pipeline retries on it with a shrunken input.
var ErrInvalidOutput = errors.New("invalid structured output")

var (
	experimentsHeadingRe = regexp.MustCompile(`(?im)^\s*(?:\d+[\.\s]*)?(?:experiments?|evaluation|empirical study)\b`)
	fencedCodeRe         = regexp.MustCompile("(?s)```(?:python|py)?\\s*(.*?)```")
)

func (p *Pipeline) extractSections(ctx context.Context, rc *runContext, input string) ([]models.Section, error) {
	obj, err := p.callJSON(ctx, rc, sectionsSystem, sectionsPrompt, input, 2000)
	if err != nil {
		return nil, err
	}
	raw := pickObjectSlice(obj, "sections", "Sections")
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no sections", ErrInvalidOutput)
	}
	var out []models.Section
	for _, item := range raw {
		sec := models.Section{
			Title:   pickString(item, "title", "heading", "name"),
			Level:   pickInt(item, 1, "level"),
			Summary: pickString(item, "summary", "description"),
		}
		if sec.Title == "" {
			continue
		}
		out = append(out, sec)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: sections missing titles", ErrInvalidOutput)
	}
	return out, nil
}

func (p *Pipeline) extractMethodology(ctx context.Context, rc *runContext, input string) (*models.Methodology, error) {
	obj, err := p.callJSON(ctx, rc, methodologySystem, methodologyPrompt, input, 2500)
	if err != nil {
		return nil, err
	}

	m := &models.Methodology{
		ModelArchitecture: pickString(obj, "modelArchitecture", "model_architecture", "architecture"),
		Algorithm:         pickString(obj, "algorithm", "algorithms"),
		Innovations:       pickStringSlice(obj, "innovations", "novelties"),
	}
	for _, item := range pickObjectSlice(obj, "keyComponents", "key_components", "components") {
		kc := models.KeyComponent{
			Name:        pickString(item, "name", "component"),
			Description: pickString(item, "description", "detail"),
		}
		if kc.Name != "" {
			m.KeyComponents = append(m.KeyComponents, kc)
		}
	}

	// All four keys must be present and shaped right.
	if m.ModelArchitecture == "" || m.Algorithm == "" || len(m.KeyComponents) == 0 || len(m.Innovations) == 0 {
		return nil, fmt.Errorf("%w: methodology incomplete", ErrInvalidOutput)
	}
	return m, nil
}

func (p *Pipeline) extractExperiments(ctx context.Context, rc *runContext, _ string) (*models.ExperimentData, error) {
	obj, err := p.callJSON(ctx, rc, experimentsSystem, experimentsPrompt, experimentsSlice(rc.content), 2000)
	if err != nil {
		return nil, err
	}
	data := &models.ExperimentData{
		Datasets:        pickStringSlice(obj, "datasets", "data_sets"),
		Baselines:       pickStringSlice(obj, "baselines", "baseline_methods"),
		Metrics:         pickStringSlice(obj, "metrics", "evaluation_metrics"),
		ResultsSummary:  pickString(obj, "results_summary", "resultsSummary", "results"),
		AblationStudies: pickString(obj, "ablation_studies", "ablationStudies", "ablations"),
	}
	if len(data.Datasets) == 0 && data.ResultsSummary == "" {
		return nil, fmt.Errorf("%w: experiment data empty", ErrInvalidOutput)
	}
	return data, nil
}

func (p *Pipeline) extractKeyFindings(ctx context.Context, rc *runContext, input string) ([]string, error) {
	obj, err := p.callJSON(ctx, rc, findingsSystem, findingsPrompt, input, 1500)
	if err != nil {
		return nil, err
	}
	findings := pickStringSlice(obj, "key_findings", "keyFindings", "findings")
	if len(findings) == 0 {
		return nil, fmt.Errorf("%w: no key findings", ErrInvalidOutput)
	}
	return findings, nil
}

func (p *Pipeline) extractWeaknesses(ctx context.Context, rc *runContext, _ string) ([]models.Weakness, error) {
	// Limitations usually live near the end of the paper.
	obj, err := p.callJSON(ctx, rc, weaknessesSystem, weaknessesPrompt, tailSlice(rc.content, 12000), 2000)
	if err != nil {
		return nil, err
	}
	var out []models.Weakness
	for _, item := range pickObjectSlice(obj, "weaknesses", "limitations") {
		w := models.Weakness{
			Type:        pickString(item, "type", "category"),
			Description: pickString(item, "description", "weakness"),
			Impact:      pickString(item, "impact"),
			Improvement: pickString(item, "improvement", "suggestion"),
		}
		if w.Description != "" {
			out = append(out, w)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no weaknesses", ErrInvalidOutput)
	}
	return out, nil
}

func (p *Pipeline) extractFutureWork(ctx context.Context, rc *runContext, _ string) ([]models.FutureWork, error) {
	obj, err := p.callJSON(ctx, rc, futureWorkSystem, futureWorkPrompt, tailSlice(rc.content, 12000), 1500)
	if err != nil {
		return nil, err
	}
	var out []models.FutureWork
	for _, item := range pickObjectSlice(obj, "future_work", "futureWork", "directions") {
		fw := models.FutureWork{
			Direction:   pickString(item, "direction", "title"),
			Description: pickString(item, "description", "detail"),
		}
		if fw.Direction != "" {
			out = append(out, fw)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no future work", ErrInvalidOutput)
	}
	return out, nil
}

func (p *Pipeline) extractCode(ctx context.Context, rc *runContext, _ string) (string, error) {
	methodology := "Not available."
	if rc.methodology != nil {
		methodology = describeMethodology(rc.methodology)
	}
	text, err := p.llm.Generate(ctx, llm.GenerateRequest{
		SystemPrompt: codeSystem,
		Prompt: prompt.MustRender(codePrompt, map[string]string{
			"methodology": methodology,
			"title":       rc.paper.Title,
		}),
		MaxTokens:   3000,
		Temperature: llm.Temp(0.3),
		UserID:      rc.opts.UserID,
		Provider:    rc.opts.Provider,
	})
	if err != nil {
		return "", err
	}

	code := text
	if m := fencedCodeRe.FindStringSubmatch(text); m != nil {
		code = strings.TrimSpace(m[1])
	}
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: empty code block", ErrInvalidOutput)
	}
	header := fmt.Sprintf("# Implementation sketch for: %s\n# Generated from the extracted methodology; review before running.\n\n", rc.paper.Title)
	return header + code + "\n", nil
}

func (p *Pipeline) extractReferences(ctx context.Context, rc *runContext, _ string) ([]string, error) {
	obj, err := p.callJSON(ctx, rc, referencesSystem, referencesPrompt, tailSlice(rc.content, 15000), 2000)
	if err != nil {
		return nil, err
	}
	refs := pickStringSlice(obj, "references", "bibliography")
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no references", ErrInvalidOutput)
	}
	return refs, nil
}

// callJSON renders a single-{{content}} template, runs it through the
// fabric, and salvages a JSON object from the response.
func (p *Pipeline) callJSON(ctx context.Context, rc *runContext, system, tmpl, content string, maxTokens int) (map[string]any, error) {
	text, err := p.llm.Generate(ctx, llm.GenerateRequest{
		SystemPrompt: system,
		Prompt:       prompt.MustRender(tmpl, map[string]string{"content": content}),
		MaxTokens:    maxTokens,
		Temperature:  llm.Temp(0.2),
		UserID:       rc.opts.UserID,
		Provider:     rc.opts.Provider,
	})
	if err != nil {
		return nil, err
	}
	obj, ok := jsonx.ExtractObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidOutput)
	}
	return obj, nil
}

// experimentsSlice starts at the experiments heading when one exists,
// otherwise falls back to the tail of the paper.
func experimentsSlice(content string) string {
	if loc := experimentsHeadingRe.FindStringIndex(content); loc != nil {
		region := content[loc[0]:]
		if len(region) > 14000 {
			region = region[:14000]
		}
		return region
	}
	return tailSlice(content, 10000)
}

func tailSlice(content string, n int) string {
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[len(runes)-n:])
}

func describeMethodology(m *models.Methodology) string {
	var sb strings.Builder
	sb.WriteString("Architecture: " + m.ModelArchitecture + "\n")
	for _, kc := range m.KeyComponents {
		sb.WriteString("- " + kc.Name + ": " + kc.Description + "\n")
	}
	sb.WriteString("Algorithm: " + m.Algorithm + "\n")
	if len(m.Innovations) > 0 {
		sb.WriteString("Innovations: " + strings.Join(m.Innovations, "; ") + "\n")
	}
	return sb.String()
}
