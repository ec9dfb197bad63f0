package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhaxinji/recagent/internal/config"
	"github.com/zhaxinji/recagent/internal/llm"
	"github.com/zhaxinji/recagent/internal/models"
	"github.com/zhaxinji/recagent/internal/session"
	"github.com/zhaxinji/recagent/pkg/jsonx"
)

// ErrFrameworkRound marks a failure of a flavor's first round. Later rounds
// degrade per item instead of failing the run, so this is the only round
// error a caller ever sees.
var ErrFrameworkRound = errors.New("framework round failed")

// Completer is the fabric surface the generator needs.
type Completer interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (string, error)
}

// SessionStore records each run as a session with messages and a final
// result document.
type SessionStore interface {
	Create(ctx context.Context, in session.CreateInput) (*models.Session, error)
	AppendMessage(ctx context.Context, sessionID uuid.UUID, role, content string, metadata any) (*models.Message, error)
	SetResult(ctx context.Context, sessionID uuid.UUID, result any) error
}

// PaperSource supplies analyzed papers referenced by a generation request.
type PaperSource interface {
	GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*models.Paper, error)
}

// Meta travels with every normalized result so callers can tell how the
// artifact was produced.
type Meta struct {
	ProcessingTime float64   `json:"processing_time"`
	Rounds         int       `json:"rounds"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Generator runs the three multi-round flavors. Rounds within a run are
// strictly sequential, including per-item fan-outs, so a single run never
// holds more than one fabric slot.
type Generator struct {
	llm      Completer
	sessions SessionStore
	papers   PaperSource
	cfg      config.GeneratorConfig
}

func New(completer Completer, sessions SessionStore, cfg config.GeneratorConfig) *Generator {
	return &Generator{llm: completer, sessions: sessions, cfg: cfg}
}

// WithPapers lets generation requests pull context from analyzed papers.
func (g *Generator) WithPapers(src PaperSource) *Generator {
	g.papers = src
	return g
}

// callJSON runs one round exchange and salvages a JSON object from the
// response.
func (g *Generator) callJSON(ctx context.Context, userID uuid.UUID, provider, system, prompt string, maxTokens int) (map[string]any, error) {
	text, err := g.llm.Generate(ctx, llm.GenerateRequest{
		SystemPrompt: system,
		Prompt:       prompt,
		MaxTokens:    maxTokens,
		Temperature:  llm.Temp(0.7),
		UserID:       userID,
		Provider:     provider,
	})
	if err != nil {
		return nil, err
	}
	obj, ok := jsonx.ExtractObject(text)
	if !ok {
		return nil, fmt.Errorf("no JSON object in round response")
	}
	return obj, nil
}

// recordFailure leaves an assistant message in the session explaining why
// the run stopped, then surfaces the framework error.
func (g *Generator) recordFailure(ctx context.Context, sessionID uuid.UUID, flavor string, cause error) error {
	msg := fmt.Sprintf("The %s run could not complete: %v. Please try again, or adjust the request.", flavor, cause)
	if _, err := g.sessions.AppendMessage(context.WithoutCancel(ctx), sessionID, models.RoleAssistant, msg, map[string]any{"error": true}); err != nil {
		slog.Error("failed to record generation failure", "session_id", sessionID, "error", err)
	}
	return fmt.Errorf("%w: %w", ErrFrameworkRound, cause)
}

// paperContext renders referenced papers into a prompt fragment. Missing or
// foreign papers are skipped rather than failing the run.
func (g *Generator) paperContext(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) string {
	if g.papers == nil || len(ids) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, id := range ids {
		p, err := g.papers.GetOwned(ctx, id, ownerID)
		if err != nil {
			slog.Warn("skipping paper context", "paper_id", id, "error", err)
			continue
		}
		sb.WriteString("Paper: " + p.Title + "\n")
		if p.Methodology != nil && p.Methodology.ModelArchitecture != "" {
			sb.WriteString("Methodology: " + p.Methodology.ModelArchitecture + "\n")
		}
		if len(p.KeyFindings) > 0 {
			sb.WriteString("Key findings: " + strings.Join(p.KeyFindings, "; ") + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Key-tolerant accessors mirroring the paper-analysis extractors; round
// outputs drift between naming conventions and are normalized here, at the
// boundary.

func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func pickStringOr(m map[string]any, fallback string, keys ...string) string {
	if s := pickString(m, keys...); s != "" {
		return s
	}
	return fallback
}

func pickStringSlice(m map[string]any, keys ...string) []string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch vv := v.(type) {
		case []any:
			var out []string
			for _, item := range vv {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				} else if obj, ok := item.(map[string]any); ok {
					if s := pickString(obj, "text", "description", "value", "name"); s != "" {
						out = append(out, s)
					}
				}
			}
			return out
		case string:
			if vv != "" {
				return []string{vv}
			}
		}
	}
	return nil
}

func pickObjectSlice(m map[string]any, keys ...string) []map[string]any {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		var out []map[string]any
		for _, item := range arr {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
