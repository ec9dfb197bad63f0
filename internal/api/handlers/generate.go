package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/zhaxinji/recagent/internal/auth"
	"github.com/zhaxinji/recagent/internal/generator"
	"github.com/zhaxinji/recagent/internal/models"
)

type GenerateHandler struct {
	gen *generator.Generator
}

func NewGenerateHandler(gen *generator.Generator) *GenerateHandler {
	return &GenerateHandler{gen: gen}
}

type researchGapsRequest struct {
	Domain            string   `json:"domain"`
	Perspective       string   `json:"perspective,omitempty"`
	PaperIDs          []string `json:"paper_ids,omitempty"`
	AdditionalContext string   `json:"additional_context,omitempty"`
	Provider          string   `json:"provider,omitempty"`
}

func (h *GenerateHandler) ResearchGaps(w http.ResponseWriter, r *http.Request) {
	var req researchGapsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Domain) == "" {
		writeError(w, http.StatusBadRequest, "domain required")
		return
	}
	paperIDs, err := parseUUIDs(req.PaperIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid paper ID")
		return
	}

	sess, result, err := h.gen.AnalyzeResearchGaps(r.Context(), generator.GapInput{
		OwnerID:           auth.UserIDFromContext(r.Context()),
		Domain:            req.Domain,
		Perspective:       req.Perspective,
		PaperIDs:          paperIDs,
		AdditionalContext: req.AdditionalContext,
		Provider:          req.Provider,
	})
	if err != nil {
		writeGeneratorError(w, sessIDOrNil(sess), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": sess.ID, "result": result})
}

type innovationRequest struct {
	ResearchTopic     string   `json:"research_topic"`
	PaperIDs          []string `json:"paper_ids,omitempty"`
	InnovationType    string   `json:"innovation_type,omitempty"`
	AdditionalContext string   `json:"additional_context,omitempty"`
	Provider          string   `json:"provider,omitempty"`
}

func (h *GenerateHandler) Innovations(w http.ResponseWriter, r *http.Request) {
	var req innovationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ResearchTopic) == "" {
		writeError(w, http.StatusBadRequest, "research_topic required")
		return
	}
	paperIDs, err := parseUUIDs(req.PaperIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid paper ID")
		return
	}

	sess, result, err := h.gen.GenerateInnovationIdeas(r.Context(), generator.InnovationInput{
		OwnerID:           auth.UserIDFromContext(r.Context()),
		ResearchTopic:     req.ResearchTopic,
		PaperIDs:          paperIDs,
		InnovationType:    req.InnovationType,
		AdditionalContext: req.AdditionalContext,
		Provider:          req.Provider,
	})
	if err != nil {
		writeGeneratorError(w, sessIDOrNil(sess), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": sess.ID, "result": result})
}

type experimentRequest struct {
	PaperID               string `json:"paper_id,omitempty"`
	ExperimentName        string `json:"experiment_name"`
	ExperimentDescription string `json:"experiment_description,omitempty"`
	Framework             string `json:"framework,omitempty"`
	Language              string `json:"language,omitempty"`
	Provider              string `json:"provider,omitempty"`
}

func (h *GenerateHandler) ExperimentDesign(w http.ResponseWriter, r *http.Request) {
	var req experimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ExperimentName) == "" {
		writeError(w, http.StatusBadRequest, "experiment_name required")
		return
	}

	var paperID *uuid.UUID
	if req.PaperID != "" {
		id, err := uuid.Parse(req.PaperID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid paper ID")
			return
		}
		paperID = &id
	}

	sess, result, err := h.gen.GenerateExperimentDesign(r.Context(), generator.ExperimentInput{
		OwnerID:               auth.UserIDFromContext(r.Context()),
		PaperID:               paperID,
		ExperimentName:        req.ExperimentName,
		ExperimentDescription: req.ExperimentDescription,
		Framework:             req.Framework,
		Language:              req.Language,
		Provider:              req.Provider,
	})
	if err != nil {
		writeGeneratorError(w, sessIDOrNil(sess), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": sess.ID, "result": result})
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func sessIDOrNil(sess *models.Session) *uuid.UUID {
	if sess == nil {
		return nil
	}
	id := sess.ID
	return &id
}

func writeGeneratorError(w http.ResponseWriter, sessionID *uuid.UUID, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, generator.ErrFrameworkRound) {
		status = http.StatusBadGateway
	}
	body := map[string]interface{}{"error": err.Error()}
	if sessionID != nil {
		body["session_id"] = *sessionID
	}
	writeJSON(w, status, body)
}
