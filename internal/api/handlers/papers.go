package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zhaxinji/recagent/internal/auth"
	"github.com/zhaxinji/recagent/internal/embedding"
	"github.com/zhaxinji/recagent/internal/models"
	"github.com/zhaxinji/recagent/internal/paper"
	"github.com/zhaxinji/recagent/internal/queue"
	"github.com/zhaxinji/recagent/internal/storage"
	"github.com/zhaxinji/recagent/internal/vectorstore"
)

type PaperHandler struct {
	papers      *paper.Service
	storage     storage.Storage
	queueClient *queue.Client
	embeddings  *embedding.Service
}

func NewPaperHandler(papers *paper.Service, store storage.Storage, qc *queue.Client, emb *embedding.Service) *PaperHandler {
	return &PaperHandler{papers: papers, storage: store, queueClient: qc, embeddings: emb}
}

type createPaperRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Create registers a paper from pasted text.
func (h *PaperHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "title and content required")
		return
	}

	p, err := h.papers.Create(r.Context(), &models.Paper{
		OwnerID: auth.UserIDFromContext(r.Context()),
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Upload registers a paper from a PDF or text file and schedules ingestion.
func (h *PaperHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}
	userID := auth.UserIDFromContext(r.Context())

	p, err := h.papers.Create(r.Context(), &models.Paper{
		OwnerID: userID,
		Title:   title,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType := header.Header.Get("Content-Type")
	path, err := h.storage.UploadPaper(r.Context(), userID, p.ID, file, contentType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "upload failed: "+err.Error())
		return
	}
	if err := h.papers.SetFilePath(r.Context(), p.ID, path); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	p.FilePath = path

	if err := h.queueClient.EnqueuePaperIngest(queue.PaperIngestPayload{
		PaperID:            p.ID.String(),
		UserID:             userID.String(),
		FileType:           contentType,
		ExtractCoreContent: true,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to schedule ingestion: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *PaperHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	papers, err := h.papers.List(r.Context(), auth.UserIDFromContext(r.Context()), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"papers": papers, "count": len(papers)})
}

func (h *PaperHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPaper(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Status returns just the analysis fields for cheap polling.
func (h *PaperHandler) Status(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPaper(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":                p.ID,
		"analysis_status":   p.AnalysisStatus,
		"analysis_progress": p.AnalysisProgress,
		"analysis_error":    p.AnalysisError,
	})
}

type analyzeRequest struct {
	Provider           string `json:"provider,omitempty"`
	ExtractCoreContent *bool  `json:"extract_core_content,omitempty"`
	AnalyzeExperiments bool   `json:"analyze_experiments"`
	AnalyzeReferences  bool   `json:"analyze_references"`
}

// Analyze schedules the pipeline; progress is polled via Status.
func (h *PaperHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPaper(w, r)
	if !ok {
		return
	}

	var req analyzeRequest
	if r.Body != nil {
		// An empty body means default options.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	extractCore := true
	if req.ExtractCoreContent != nil {
		extractCore = *req.ExtractCoreContent
	}

	if strings.TrimSpace(p.Content) == "" {
		writeError(w, http.StatusUnprocessableEntity, "paper has no content yet")
		return
	}

	if err := h.queueClient.EnqueuePaperAnalyze(queue.PaperAnalyzePayload{
		PaperID:            p.ID.String(),
		UserID:             p.OwnerID.String(),
		Provider:           req.Provider,
		ExtractCoreContent: extractCore,
		AnalyzeExperiments: req.AnalyzeExperiments,
		AnalyzeReferences:  req.AnalyzeReferences,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to schedule analysis: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":                p.ID,
		"analysis_status":   models.AnalysisProcessing,
		"analysis_progress": p.AnalysisProgress,
	})
}

// Similar lists the owner's papers closest to this one by embedding.
func (h *PaperHandler) Similar(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPaper(w, r)
	if !ok {
		return
	}
	topK, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if topK <= 0 {
		topK = 5
	}

	similar, err := h.embeddings.SimilarPapers(r.Context(), p.ID, p.OwnerID, topK)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNotIndexed) {
			writeError(w, http.StatusConflict, "paper is not indexed yet; run analysis first")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"similar": similar})
}

func (h *PaperHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPaper(w, r)
	if !ok {
		return
	}

	if p.FilePath != "" {
		if err := h.storage.DeletePaper(r.Context(), p.FilePath); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to delete file: "+err.Error())
			return
		}
	}
	if err := h.papers.Delete(r.Context(), p.ID, p.OwnerID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *PaperHandler) ownedPaper(w http.ResponseWriter, r *http.Request) (*models.Paper, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid paper ID")
		return nil, false
	}

	p, err := h.papers.GetOwned(r.Context(), id, auth.UserIDFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, paper.ErrNotFound):
			writeError(w, http.StatusNotFound, "paper not found")
		case errors.Is(err, paper.ErrNotAuthorized):
			writeError(w, http.StatusForbidden, "paper not owned by user")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return p, true
}
