package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhaxinji/recagent/internal/auth"
)

// KeyHandler manages per-user provider API keys. Key values are write-only;
// listings never return them.
type KeyHandler struct {
	keys *auth.KeyStore
}

func NewKeyHandler(keys *auth.KeyStore) *KeyHandler {
	return &KeyHandler{keys: keys}
}

var knownProviders = map[string]bool{"openai": true, "anthropic": true}

type setKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

func (h *KeyHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req setKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	if !knownProviders[req.Provider] {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		writeError(w, http.StatusBadRequest, "api_key required")
		return
	}

	if err := h.keys.Set(r.Context(), auth.UserIDFromContext(r.Context()), req.Provider, req.APIKey); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "provider": req.Provider})
}

func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": keys})
}

func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	if !knownProviders[provider] {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	if err := h.keys.Delete(r.Context(), auth.UserIDFromContext(r.Context()), provider); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "provider": provider})
}
