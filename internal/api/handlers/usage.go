package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/zhaxinji/recagent/internal/audit"
	"github.com/zhaxinji/recagent/internal/auth"
)

type UsageHandler struct {
	audit *audit.Service
}

func NewUsageHandler(a *audit.Service) *UsageHandler {
	return &UsageHandler{audit: a}
}

func (h *UsageHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	logs, err := h.audit.GetUsageLogs(r.Context(), auth.UserIDFromContext(r.Context()), audit.UsageQuery{
		StartDate: parseDate(r.URL.Query().Get("start")),
		EndDate:   parseDate(r.URL.Query().Get("end")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs, "count": len(logs)})
}

func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.audit.GetUsageSummary(r.Context(), auth.UserIDFromContext(r.Context()),
		parseDate(r.URL.Query().Get("start")), parseDate(r.URL.Query().Get("end")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"summary": summary})
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
