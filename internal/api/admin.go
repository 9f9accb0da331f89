package api

import (
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/nfrm/cary-services/internal/logstore"
	"github.com/nfrm/cary-services/internal/provider"
	"github.com/nfrm/cary-services/internal/query"
)

type adminChatRequest struct {
	Question  string `json:"question"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

type countRequest struct {
	Collection string            `json:"collection"`
	Filters    []logstore.Filter `json:"filters"`
}

const (
	defaultLogsLimit = 20
	maxLogsLimit     = 100
)

func (h *Handler) apiLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultLogsLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLogsLimit {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("limit must be an integer between 1 and %d", maxLogsLimit))
			return
		}
		limit = n
	}
	docs := h.query.RecentLogs(r.Context(), q.Get("api_name"), limit)
	if docs == nil {
		docs = []logstore.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) adminChat(w http.ResponseWriter, r *http.Request) {
	var req adminChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusUnprocessableEntity, "question is required")
		return
	}
	h.logger.Info("admin chat", zap.String("user_email", req.UserEmail))
	writeJSON(w, http.StatusOK, textResponse{Response: h.agent.Chat(r.Context(), req.Question)})
}

func validFilters(w http.ResponseWriter, filters []logstore.Filter) bool {
	for i, f := range filters {
		if err := f.Validate(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("filter %d: %v", i, err))
			return false
		}
	}
	return true
}

func (h *Handler) adminQuery(w http.ResponseWriter, r *http.Request) {
	var req query.QueryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validFilters(w, req.Filters) {
		return
	}
	docs := h.query.Query(r.Context(), req)
	if docs == nil {
		docs = []logstore.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) adminCount(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validFilters(w, req.Filters) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": h.query.Count(r.Context(), req.Collection, req.Filters)})
}

func (h *Handler) adminDistinct(w http.ResponseWriter, r *http.Request) {
	var req query.DistinctRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Field == "" {
		writeError(w, http.StatusUnprocessableEntity, "field is required")
		return
	}
	if !validFilters(w, req.Filters) {
		return
	}
	res := h.query.DistinctValues(r.Context(), req)
	if res.Values == nil {
		res.Values = []any{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) adminGroup(w http.ResponseWriter, r *http.Request) {
	var req query.GroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Field == "" {
		writeError(w, http.StatusUnprocessableEntity, "field is required")
		return
	}
	if !validFilters(w, req.Filters) {
		return
	}
	res := h.query.GroupAndCount(r.Context(), req)
	if res.Counts == nil {
		res.Counts = map[string]int{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		writeJSON(w, http.StatusOK, []provider.Model{})
		return
	}
	models := h.models.ListModels(r.Context())
	if models == nil {
		models = []provider.Model{}
	}
	writeJSON(w, http.StatusOK, models)
}
