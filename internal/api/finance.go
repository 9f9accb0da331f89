package api

import (
	"net/http"
	"strconv"

	"github.com/nfrm/cary-services/internal/conversation"
)

type generateRequest struct {
	Prompt    string `json:"prompt"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

type adviceRequest struct {
	Question  string              `json:"question"`
	History   []conversation.Turn `json:"history,omitempty"`
	UserName  string              `json:"user_name"`
	UserEmail string              `json:"user_email"`
}

type documentReviewRequest struct {
	Document  string              `json:"document"`
	Question  string              `json:"question"`
	History   []conversation.Turn `json:"history,omitempty"`
	UserName  string              `json:"user_name"`
	UserEmail string              `json:"user_email"`
}

type budgetPlanRequest struct {
	Message   string              `json:"message"`
	History   []conversation.Turn `json:"history,omitempty"`
	UserName  string              `json:"user_name"`
	UserEmail string              `json:"user_email"`
}

type textResponse struct {
	Response string `json:"response"`
}

const maxPopularQuestions = 10

func (h *Handler) generateAIResponse(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusUnprocessableEntity, "prompt is required")
		return
	}
	h.logCall(r, "generate_ai_response", req.Prompt, req.UserName, req.UserEmail, req)
	writeJSON(w, http.StatusOK, textResponse{Response: h.conv.Generate(r.Context(), req.Prompt)})
}

func (h *Handler) financialAdvice(w http.ResponseWriter, r *http.Request) {
	var req adviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusUnprocessableEntity, "question is required")
		return
	}
	h.logCall(r, "financial_advice", req.Question, req.UserName, req.UserEmail, req)
	writeJSON(w, http.StatusOK, textResponse{Response: h.conv.FinancialAdvice(r.Context(), req.Question, req.History)})
}

func (h *Handler) documentReview(w http.ResponseWriter, r *http.Request) {
	var req documentReviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Document == "" || req.Question == "" {
		writeError(w, http.StatusUnprocessableEntity, "document and question are required")
		return
	}
	h.logCall(r, "document_review", req.Question, req.UserName, req.UserEmail, req)
	writeJSON(w, http.StatusOK, textResponse{
		Response: h.conv.DocumentReview(r.Context(), req.Document, req.Question, req.History),
	})
}

func (h *Handler) budgetPlan(w http.ResponseWriter, r *http.Request) {
	var req budgetPlanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}
	h.logCall(r, "budget_plan", req.Message, req.UserName, req.UserEmail, req)
	writeJSON(w, http.StatusOK, textResponse{Response: h.conv.BudgetPlan(r.Context(), req.History, req.Message)})
}

func (h *Handler) popularQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := conversation.Kind(q.Get("type"))
	if kind == "" {
		kind = conversation.Personal
	}
	if kind != conversation.Personal && kind != conversation.Business {
		writeError(w, http.StatusUnprocessableEntity, "type must be Personal or Business")
		return
	}
	count := 5
	if raw := q.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPopularQuestions {
			writeError(w, http.StatusUnprocessableEntity, "count must be an integer between 1 and 10")
			return
		}
		count = n
	}
	h.logCall(r, "popular_questions", "", q.Get("user_name"), q.Get("user_email"),
		map[string]any{"type": string(kind), "count": count})
	writeJSON(w, http.StatusOK, map[string]any{
		"type":      kind,
		"questions": conversation.PopularQuestions(kind, count),
	})
}
