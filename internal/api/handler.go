package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nfrm/cary-services/internal/conversation"
	"github.com/nfrm/cary-services/internal/logsink"
	"github.com/nfrm/cary-services/internal/logstore"
	"github.com/nfrm/cary-services/internal/provider"
	"github.com/nfrm/cary-services/internal/query"
)

// AdminAgent answers natural-language questions about the API logs.
type AdminAgent interface {
	Chat(ctx context.Context, question string) string
}

// ModelLister reports the models of the configured providers.
type ModelLister interface {
	ListModels(ctx context.Context) []provider.Model
}

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Query        *query.Service
	Agent        AdminAgent
	Conversation *conversation.Service
	Sink         logsink.Sink
	Models       ModelLister
	CORSOrigins  []string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	query  *query.Service
	agent  AdminAgent
	conv   *conversation.Service
	sink   logsink.Sink
	models ModelLister
	cors   []string
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Handler{
		query:  deps.Query,
		agent:  deps.Agent,
		conv:   deps.Conversation,
		sink:   deps.Sink,
		models: deps.Models,
		cors:   origins,
		logger: logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(Prometheus)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cors,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Post("/v1/ai-agents/generate_ai_response", h.generateAIResponse)

		r.Route("/v1/finance", func(r chi.Router) {
			r.Post("/advice", h.financialAdvice)
			r.Post("/document-review", h.documentReview)
			r.Post("/budget-plan", h.budgetPlan)
			r.Get("/popular-questions", h.popularQuestions)
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Get("/api-logs", h.apiLogs)
			r.Post("/chat", h.adminChat)
			r.Post("/query", h.adminQuery)
			r.Post("/count", h.adminCount)
			r.Post("/distinct", h.adminDistinct)
			r.Post("/group", h.adminGroup)
			r.Get("/models", h.listModels)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "cary"})
}

// logCall hands the call to the sink. It never blocks or fails the request.
func (h *Handler) logCall(r *http.Request, apiName, prompt, userName, userEmail string, requestData any) {
	if h.sink == nil {
		return
	}
	user := logstore.UserDetails{
		ClientHost: clientHost(r),
		UserName:   userName,
		UserEmail:  userEmail,
	}
	h.sink.LogAPICall(r.Context(), apiName, prompt, user, toMap(requestData))
}

func clientHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// toMap renders a request body as the schemaless map stored in request_data.
func toMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

var errEmptyBody = errors.New("request body is empty")

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
