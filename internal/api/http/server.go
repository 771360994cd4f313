package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	appExecution "github.com/Isydoria/lighton-workflow-generator/internal/application/execution"
	appWorkflow "github.com/Isydoria/lighton-workflow-generator/internal/application/workflow"
	"github.com/Isydoria/lighton-workflow-generator/internal/domain/execution"
	"github.com/Isydoria/lighton-workflow-generator/internal/domain/workflow"
	"github.com/Isydoria/lighton-workflow-generator/internal/paradigm"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	workflowSvc  *appWorkflow.Service
	executionSvc *appExecution.Service
	files        *paradigm.Client
	corsOrigins  []string
}

func NewServer(
	workflowSvc *appWorkflow.Service,
	executionSvc *appExecution.Service,
	files *paradigm.Client,
	corsOrigins []string,
) *Server {
	return &Server{
		workflowSvc:  workflowSvc,
		executionSvc: executionSvc,
		files:        files,
		corsOrigins:  corsOrigins,
	}
}

// Router builds the HTTP router. Workflow execution runs synchronously
// and may poll the document service for minutes, so the execute route is
// excluded from the request timeout applied to everything else.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/workflows", func(r chi.Router) {
				r.Post("/", s.createWorkflow)
				r.Get("/", s.listWorkflows)
				r.Get("/{workflowId}", s.getWorkflow)
				r.Delete("/{workflowId}", s.deleteWorkflow)
				r.Post("/{workflowId}/regenerate", s.regenerateWorkflow)
				r.Get("/{workflowId}/executions", s.listExecutions)
			})

			r.Get("/executions/{executionId}", s.getExecution)

			r.Route("/files", func(r chi.Router) {
				r.Post("/", s.uploadFile)
				r.Get("/{fileId}", s.getFile)
				r.Delete("/{fileId}", s.deleteFile)
				r.Get("/{fileId}/chunks", s.getFileChunks)
				r.Post("/{fileId}/ask", s.askFile)
			})
		})

		r.Post("/workflows/{workflowId}/execute", s.executeWorkflow)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps known error values to HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	var notFound *paradigm.NotFoundError
	switch {
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, execution.ErrNotFound), errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, appExecution.ErrNotReady):
		respondError(w, http.StatusConflict, "NOT_READY", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func parseFileIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "fileId"), 10, 64)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
