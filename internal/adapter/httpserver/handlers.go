package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/syla-platform/execution-service/internal/config"
	"github.com/syla-platform/execution-service/internal/domain"
	"github.com/syla-platform/execution-service/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg         config.Config
	Submit      usecase.SubmitService
	Lookup      usecase.LookupService
	RedisCheck  func(ctx context.Context) error
	DockerCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, submit usecase.SubmitService, lookup usecase.LookupService, redisCheck, dockerCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Submit: submit, Lookup: lookup, RedisCheck: redisCheck, DockerCheck: dockerCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// HealthHandler serves the legacy plain-text health probe.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// legacySubmitRequest is the body of POST /executions.
type legacySubmitRequest struct {
	Code           string            `json:"code" validate:"required"`
	Language       string            `json:"language" validate:"required"`
	Args           []string          `json:"args"`
	Environment    map[string]string `json:"environment"`
	TimeoutSeconds int               `json:"timeout_seconds"`
}

// SubmitLegacyHandler handles POST /executions: enqueue and return the
// pending record immediately.
func (s *Server) SubmitLegacyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body legacySubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
			return
		}
		if err := getValidator().Struct(body); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
			return
		}
		job, err := s.Submit.Submit(r.Context(), "", "", domain.ExecutionRequest{
			Code:           body.Code,
			Language:       body.Language,
			Args:           body.Args,
			Environment:    body.Environment,
			TimeoutSeconds: body.TimeoutSeconds,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPayload(job))
	}
}

// GetLegacyHandler handles GET /executions/{id}. A missing id answers the
// fixed body {"error": "Not found"}.
func (s *Server) GetLegacyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := s.Lookup.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, errorEnvelope{Error: "Not found"})
				return
			}
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPayload(job))
	}
}

// submitRequest is the body of POST /v1/executions.
type submitRequest struct {
	Code           string               `json:"code" validate:"required"`
	Language       string               `json:"language" validate:"required"`
	Owner          string               `json:"owner"`
	Workspace      string               `json:"workspace"`
	Args           []string             `json:"args"`
	Environment    map[string]string    `json:"environment"`
	TimeoutSeconds int                  `json:"timeout_seconds" validate:"gte=0,lte=300"`
	Resources      *domain.ResourceSpec `json:"resources"`
	Async          *bool                `json:"async"`
}

// SubmitHandler handles POST /v1/executions. With async=false the handler
// polls the record until terminal, bounded by the job timeout plus slack and
// the request deadline.
func (s *Server) SubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body submitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
			return
		}
		if err := getValidator().Struct(body); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
			return
		}
		req := domain.ExecutionRequest{
			Code:           body.Code,
			Language:       body.Language,
			Args:           body.Args,
			Environment:    body.Environment,
			TimeoutSeconds: body.TimeoutSeconds,
			Resources:      body.Resources,
		}
		job, err := s.Submit.Submit(r.Context(), body.Owner, body.Workspace, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if body.Async == nil || *body.Async {
			writeJSON(w, http.StatusOK, toPayload(job))
			return
		}

		wait := time.Duration(req.EffectiveTimeout())*time.Second + 5*time.Second
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		final, err := s.Submit.WaitTerminal(ctx, job.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPayload(final))
	}
}

// GetHandler handles GET /v1/executions/{id}.
func (s *Server) GetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := s.Lookup.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPayload(job))
	}
}

// CancelHandler handles POST /v1/executions/{id}/cancel. Cancelling a
// terminal record is a no-op reported with cancelled=false.
func (s *Server) CancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, cancelled, err := s.Lookup.Cancel(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":        job.ID,
			"status":    wireStatus(job.Status),
			"cancelled": cancelled,
		})
	}
}

// ListHandler handles GET /v1/executions with owner/workspace/status filters
// and pagination.
func (s *Server) ListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := usecase.ListFilter{
			Owner:     q.Get("owner"),
			Workspace: q.Get("workspace"),
		}
		if st := q.Get("status"); st != "" {
			filter.Status = internalStatus(st)
		}
		page := usecase.Page{
			Size:   atoiDefault(q.Get("page_size"), 0),
			Number: atoiDefault(q.Get("page_number"), 0),
		}
		jobs, res, err := s.Lookup.List(r.Context(), filter, page)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"executions": toPayloads(jobs),
			"pagination": res,
		})
	}
}

// HealthzHandler is the liveness probe.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler reports readiness of the store and the sandbox runtime.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		name string
		fn   func(ctx context.Context) error
	}
	return func(w http.ResponseWriter, r *http.Request) {
		checks := []check{
			{"redis", s.RedisCheck},
			{"docker", s.DockerCheck},
		}
		status := map[string]string{}
		ready := true
		for _, c := range checks {
			if c.fn == nil {
				status[c.name] = "skipped"
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := c.fn(ctx)
			cancel()
			if err != nil {
				LoggerFrom(r).Warn("readiness check failed", "check", c.name, "error", err)
				status[c.name] = err.Error()
				ready = false
				continue
			}
			status[c.name] = "ok"
		}
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
