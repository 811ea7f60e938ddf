package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/forgesyte/forgesyte/internal/model"
	"github.com/forgesyte/forgesyte/internal/pipeline"
	"github.com/forgesyte/forgesyte/internal/service"
	"github.com/forgesyte/forgesyte/internal/store"
	"github.com/forgesyte/forgesyte/internal/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	Submission service.Submission
	Query      service.Query
	Jobs       *store.SQLite
	Pipelines  *pipeline.Registry
	WS         *ws.Manager
	Log        *logrus.Logger
	MaxUpload  int64 // bytes
}

func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/jobs/{id}/result", s.handleGetResult)
		r.Get("/pipelines", s.handleListPipelines)
		r.Get("/metrics", s.handleMetrics)
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	maxUpload := s.MaxUpload
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	file, _, err := r.FormFile("video")
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("missing 'video' file: %w", err))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxUpload+1))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("read upload: %w", err))
		return
	}
	if int64(len(raw)) > maxUpload {
		writeErr(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", maxUpload))
		return
	}

	pipelineID := strings.TrimSpace(r.FormValue("pipeline_id"))
	id, err := s.Submission.Submit(ctx, pipelineID, raw)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}

	if s.WS != nil {
		s.WS.Broadcast()
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job_id": id})
}

func (s Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	job, err := s.Query.GetJob(ctx, id)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var status *model.JobStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, ok := model.ParseStatus(raw)
		if !ok {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid status: %s", raw))
			return
		}
		status = &parsed
	}

	limit := 25
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", raw))
			return
		}
		if value > 100 {
			value = 100
		}
		limit = value
	}

	jobs, err := s.Jobs.ListJobs(ctx, status, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	data, err := s.Query.GetResult(ctx, id)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Pipelines.List())
}

func (s Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.Jobs.Metrics(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.WithError(err).Error("websocket upgrade failed")
		return
	}
	s.WS.AddClient(conn)
}

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, model.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
