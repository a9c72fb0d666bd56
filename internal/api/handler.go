package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/crew"
	"github.com/nidhogg/droid/internal/gateway"
	"github.com/nidhogg/droid/internal/modules"
	"github.com/nidhogg/droid/internal/orchestrator"
)

// maxTrackedResults bounds the task results kept for GET /api/tasks/{id}.
const maxTrackedResults = 1000

// ModelLister reports configured model names.
type ModelLister interface {
	Names() []string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sched    *orchestrator.Scheduler
	registry *orchestrator.Registry
	models   ModelLister
	gw       *gateway.Gateway
	metrics  http.Handler
	logger   *zap.Logger

	resultsMu sync.Mutex
	results   map[string]orchestrator.Result
	order     []string
}

// NewHandler creates a new API handler. models, gw and metrics may be nil.
func NewHandler(
	sched *orchestrator.Scheduler,
	registry *orchestrator.Registry,
	models ModelLister,
	gw *gateway.Gateway,
	metrics http.Handler,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sched:    sched,
		registry: registry,
		models:   models,
		gw:       gw,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "api")),
		results:  make(map[string]orchestrator.Result),
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/tasks/types", h.listTaskTypes)
		r.Post("/tasks", h.submitTask)
		r.Get("/tasks/{id}", h.getTask)
		r.Delete("/tasks/{id}", h.cancelTask)
		r.Get("/scheduler", h.schedulerStatus)

		r.Get("/crews", h.listCrews)
		r.Post("/crews/run", h.runCrew)

		r.Get("/models", h.listModels)
		r.Get("/platforms", h.listPlatforms)
	})

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
	return r
}

// TaskRequest is the body of POST /api/tasks.
type TaskRequest struct {
	Name     string         `json:"name"`
	Params   map[string]any `json:"params"`
	Priority *int           `json:"priority,omitempty"`
}

// CrewRequest is the body of POST /api/crews/run.
type CrewRequest struct {
	Definition any            `json:"definition,omitempty"`
	Crew       string         `json:"crew,omitempty"`
	Path       string         `json:"path,omitempty"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	Priority   *int           `json:"priority,omitempty"`
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "droid"})
}

func (h *Handler) listTaskTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Names())
}

func (h *Handler) submitTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	h.submit(w, r, req)
}

func (h *Handler) runCrew(w http.ResponseWriter, r *http.Request) {
	var req CrewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Definition == nil && req.Crew == "" && req.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "definition, crew or path is required"})
		return
	}
	if req.Crew != "" && !crew.IsPredefined(req.Crew) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown crew " + req.Crew})
		return
	}
	params := map[string]any{"inputs": req.Inputs}
	if req.Definition != nil {
		params["definition"] = req.Definition
	}
	if req.Crew != "" {
		params["crew"] = req.Crew
	}
	if req.Path != "" {
		params["path"] = req.Path
	}
	h.submit(w, r, TaskRequest{Name: modules.TaskRunCrew, Params: params, Priority: req.Priority})
}

// submit answers 200 with the result of an inline run, or 202 with the
// pending result of a queued one.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, req TaskRequest) {
	opts := []orchestrator.SubmitOption{orchestrator.WithCallback(h.track)}
	if req.Priority != nil {
		opts = append(opts, orchestrator.WithPriority(*req.Priority))
	}

	res, err := h.sched.Submit(r.Context(), req.Name, req.Params, opts...)
	switch {
	case errors.Is(err, orchestrator.ErrUnknownTaskType):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, res)
	case res.Status == orchestrator.TaskPending:
		h.trackPending(res)
		writeJSON(w, http.StatusAccepted, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.resultsMu.Lock()
	res, ok := h.results[id]
	h.resultsMu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) cancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.sched.Cancel(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not queued"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "id": id})
}

func (h *Handler) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running": h.sched.IsRunning(),
		"queued":  h.sched.Len(),
		"types":   h.registry.Names(),
	})
}

func (h *Handler) listCrews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, crew.PredefinedNames())
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, h.models.Names())
}

func (h *Handler) listPlatforms(w http.ResponseWriter, r *http.Request) {
	if h.gw == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, h.gw.Platforms())
}

// track stores a finished result. Inline runs are stored too.
func (h *Handler) track(res orchestrator.Result) {
	if res.TaskID == "" {
		return
	}
	h.resultsMu.Lock()
	defer h.resultsMu.Unlock()
	h.store(res)
}

// trackPending records a queued task unless its callback already ran.
func (h *Handler) trackPending(res orchestrator.Result) {
	h.resultsMu.Lock()
	defer h.resultsMu.Unlock()
	if _, done := h.results[res.TaskID]; done {
		return
	}
	h.store(res)
}

func (h *Handler) store(res orchestrator.Result) {
	if _, exists := h.results[res.TaskID]; !exists {
		h.order = append(h.order, res.TaskID)
	}
	h.results[res.TaskID] = res
	for len(h.order) > maxTrackedResults {
		delete(h.results, h.order[0])
		h.order = h.order[1:]
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
