package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"zipenrich/internal/infrastructure"
	"zipenrich/internal/middleware"
	"zipenrich/internal/operations"
)

// StatusSource provides snapshots of pipeline runs
type StatusSource interface {
	LatestOperation() (operations.OperationSnapshot, error)
	GetOperation(id string) (operations.OperationSnapshot, error)
}

// StatusHandler renders the state of pipeline runs
type StatusHandler struct {
	source StatusSource
	logger *slog.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(source StatusSource, logger *slog.Logger) *StatusHandler {
	if source == nil {
		panic("status source cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusHandler{
		source: source,
		logger: logger.With(slog.String("handler", "status")),
	}
}

// Routes sets up the status routes
func (h *StatusHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Latest)
	r.Get("/{id}", h.ByID)
	return r
}

// Latest handles GET /status
func (h *StatusHandler) Latest(w http.ResponseWriter, r *http.Request) {
	snap, err := h.source.LatestOperation()
	h.respond(w, r, snap, err, "no pipeline run has started")
}

// ByID handles GET /status/{id}
func (h *StatusHandler) ByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.source.GetOperation(id)
	h.respond(w, r, snap, err, "operation "+id+" not found")
}

func (h *StatusHandler) respond(w http.ResponseWriter, r *http.Request, snap operations.OperationSnapshot, err error, notFound string) {
	ctx := r.Context()
	if err == nil {
		render.JSON(w, r, snap)
		return
	}

	traceID := infrastructure.GetTraceID(ctx)
	if errors.Is(err, operations.ErrOperationNotFound) {
		_ = render.Render(w, r, middleware.ProblemFromStatus(http.StatusNotFound, notFound, traceID))
		return
	}

	h.logger.ErrorContext(ctx, "failed to read operation status",
		slog.String("error", err.Error()))
	_ = render.Render(w, r, middleware.ProblemFromStatus(http.StatusInternalServerError, err.Error(), traceID))
}
