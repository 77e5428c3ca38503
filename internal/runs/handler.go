package runs

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoiceflow/internal/workflow"
	"github.com/JaimeStill/invoiceflow/pkg/handlers"
	"github.com/JaimeStill/invoiceflow/pkg/middleware"
	"github.com/JaimeStill/invoiceflow/pkg/pagination"
	"github.com/JaimeStill/invoiceflow/pkg/routes"
)

// Handler provides HTTP endpoints for run operations.
type Handler struct {
	sys         System
	logger      *slog.Logger
	pagination  pagination.Config
	maxBodySize int64
}

// NewHandler creates a Handler with the given system, logger, pagination config, and body size limit.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
	maxBodySize int64,
) *Handler {
	return &Handler{
		sys:         sys,
		logger:      logger.With("handler", "runs"),
		pagination:  pagination,
		maxBodySize: maxBodySize,
	}
}

// Routes returns the route group definition for run endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/runs",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/{id}/decision", Handler: h.Decide},
			{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
			{Method: "GET", Pattern: "/{id}/checkpoints", Handler: h.Checkpoints},
		},
	}
}

// ReviewRoutes returns the checkpoint-keyed review endpoints. Review URLs
// written on paused runs point at these.
func (h *Handler) ReviewRoutes() routes.Group {
	return routes.Group{
		Prefix: "/review",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{checkpoint_id}", Handler: h.Review},
			{Method: "POST", Pattern: "/{checkpoint_id}/decision", Handler: h.DecideReview},
		},
	}
}

// Create submits an invoice payload and drives the run until it pauses or
// ends. A run that fails a stage is still created and reported with 201.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	payload, err := handlers.DecodeJSON[workflow.Payload](r, h.maxBodySize)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.Join(ErrInvalidRequest, err))
		return
	}

	created, err := h.sys.Create(r.Context(), payload)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, created)
}

// List returns a paginated list of run summaries filtered by the status,
// stage, and pause_kind query parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns the projection of a run by its UUID path parameter.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	p, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, p)
}

// Decide records a reviewer decision and resumes the run synchronously.
// The authenticated caller, when present, is recorded as the reviewer.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	cmd, ok := h.decideCommand(w, r)
	if !ok {
		return
	}

	ack, err := h.sys.Decide(r.Context(), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, ack)
}

// Review returns a checkpoint and the current projection of its run.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "checkpoint_id")
	if !ok {
		return
	}

	review, err := h.sys.Review(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, review)
}

// DecideReview records a decision against one checkpoint. It conflicts
// unless the checkpoint is the run's open one.
func (h *Handler) DecideReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "checkpoint_id")
	if !ok {
		return
	}

	cmd, ok := h.decideCommand(w, r)
	if !ok {
		return
	}

	ack, err := h.sys.DecideReview(r.Context(), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, ack)
}

// Cancel fails a non-terminal run. The body is optional.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	cmd, err := handlers.DecodeJSON[CancelCommand](r, h.maxBodySize)
	if err != nil && !errors.Is(err, io.EOF) {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.Join(ErrInvalidRequest, err))
		return
	}

	p, err := h.sys.Cancel(r.Context(), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, p)
}

// Checkpoints returns the review checkpoint history of a run.
func (h *Handler) Checkpoints(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	cps, err := h.sys.Checkpoints(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, cps)
}

// decideCommand decodes a decision body. The authenticated caller, when
// present, is recorded as the reviewer.
func (h *Handler) decideCommand(w http.ResponseWriter, r *http.Request) (DecideCommand, bool) {
	cmd, err := handlers.DecodeJSON[DecideCommand](r, h.maxBodySize)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.Join(ErrInvalidRequest, err))
		return cmd, false
	}
	if identity, ok := middleware.IdentityFrom(r.Context()); ok {
		cmd.Reviewer = identity.Name()
	}
	return cmd, true
}

func (h *Handler) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return h.pathID(w, r, "id")
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.Join(ErrInvalidRequest, err))
		return uuid.Nil, false
	}
	return id, true
}
