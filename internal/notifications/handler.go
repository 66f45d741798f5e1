package notifications

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/subtrackhq/subtrack/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrJobNotFound, Status: http.StatusNotFound, Message: "notification not found"},
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	dispatcher *Dispatcher
	deliverer  *Deliverer
	repo       Repository
	validator  *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(dispatcher *Dispatcher, deliverer *Deliverer, repo Repository) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		deliverer:  deliverer,
		repo:       repo,
		validator:  validator.New(),
	}
}

// RegisterRoutes registers user-facing notification routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me/notifications", h.ListRecent)
}

// RegisterInternalRoutes registers scheduler-facing routes (require cron secret).
func (h *Handler) RegisterInternalRoutes(r chi.Router) {
	r.Post("/internal/dispatch", h.RunDispatch)
	r.Post("/internal/deliver", h.DeliverOne)
}

// ListRecent handles GET /me/notifications.
func (h *Handler) ListRecent(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	jobs, err := h.repo.RecentForUser(r.Context(), userID, 20)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, jobs)
}

// RunDispatch handles POST /internal/dispatch.
func (h *Handler) RunDispatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.dispatcher.RunCycle(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// DeliverRequest represents request body for delivering a single notification.
type DeliverRequest struct {
	NotificationID string `json:"notification_id" validate:"required,uuid"`
}

// DeliverOne handles POST /internal/deliver.
func (h *Handler) DeliverOne(w http.ResponseWriter, r *http.Request) {
	var req DeliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	outcome := h.deliverer.Deliver(r.Context(), req.NotificationID)
	switch outcome.Status {
	case OutcomeNotFound:
		httputil.Error(w, http.StatusNotFound, "notification not found")
	case OutcomeFailed, OutcomeRetrying:
		// Retry state is already persisted; the caller still sees a failure.
		httputil.JSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": map[string]interface{}{
				"message": "delivery failed",
				"details": outcome,
			},
		})
	default:
		httputil.Success(w, http.StatusOK, outcome)
	}
}
