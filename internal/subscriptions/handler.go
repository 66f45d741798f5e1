package subscriptions

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/subtrackhq/subtrack/internal/domain"
	"github.com/subtrackhq/subtrack/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrSubscriptionNotFound, Status: http.StatusNotFound, Message: "subscription not found"},
	{Error: ErrInvalidBillingCycle, Status: http.StatusBadRequest},
	{Error: ErrInvalidNotificationMode, Status: http.StatusBadRequest},
	{Error: ErrInvalidReminderOffset, Status: http.StatusBadRequest},
	{Error: ErrInvalidTimezone, Status: http.StatusBadRequest},
	{Error: ErrInvalidPrice, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the subscriptions module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new subscriptions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers subscription routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/me/subscriptions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// SubscriptionRequest represents request body for creating or replacing a
// subscription.
type SubscriptionRequest struct {
	Name             string  `json:"name" validate:"required,max=200"`
	LogoURL          *string `json:"logo_url" validate:"omitempty,url"`
	ServiceURL       *string `json:"service_url" validate:"omitempty,url"`
	Category         *string `json:"category"`
	Price            string  `json:"price" validate:"required"`
	Currency         string  `json:"currency" validate:"required,iso4217"`
	BillingCycle     string  `json:"billing_cycle" validate:"required,oneof=weekly monthly quarterly annually"`
	NextPaymentDate  string  `json:"next_payment_date" validate:"required"`
	Timezone         string  `json:"timezone"`
	NotificationMode string  `json:"notification_mode" validate:"required,oneof=telegram email"`
	ReminderOffset   string  `json:"reminder_offset" validate:"required,oneof=none 15m 1h 1d 1w"`
	PaymentMethod    *string `json:"payment_method"`
	Notes            *string `json:"notes"`
}

func (h *Handler) parseInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return Input{}, false
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return Input{}, false
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "price must be a decimal string")
		return Input{}, false
	}

	date, err := time.Parse(time.DateOnly, req.NextPaymentDate)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "next_payment_date must be YYYY-MM-DD")
		return Input{}, false
	}

	return Input{
		Name:             req.Name,
		LogoURL:          req.LogoURL,
		ServiceURL:       req.ServiceURL,
		Category:         req.Category,
		Price:            price,
		Currency:         req.Currency,
		BillingCycle:     domain.BillingCycle(req.BillingCycle),
		NextPaymentDate:  date,
		Timezone:         req.Timezone,
		NotificationMode: domain.NotificationMode(req.NotificationMode),
		ReminderOffset:   domain.ReminderOffset(req.ReminderOffset),
		PaymentMethod:    req.PaymentMethod,
		Notes:            req.Notes,
	}, true
}

// List handles GET /me/subscriptions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	subs, err := h.service.List(r.Context(), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, subs)
}

// Create handles POST /me/subscriptions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	input, ok := h.parseInput(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, sub)
}

// Get handles GET /me/subscriptions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	id := chi.URLParam(r, "id")

	sub, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}

// Update handles PUT /me/subscriptions/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	id := chi.URLParam(r, "id")

	input, ok := h.parseInput(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Update(r.Context(), userID, id, input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sub)
}

// Delete handles DELETE /me/subscriptions/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
