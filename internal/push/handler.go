package push

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/bissquit/pushgarden/internal/domain"
	"github.com/bissquit/pushgarden/internal/pkg/ctxlog"
	"github.com/bissquit/pushgarden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrPushDisabled, Status: http.StatusServiceUnavailable, Message: "push notifications disabled"},
	{Error: ErrNoSubscription, Status: http.StatusNotFound, Message: "no active push subscription"},
	{Error: ErrDeliveryFailed, Status: http.StatusBadGateway},
}

// Handler handles HTTP requests for push subscriptions.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new push handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterPublicRoutes registers routes that need no authentication.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/push/vapid-public-key", h.GetVAPIDPublicKey)
}

// RegisterRoutes registers push routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/push", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Post("/subscribe", h.Subscribe)
		r.Post("/unsubscribe", h.Unsubscribe)
		r.Post("/test", h.SendTest)
	})
}

// RegisterAdminRoutes registers push routes for administrators.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/push/broadcast", h.Broadcast)
}

// SubscribeRequest represents request body for registering a subscription.
type SubscribeRequest struct {
	Subscription SubscriptionPayload `json:"subscription"`
}

// SubscriptionPayload is the subscription object produced by the browser.
type SubscriptionPayload struct {
	Endpoint string `json:"endpoint" validate:"required"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
}

// UnsubscribeRequest represents request body for removing a subscription.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// SendRequest represents request body for test and broadcast sends.
type SendRequest struct {
	Title string         `json:"title" validate:"max=255"`
	Body  string         `json:"body" validate:"max=4096"`
	Data  map[string]any `json:"data"`
}

// GetVAPIDPublicKey handles GET /push/vapid-public-key.
func (h *Handler) GetVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.service.VAPIDPublicKey()
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"publicKey": key})
}

// GetStatus handles GET /push/status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	status, err := h.service.Status(r.Context(), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, status)
}

// Subscribe handles POST /push/subscribe.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	id, err := h.service.Subscribe(r.Context(), userID, domain.SubscriptionInput{
		Endpoint: req.Subscription.Endpoint,
		Keys: domain.SubscriptionKeys{
			P256dh: req.Subscription.Keys.P256dh,
			Auth:   req.Subscription.Keys.Auth,
		},
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, map[string]any{"id": id, "success": true})
}

// Unsubscribe handles POST /push/unsubscribe.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if err := h.service.Unsubscribe(r.Context(), userID, req.Endpoint); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]bool{"success": true})
}

// SendTest handles POST /push/test.
func (h *Handler) SendTest(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())

	req, ok := h.decodeSendRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.SendTest(r.Context(), userID, req.Title, req.Body)
	if err != nil {
		if errors.Is(err, ErrDeliveryFailed) {
			ctxlog.FromContext(r.Context()).Warn("test push failed", "user_id", userID, "error", err)
		}
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// Broadcast handles POST /push/broadcast.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSendRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Broadcast(r.Context(), req.Title, req.Body, req.Data)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// decodeSendRequest accepts an empty body as a request with defaults.
func (h *Handler) decodeSendRequest(w http.ResponseWriter, r *http.Request) (SendRequest, bool) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return req, false
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return req, false
	}
	return req, true
}
