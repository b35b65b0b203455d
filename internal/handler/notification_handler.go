package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"agroguardian-api/internal/service"
)

// NotificationHandler exposes the notification feed and weekly reports.
type NotificationHandler struct {
	notificationService *service.NotificationService
	authService         *service.AuthService
	logger              *zap.Logger
}

func NewNotificationHandler(notificationService *service.NotificationService, authService *service.AuthService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		authService:         authService,
		logger:              logger,
	}
}

// RegisterRoutes registers the notification routes
func (h *NotificationHandler) RegisterRoutes(router chi.Router) {
	router.Route("/notifications", func(r chi.Router) {
		r.Use(AuthMiddleware(h.authService))
		r.Get("/", h.List)
		r.Get("/unread-count", h.UnreadCount)
		r.Patch("/{notificationID}/read", h.MarkRead)
		r.Patch("/read-all", h.MarkAllRead)
		r.Get("/reports", h.Reports)
	})
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	unreadOnly := r.URL.Query().Get("unread") == "true"

	notifications, err := h.notificationService.List(r.Context(), user.UserID, limit, unreadOnly)
	if err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	resp := successResponse(notifications, "Notifications retrieved")
	resp.Meta = &Meta{Total: len(notifications)}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	count, err := h.notificationService.UnreadCount(r.Context(), user.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]int{"unread": count}, "Unread count retrieved"))
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	notificationID := chi.URLParam(r, "notificationID")
	if notificationID == "" {
		respondWithError(w, http.StatusBadRequest, "Notification ID is required")
		return
	}

	if err := h.notificationService.MarkRead(r.Context(), user.UserID, notificationID); err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, Response{Success: true, Message: "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	if err := h.notificationService.MarkAllRead(r.Context(), user.UserID); err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, Response{Success: true, Message: "All notifications marked as read"})
}

func (h *NotificationHandler) Reports(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	reports, err := h.notificationService.Reports(r.Context(), user.UserID, limit)
	if err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	resp := successResponse(reports, "Weekly reports retrieved")
	resp.Meta = &Meta{Total: len(reports)}
	respondWithJSON(w, http.StatusOK, resp)
}
