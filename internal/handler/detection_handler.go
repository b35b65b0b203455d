package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"agroguardian-api/internal/service"
)

// DetectionHandler exposes crop disease analysis and history.
type DetectionHandler struct {
	detectionService *service.DetectionService
	authService      *service.AuthService
	logger           *zap.Logger
}

func NewDetectionHandler(detectionService *service.DetectionService, authService *service.AuthService, logger *zap.Logger) *DetectionHandler {
	return &DetectionHandler{
		detectionService: detectionService,
		authService:      authService,
		logger:           logger,
	}
}

type analyzeRequest struct {
	Crop     string `json:"crop"`
	Image    string `json:"image"` // base64
	Location string `json:"location,omitempty"`
	Weather  string `json:"weather,omitempty"`
}

// RegisterRoutes registers the detection routes
func (h *DetectionHandler) RegisterRoutes(router chi.Router) {
	router.Route("/detections", func(r chi.Router) {
		r.Use(AuthMiddleware(h.authService))
		r.Post("/analyze", h.Analyze)
		r.Get("/", h.History)
		r.Get("/stats", h.Stats)
		r.Get("/{detectionID}", h.Get)
		r.Get("/{detectionID}/image", h.Image)
	})
}

func (h *DetectionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Image must be base64 encoded")
		return
	}

	det, err := h.detectionService.Analyze(r.Context(), user.UserID, req.Crop, req.Location, req.Weather, image)
	if err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(det, "Detection completed"))
}

func (h *DetectionHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	detections, err := h.detectionService.History(r.Context(), user.UserID, limit)
	if err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	resp := successResponse(detections, "Detection history retrieved")
	resp.Meta = &Meta{Total: len(detections)}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *DetectionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	stats, err := h.detectionService.Stats(r.Context(), user.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(stats, "Detection stats retrieved"))
}

func (h *DetectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	detectionID := chi.URLParam(r, "detectionID")
	if detectionID == "" {
		respondWithError(w, http.StatusBadRequest, "Detection ID is required")
		return
	}

	det, err := h.detectionService.Get(r.Context(), user.UserID, detectionID)
	if err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(det, "Detection retrieved"))
}

// Image streams the photo stored with a detection back to the app.
func (h *DetectionHandler) Image(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	detectionID := chi.URLParam(r, "detectionID")
	if detectionID == "" {
		respondWithError(w, http.StatusBadRequest, "Detection ID is required")
		return
	}

	image, err := h.detectionService.Image(r.Context(), user.UserID, detectionID)
	if err != nil {
		respondWithError(w, getStatusCode(err), clientMessage(err))
		return
	}

	if session, ok := SessionFromContext(r.Context()); ok {
		h.logger.Debug("Detection image served",
			zap.String("session_id", session.SessionID),
			zap.String("detection_id", detectionID))
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}
