package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"go.uber.org/zap"

	"agroguardian-api/internal/config"
	"agroguardian-api/internal/model"
	"agroguardian-api/internal/util"
)

var ErrDetectionNotFound = errors.New("detection not found")

// DetectionOutcome is a Detector's verdict on one image.
type DetectionOutcome struct {
	DiseaseName        string   `json:"disease"`
	Confidence         float64  `json:"confidence"`
	Remedy             string   `json:"remedy"`
	PreventiveMeasures []string `json:"preventive_measures"`
}

// Detector analyzes a crop image. The production model runs behind this
// interface so the service and its tests never depend on it directly.
type Detector interface {
	Detect(ctx context.Context, image []byte, cropType string) (*DetectionOutcome, error)
}

// DetectionService runs analyses, persists the results, and raises a
// notification when a disease is found.
type DetectionService struct {
	detector      Detector
	detections    model.DetectionRepository
	notifications model.NotificationRepository
	events        EventRecorder
	cfg           *config.Config
	logger        *zap.Logger
}

func NewDetectionService(
	detector Detector,
	detections model.DetectionRepository,
	notifications model.NotificationRepository,
	events EventRecorder,
	cfg *config.Config,
	logger *zap.Logger,
) *DetectionService {
	return &DetectionService{
		detector:      detector,
		detections:    detections,
		notifications: notifications,
		events:        events,
		cfg:           cfg,
		logger:        logger,
	}
}

// Analyze runs the detector on the image and stores the outcome under
// the user's history.
func (s *DetectionService) Analyze(ctx context.Context, userID, cropType, location, weather string, image []byte) (*model.Detection, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}
	if cropType == "" {
		return nil, fmt.Errorf("%w: crop type is required", ErrInvalidInput)
	}

	outcome, err := s.detector.Detect(ctx, image, cropType)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	det := &model.Detection{
		UserID:             userID,
		CropType:           util.SanitizeInput(cropType),
		DiseaseName:        outcome.DiseaseName,
		Confidence:         outcome.Confidence,
		ImageData:          image,
		Remedy:             outcome.Remedy,
		PreventiveMeasures: outcome.PreventiveMeasures,
		Location:           util.SanitizeInput(location),
		WeatherConditions:  weather,
		DetectedAt:         time.Now().UTC(),
	}

	if err := s.detections.CreateDetection(ctx, det); err != nil {
		return nil, fmt.Errorf("failed to store detection: %w", err)
	}

	if !det.Healthy() {
		n := &model.Notification{
			UserID:  userID,
			Title:   "Disease detected in your crop",
			Message: fmt.Sprintf("%s was detected in your %s with %.0f%% confidence. Suggested remedy: %s", det.DiseaseName, det.CropType, det.Confidence*100, det.Remedy),
			Type:    model.NotificationDiseaseAlert,
		}
		if err := s.notifications.CreateNotification(ctx, n); err != nil {
			util.Warn("Failed to create disease alert",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}

	s.events.Record(ctx, Event{
		Type:   EventDetection,
		UserID: userID,
		Extra: map[string]interface{}{
			"detection_id": det.DetectionID,
			"crop":         det.CropType,
			"disease":      det.DiseaseName,
			"confidence":   det.Confidence,
		},
	})

	return det, nil
}

func (s *DetectionService) History(ctx context.Context, userID string, limit int) ([]*model.Detection, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.detections.ListByUser(ctx, userID, limit)
}

// DetectionStats summarizes a user's detection history for the
// dashboard card in the app.
type DetectionStats struct {
	Total             int     `json:"total"`
	Healthy           int     `json:"healthy"`
	Diseased          int     `json:"diseased"`
	MostCommonDisease string  `json:"most_common_disease,omitempty"`
	AverageConfidence float64 `json:"average_confidence"`
}

func (s *DetectionService) Stats(ctx context.Context, userID string) (*DetectionStats, error) {
	dets, err := s.detections.ListByUser(ctx, userID, 500)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	stats := &DetectionStats{}
	diseaseCounts := make(map[string]int)
	var confidenceSum float64
	for _, det := range dets {
		stats.Total++
		confidenceSum += det.Confidence
		if det.Healthy() {
			stats.Healthy++
		} else {
			stats.Diseased++
			diseaseCounts[det.DiseaseName]++
		}
	}
	if stats.Total > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.Total)
	}
	best := 0
	for name, count := range diseaseCounts {
		if count > best {
			best = count
			stats.MostCommonDisease = name
		}
	}

	return stats, nil
}

func (s *DetectionService) Get(ctx context.Context, userID, detectionID string) (*model.Detection, error) {
	det, err := s.detections.GetDetection(ctx, userID, detectionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrDetectionNotFound
		}
		return nil, err
	}
	return det, nil
}

// Image returns the stored photo for a detection. Detections saved
// before photos were retained report not found.
func (s *DetectionService) Image(ctx context.Context, userID, detectionID string) ([]byte, error) {
	det, err := s.Get(ctx, userID, detectionID)
	if err != nil {
		return nil, err
	}
	if len(det.ImageData) == 0 {
		return nil, ErrDetectionNotFound
	}
	return det.ImageData, nil
}

// MockDetector stands in for the production model. The verdict is
// derived from a hash of the image so identical uploads get identical
// results, which the mobile team relies on when testing offline.
type MockDetector struct{}

type mockVerdict struct {
	disease    string
	confidence float64
	remedy     string
	measures   []string
}

var mockVerdicts = []mockVerdict{
	{
		disease:    model.HealthyCropDisease,
		confidence: 0.97,
		remedy:     "No action needed. Continue regular care.",
		measures:   []string{"Maintain irrigation schedule", "Monitor weekly for early signs"},
	},
	{
		disease:    "Leaf Blight",
		confidence: 0.89,
		remedy:     "Apply copper-based fungicide every 7 days.",
		measures:   []string{"Remove infected leaves", "Avoid overhead watering", "Improve field drainage"},
	},
	{
		disease:    "Powdery Mildew",
		confidence: 0.84,
		remedy:     "Spray sulfur-based fungicide at first sign.",
		measures:   []string{"Increase plant spacing", "Water at the base in the morning"},
	},
	{
		disease:    "Bacterial Wilt",
		confidence: 0.78,
		remedy:     "Remove and destroy affected plants immediately.",
		measures:   []string{"Rotate crops next season", "Disinfect tools between plants"},
	},
	{
		disease:    "Rust",
		confidence: 0.91,
		remedy:     "Apply triazole fungicide and repeat after 10 days.",
		measures:   []string{"Plant resistant varieties", "Clear crop debris after harvest"},
	},
}

func (MockDetector) Detect(ctx context.Context, image []byte, cropType string) (*DetectionOutcome, error) {
	h := fnv.New32a()
	h.Write(image)
	h.Write([]byte(cropType))
	v := mockVerdicts[int(h.Sum32())%len(mockVerdicts)]

	return &DetectionOutcome{
		DiseaseName:        v.disease,
		Confidence:         v.confidence,
		Remedy:             v.remedy,
		PreventiveMeasures: v.measures,
	}, nil
}
