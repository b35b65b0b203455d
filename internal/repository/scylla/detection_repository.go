package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"agroguardian-api/internal/model"
	"agroguardian-api/internal/util"
)

// DetectionRepository persists crop disease detections partitioned by
// user and clustered newest-first on detected_at.
type DetectionRepository struct {
	client *ScyllaClient
}

func NewDetectionRepository(client *ScyllaClient, logger *zap.Logger) *DetectionRepository {
	return &DetectionRepository{
		client: client,
	}
}

func (r *DetectionRepository) CreateDetection(ctx context.Context, det *model.Detection) error {
	if det.DetectionID == "" {
		det.DetectionID = uuid.New().String()
	}
	if det.DetectedAt.IsZero() {
		det.DetectedAt = time.Now().UTC()
	}

	query := r.client.Prepared.CreateDetection.Bind(
		det.UserID, det.DetectedAt, det.DetectionID, det.CropType,
		det.DiseaseName, det.Confidence, det.ImageData, det.Remedy,
		det.PreventiveMeasures, det.Location, det.WeatherConditions).
		WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to create detection",
			zap.String("user_id", det.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create detection: %w", err)
	}

	util.Info("Detection stored",
		zap.String("user_id", det.UserID),
		zap.String("detection_id", det.DetectionID),
		zap.String("disease", det.DiseaseName))

	return nil
}

func (r *DetectionRepository) GetDetection(ctx context.Context, userID, detectionID string) (*model.Detection, error) {
	det := &model.Detection{}

	query := r.client.Prepared.GetDetection.Bind(userID, detectionID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&det.UserID, &det.DetectedAt, &det.DetectionID, &det.CropType,
		&det.DiseaseName, &det.Confidence, &det.ImageData, &det.Remedy,
		&det.PreventiveMeasures, &det.Location, &det.WeatherConditions)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get detection: %w", err)
	}

	return det, nil
}

func (r *DetectionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Detection, error) {
	iter := r.client.Query(`
        SELECT user_id, detected_at, detection_id, crop_type, disease_name,
            confidence, image_data, remedy, preventive_measures, location,
            weather_conditions
        FROM disease_detections WHERE user_id = ? LIMIT ?`,
		userID, limit).WithContext(ctx).Iter()

	return r.collect(iter, "failed to list detections")
}

func (r *DetectionRepository) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]*model.Detection, error) {
	iter := r.client.Query(`
        SELECT user_id, detected_at, detection_id, crop_type, disease_name,
            confidence, image_data, remedy, preventive_measures, location,
            weather_conditions
        FROM disease_detections
        WHERE user_id = ? AND detected_at >= ? AND detected_at <= ?`,
		userID, from, to).WithContext(ctx).Iter()

	return r.collect(iter, "failed to list detections for window")
}

// ListSince scans across partitions for the periodic alert job. The
// result set is bounded by the sweep interval, not the table size.
func (r *DetectionRepository) ListSince(ctx context.Context, since time.Time) ([]*model.Detection, error) {
	iter := r.client.Query(`
        SELECT user_id, detected_at, detection_id, crop_type, disease_name,
            confidence, image_data, remedy, preventive_measures, location,
            weather_conditions
        FROM disease_detections WHERE detected_at >= ? ALLOW FILTERING`,
		since).WithContext(ctx).Iter()

	return r.collect(iter, "failed to scan recent detections")
}

func (r *DetectionRepository) collect(iter *gocql.Iter, errMsg string) ([]*model.Detection, error) {
	var out []*model.Detection

	for {
		det := &model.Detection{}
		if !iter.Scan(
			&det.UserID, &det.DetectedAt, &det.DetectionID, &det.CropType,
			&det.DiseaseName, &det.Confidence, &det.ImageData, &det.Remedy,
			&det.PreventiveMeasures, &det.Location, &det.WeatherConditions) {
			break
		}
		out = append(out, det)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}

	return out, nil
}

func (r *DetectionRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
