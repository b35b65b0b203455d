package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"agroguardian-api/internal/config"
	"agroguardian-api/internal/model"
	"agroguardian-api/internal/util"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService serves the in-app notification feed and builds
// the periodic digests the scheduler hands to it.
type NotificationService struct {
	notifications model.NotificationRepository
	detections    model.DetectionRepository
	reports       model.WeeklyReportRepository
	cfg           *config.Config
	logger        *zap.Logger
}

func NewNotificationService(
	notifications model.NotificationRepository,
	detections model.DetectionRepository,
	reports model.WeeklyReportRepository,
	cfg *config.Config,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		detections:    detections,
		reports:       reports,
		cfg:           cfg,
		logger:        logger,
	}
}

func (s *NotificationService) List(ctx context.Context, userID string, limit int, unreadOnly bool) ([]*model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.notifications.ListByUser(ctx, userID, limit, unreadOnly)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	err := s.notifications.MarkRead(ctx, userID, notificationID)
	if errors.Is(err, model.ErrNotFound) {
		return ErrNotificationNotFound
	}
	return err
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	return s.notifications.MarkAllRead(ctx, userID)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notifications.CountUnread(ctx, userID)
}

func (s *NotificationService) Reports(ctx context.Context, userID string, limit int) ([]*model.WeeklyReport, error) {
	if limit <= 0 || limit > 52 {
		limit = 12
	}
	return s.reports.ListByUser(ctx, userID, limit)
}

// SendDailyAlerts raises a treatment reminder for every user whose last
// day of detections included a disease.
func (s *NotificationService) SendDailyAlerts(ctx context.Context) (int, error) {
	since := time.Now().UTC().Add(-24 * time.Hour)

	detections, err := s.detections.ListSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to scan recent detections: %w", err)
	}

	diseased := make(map[string][]*model.Detection)
	for _, det := range detections {
		if !det.Healthy() {
			diseased[det.UserID] = append(diseased[det.UserID], det)
		}
	}

	sent := 0
	for userID, dets := range diseased {
		n := &model.Notification{
			UserID:  userID,
			Title:   "Treatment reminder",
			Message: fmt.Sprintf("You have %d crop(s) needing treatment. Check your detection history for remedies.", len(dets)),
			Type:    model.NotificationTreatmentReminder,
		}
		if err := s.notifications.CreateNotification(ctx, n); err != nil {
			util.Warn("Failed to create daily alert",
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		sent++
	}

	util.Info("Daily alerts sent", zap.Int("count", sent))
	return sent, nil
}

// GenerateWeeklyReports summarizes the past week of detections per user
// and files both a report row and a notification pointing at it.
func (s *NotificationService) GenerateWeeklyReports(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	weekStart := now.Add(-7 * 24 * time.Hour)

	detections, err := s.detections.ListSince(ctx, weekStart)
	if err != nil {
		return 0, fmt.Errorf("failed to scan weekly detections: %w", err)
	}

	byUser := make(map[string][]*model.Detection)
	for _, det := range detections {
		byUser[det.UserID] = append(byUser[det.UserID], det)
	}

	generated := 0
	for userID, dets := range byUser {
		report := buildWeeklyReport(userID, weekStart, now, dets)

		if err := s.reports.CreateReport(ctx, report); err != nil {
			util.Warn("Failed to store weekly report",
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}

		n := &model.Notification{
			UserID:  userID,
			Title:   "Your weekly crop report is ready",
			Message: fmt.Sprintf("This week: %d detections, %d healthy, %d diseased.", report.TotalDetections, report.HealthyCrops, report.DiseasedCrops),
			Type:    model.NotificationWeeklyReport,
		}
		if err := s.notifications.CreateNotification(ctx, n); err != nil {
			util.Warn("Failed to notify weekly report",
				zap.String("user_id", userID),
				zap.Error(err))
		}

		generated++
	}

	util.Info("Weekly reports generated", zap.Int("count", generated))
	return generated, nil
}

func buildWeeklyReport(userID string, weekStart, weekEnd time.Time, dets []*model.Detection) *model.WeeklyReport {
	report := &model.WeeklyReport{
		UserID:          userID,
		WeekStart:       weekStart,
		WeekEnd:         weekEnd,
		TotalDetections: len(dets),
		GeneratedAt:     weekEnd,
	}

	diseaseCounts := make(map[string]int)
	for _, det := range dets {
		if det.Healthy() {
			report.HealthyCrops++
			continue
		}
		report.DiseasedCrops++
		diseaseCounts[det.DiseaseName]++
	}

	most := ""
	maxCount := 0
	for disease, count := range diseaseCounts {
		if count > maxCount {
			most = disease
			maxCount = count
		}
	}
	report.MostCommonDisease = most

	if data, err := json.Marshal(diseaseCounts); err == nil {
		report.ReportData = string(data)
	}

	return report
}
