package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agroguardian-api/internal/model"
	"agroguardian-api/internal/util"
)

// WeeklyReportRepository persists generated weekly summaries, one row
// per user per week.
type WeeklyReportRepository struct {
	client *ScyllaClient
}

func NewWeeklyReportRepository(client *ScyllaClient, logger *zap.Logger) *WeeklyReportRepository {
	return &WeeklyReportRepository{
		client: client,
	}
}

func (r *WeeklyReportRepository) CreateReport(ctx context.Context, report *model.WeeklyReport) error {
	if report.ReportID == "" {
		report.ReportID = uuid.New().String()
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}

	query := r.client.Prepared.CreateReport.Bind(
		report.UserID, report.WeekStart, report.ReportID, report.WeekEnd,
		report.TotalDetections, report.HealthyCrops, report.DiseasedCrops,
		report.MostCommonDisease, report.ReportData, report.GeneratedAt).
		WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		util.Error("Failed to create weekly report",
			zap.String("user_id", report.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create weekly report: %w", err)
	}

	util.Info("Weekly report stored",
		zap.String("user_id", report.UserID),
		zap.Time("week_start", report.WeekStart))

	return nil
}

func (r *WeeklyReportRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.WeeklyReport, error) {
	iter := r.client.Query(`
        SELECT user_id, week_start, report_id, week_end, total_detections,
            healthy_crops, diseased_crops, most_common_disease, report_data,
            generated_at
        FROM weekly_reports WHERE user_id = ? LIMIT ?`,
		userID, limit).WithContext(ctx).Iter()

	var out []*model.WeeklyReport
	for {
		report := &model.WeeklyReport{}
		if !iter.Scan(&report.UserID, &report.WeekStart, &report.ReportID,
			&report.WeekEnd, &report.TotalDetections, &report.HealthyCrops,
			&report.DiseasedCrops, &report.MostCommonDisease,
			&report.ReportData, &report.GeneratedAt) {
			break
		}
		out = append(out, report)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list weekly reports: %w", err)
	}

	return out, nil
}

func (r *WeeklyReportRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
