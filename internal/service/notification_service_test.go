package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"agroguardian-api/internal/model"
	"agroguardian-api/internal/repository/memory"
	"agroguardian-api/internal/util"
)

type notificationFixture struct {
	svc           *NotificationService
	notifications *memory.NotificationRepo
	detections    *memory.DetectionRepo
	reports       *memory.WeeklyReportRepo
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	notifications := memory.NewNotificationRepo()
	detections := memory.NewDetectionRepo()
	reports := memory.NewWeeklyReportRepo()
	svc := NewNotificationService(notifications, detections, reports, testConfig(), util.Get())
	return &notificationFixture{
		svc:           svc,
		notifications: notifications,
		detections:    detections,
		reports:       reports,
	}
}

func (f *notificationFixture) seedDetection(t *testing.T, userID, disease string, at time.Time) {
	t.Helper()
	err := f.detections.CreateDetection(context.Background(), &model.Detection{
		UserID:      userID,
		CropType:    "tomato",
		DiseaseName: disease,
		Confidence:  0.9,
		DetectedAt:  at,
	})
	if err != nil {
		t.Fatalf("seed detection failed: %v", err)
	}
}

func TestListAndMarkRead(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := f.notifications.CreateNotification(ctx, &model.Notification{
			UserID:  "user-1",
			Title:   "Disease detected in your crop",
			Message: "test",
			Type:    model.NotificationDiseaseAlert,
		})
		if err != nil {
			t.Fatalf("CreateNotification returned error: %v", err)
		}
	}

	list, err := f.svc.List(ctx, "user-1", 0, false)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("list length = %d, want 3", len(list))
	}

	count, err := f.svc.UnreadCount(ctx, "user-1")
	if err != nil {
		t.Fatalf("UnreadCount returned error: %v", err)
	}
	if count != 3 {
		t.Errorf("unread = %d, want 3", count)
	}

	if err := f.svc.MarkRead(ctx, "user-1", list[0].NotificationID); err != nil {
		t.Fatalf("MarkRead returned error: %v", err)
	}
	unread, err := f.svc.List(ctx, "user-1", 0, true)
	if err != nil {
		t.Fatalf("List unread returned error: %v", err)
	}
	if len(unread) != 2 {
		t.Errorf("unread list length = %d, want 2", len(unread))
	}

	if err := f.svc.MarkAllRead(ctx, "user-1"); err != nil {
		t.Fatalf("MarkAllRead returned error: %v", err)
	}
	count, _ = f.svc.UnreadCount(ctx, "user-1")
	if count != 0 {
		t.Errorf("unread after MarkAllRead = %d, want 0", count)
	}
}

func TestMarkReadUnknownNotification(t *testing.T) {
	f := newNotificationFixture(t)

	err := f.svc.MarkRead(context.Background(), "user-1", "missing")
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("error = %v, want ErrNotificationNotFound", err)
	}
}

func TestSendDailyAlerts(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// user-1: diseased today. user-2: healthy today. user-3: diseased
	// but outside the window.
	f.seedDetection(t, "user-1", "Leaf Blight", now.Add(-time.Hour))
	f.seedDetection(t, "user-1", "Rust", now.Add(-2*time.Hour))
	f.seedDetection(t, "user-2", model.HealthyCropDisease, now.Add(-time.Hour))
	f.seedDetection(t, "user-3", "Rust", now.Add(-48*time.Hour))

	sent, err := f.svc.SendDailyAlerts(ctx)
	if err != nil {
		t.Fatalf("SendDailyAlerts returned error: %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}

	alerts, _ := f.notifications.ListByUser(ctx, "user-1", 10, false)
	if len(alerts) != 1 || alerts[0].Type != model.NotificationTreatmentReminder {
		t.Errorf("user-1 alerts = %+v", alerts)
	}
	if list, _ := f.notifications.ListByUser(ctx, "user-2", 10, false); len(list) != 0 {
		t.Error("healthy user received a reminder")
	}
	if list, _ := f.notifications.ListByUser(ctx, "user-3", 10, false); len(list) != 0 {
		t.Error("stale detection triggered a reminder")
	}
}

func TestGenerateWeeklyReports(t *testing.T) {
	f := newNotificationFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.seedDetection(t, "user-1", model.HealthyCropDisease, now.Add(-24*time.Hour))
	f.seedDetection(t, "user-1", "Leaf Blight", now.Add(-48*time.Hour))
	f.seedDetection(t, "user-1", "Leaf Blight", now.Add(-72*time.Hour))
	f.seedDetection(t, "user-1", "Rust", now.Add(-96*time.Hour))

	generated, err := f.svc.GenerateWeeklyReports(ctx)
	if err != nil {
		t.Fatalf("GenerateWeeklyReports returned error: %v", err)
	}
	if generated != 1 {
		t.Fatalf("generated = %d, want 1", generated)
	}

	reports, err := f.svc.Reports(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("Reports returned error: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports length = %d, want 1", len(reports))
	}
	report := reports[0]
	if report.TotalDetections != 4 {
		t.Errorf("total = %d, want 4", report.TotalDetections)
	}
	if report.HealthyCrops != 1 || report.DiseasedCrops != 3 {
		t.Errorf("healthy/diseased = %d/%d, want 1/3", report.HealthyCrops, report.DiseasedCrops)
	}
	if report.MostCommonDisease != "Leaf Blight" {
		t.Errorf("most common = %q, want Leaf Blight", report.MostCommonDisease)
	}

	digest, _ := f.notifications.ListByUser(ctx, "user-1", 10, false)
	if len(digest) != 1 || digest[0].Type != model.NotificationWeeklyReport {
		t.Errorf("digest notifications = %+v", digest)
	}
}
