package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"agroguardian-api/internal/model"
	"agroguardian-api/internal/repository/memory"
	"agroguardian-api/internal/util"
)

// fixedDetector always returns the same verdict.
type fixedDetector struct {
	outcome *DetectionOutcome
	err     error
}

func (d *fixedDetector) Detect(ctx context.Context, image []byte, cropType string) (*DetectionOutcome, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.outcome, nil
}

type detectionFixture struct {
	svc           *DetectionService
	detections    *memory.DetectionRepo
	notifications *memory.NotificationRepo
}

func newDetectionFixture(t *testing.T, detector Detector) *detectionFixture {
	t.Helper()
	detections := memory.NewDetectionRepo()
	notifications := memory.NewNotificationRepo()
	svc := NewDetectionService(detector, detections, notifications, NoopRecorder{}, testConfig(), util.Get())
	return &detectionFixture{svc: svc, detections: detections, notifications: notifications}
}

func TestAnalyzeStoresDetection(t *testing.T) {
	f := newDetectionFixture(t, &fixedDetector{outcome: &DetectionOutcome{
		DiseaseName:        "Leaf Blight",
		Confidence:         0.89,
		Remedy:             "Apply copper-based fungicide every 7 days.",
		PreventiveMeasures: []string{"Remove infected leaves"},
	}})
	ctx := context.Background()

	det, err := f.svc.Analyze(ctx, "user-1", "tomato", "Madurai", "humid", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if det.DetectionID == "" {
		t.Error("no detection ID assigned")
	}
	if det.DiseaseName != "Leaf Blight" || det.Confidence != 0.89 {
		t.Errorf("verdict not carried through: %+v", det)
	}

	stored, err := f.detections.GetDetection(ctx, "user-1", det.DetectionID)
	if err != nil {
		t.Fatalf("detection not persisted: %v", err)
	}
	if stored.CropType != "tomato" {
		t.Errorf("crop = %q", stored.CropType)
	}
}

func TestAnalyzeRaisesDiseaseAlert(t *testing.T) {
	f := newDetectionFixture(t, &fixedDetector{outcome: &DetectionOutcome{
		DiseaseName: "Rust",
		Confidence:  0.91,
		Remedy:      "Apply triazole fungicide and repeat after 10 days.",
	}})
	ctx := context.Background()

	if _, err := f.svc.Analyze(ctx, "user-1", "wheat", "", "", []byte("img")); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	alerts, err := f.notifications.ListByUser(ctx, "user-1", 10, false)
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Type != model.NotificationDiseaseAlert {
		t.Errorf("alert type = %q", alerts[0].Type)
	}
}

func TestAnalyzeHealthySkipsAlert(t *testing.T) {
	f := newDetectionFixture(t, &fixedDetector{outcome: &DetectionOutcome{
		DiseaseName: model.HealthyCropDisease,
		Confidence:  0.97,
	}})
	ctx := context.Background()

	if _, err := f.svc.Analyze(ctx, "user-1", "rice", "", "", []byte("img")); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	alerts, err := f.notifications.ListByUser(ctx, "user-1", 10, false)
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("healthy verdict raised %d alerts", len(alerts))
	}
}

func TestAnalyzeValidatesInput(t *testing.T) {
	f := newDetectionFixture(t, MockDetector{})
	ctx := context.Background()

	if _, err := f.svc.Analyze(ctx, "user-1", "tomato", "", "", nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing image error = %v, want ErrInvalidInput", err)
	}
	if _, err := f.svc.Analyze(ctx, "user-1", "", "", "", []byte("img")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing crop error = %v, want ErrInvalidInput", err)
	}
}

func TestAnalyzePropagatesDetectorError(t *testing.T) {
	f := newDetectionFixture(t, &fixedDetector{err: errors.New("model offline")})
	ctx := context.Background()

	if _, err := f.svc.Analyze(ctx, "user-1", "tomato", "", "", []byte("img")); err == nil {
		t.Error("expected error from detector")
	}
	if list, _ := f.detections.ListByUser(ctx, "user-1", 10); len(list) != 0 {
		t.Error("failed analysis was persisted")
	}
}

func TestHistoryClampsLimit(t *testing.T) {
	f := newDetectionFixture(t, MockDetector{})
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		if _, err := f.svc.Analyze(ctx, "user-1", "tomato", "", "", []byte(fmt.Sprintf("img-%d", i))); err != nil {
			t.Fatalf("Analyze %d returned error: %v", i, err)
		}
	}

	history, err := f.svc.History(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(history) != 50 {
		t.Errorf("default history length = %d, want 50", len(history))
	}

	history, err = f.svc.History(ctx, "user-1", 1000)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(history) != 50 {
		t.Errorf("oversized limit history length = %d, want 50", len(history))
	}
}

func TestStatsSummarizeHistory(t *testing.T) {
	f := newDetectionFixture(t, nil)
	ctx := context.Background()

	seed := []struct {
		disease    string
		confidence float64
	}{
		{model.HealthyCropDisease, 0.9},
		{"Leaf Blight", 0.8},
		{"Leaf Blight", 0.7},
		{"Rust", 0.6},
	}
	for _, s := range seed {
		err := f.detections.CreateDetection(ctx, &model.Detection{
			UserID:      "user-1",
			CropType:    "tomato",
			DiseaseName: s.disease,
			Confidence:  s.confidence,
		})
		if err != nil {
			t.Fatalf("seed detection: %v", err)
		}
	}

	stats, err := f.svc.Stats(ctx, "user-1")
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Total != 4 || stats.Healthy != 1 || stats.Diseased != 3 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.MostCommonDisease != "Leaf Blight" {
		t.Errorf("most common = %q, want Leaf Blight", stats.MostCommonDisease)
	}
	if diff := stats.AverageConfidence - 0.75; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("average confidence = %v, want 0.75", stats.AverageConfidence)
	}
}

func TestStatsEmptyHistory(t *testing.T) {
	f := newDetectionFixture(t, nil)

	stats, err := f.svc.Stats(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Total != 0 || stats.AverageConfidence != 0 || stats.MostCommonDisease != "" {
		t.Errorf("empty stats = %+v", stats)
	}
}

func TestImageReturnsStoredBytes(t *testing.T) {
	f := newDetectionFixture(t, MockDetector{})
	ctx := context.Background()

	raw := []byte("jpeg-bytes")
	det, err := f.svc.Analyze(ctx, "user-1", "tomato", "", "", raw)
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	got, err := f.svc.Image(ctx, "user-1", det.DetectionID)
	if err != nil {
		t.Fatalf("Image returned error: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("image bytes do not round-trip: got %d bytes", len(got))
	}

	if _, err := f.svc.Image(ctx, "user-1", "nope"); !errors.Is(err, ErrDetectionNotFound) {
		t.Errorf("missing detection error = %v, want ErrDetectionNotFound", err)
	}
	if _, err := f.svc.Image(ctx, "someone-else", det.DetectionID); !errors.Is(err, ErrDetectionNotFound) {
		t.Errorf("cross-user error = %v, want ErrDetectionNotFound", err)
	}
}

func TestGetUnknownDetection(t *testing.T) {
	f := newDetectionFixture(t, MockDetector{})

	if _, err := f.svc.Get(context.Background(), "user-1", "nope"); !errors.Is(err, ErrDetectionNotFound) {
		t.Errorf("error = %v, want ErrDetectionNotFound", err)
	}
}

func TestMockDetectorIsDeterministic(t *testing.T) {
	d := MockDetector{}
	ctx := context.Background()

	a, err := d.Detect(ctx, []byte("same-image"), "tomato")
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	b, err := d.Detect(ctx, []byte("same-image"), "tomato")
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if a.DiseaseName != b.DiseaseName || a.Confidence != b.Confidence {
		t.Errorf("identical input produced different verdicts: %q vs %q", a.DiseaseName, b.DiseaseName)
	}
}
