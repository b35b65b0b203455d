package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agroguardian-api/internal/bucketing"
	"agroguardian-api/internal/client"
	"agroguardian-api/internal/config"
	"agroguardian-api/internal/util"
)

// Event types emitted by the auth and detection flows.
const (
	EventOTPIssued      = "otp_issued"
	EventOTPFailed      = "otp_failed"
	EventOTPLocked      = "otp_locked"
	EventOTPRateLimited = "otp_rate_limited"
	EventLogin          = "login"
	EventLogout         = "logout"
	EventDetection      = "detection"
)

// Event is a security or activity record fanned out to the analytics
// sinks. Recording is fire-and-forget; no caller blocks on a sink.
type Event struct {
	EventID   string                 `json:"event_id"`
	Type      string                 `json:"type"`
	UserID    string                 `json:"user_id,omitempty"`
	Phone     string                 `json:"phone,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type EventRecorder interface {
	Record(ctx context.Context, event Event)
}

// NoopRecorder drops events. Used in tests and when every sink is
// disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(ctx context.Context, event Event) {}

// MultiSinkRecorder writes each event to Kafka, Elasticsearch and
// ClickHouse. Sinks are optional; a nil client skips that sink.
type MultiSinkRecorder struct {
	kafka      *client.KafkaProducer
	es         *client.ESClient
	clickhouse *client.ClickHouseClient
	buckets    *bucketing.BucketingManager
	cfg        *config.Config
}

func NewMultiSinkRecorder(
	kafka *client.KafkaProducer,
	es *client.ESClient,
	clickhouse *client.ClickHouseClient,
	buckets *bucketing.BucketingManager,
	cfg *config.Config,
) *MultiSinkRecorder {
	return &MultiSinkRecorder{
		kafka:      kafka,
		es:         es,
		clickhouse: clickhouse,
		buckets:    buckets,
		cfg:        cfg,
	}
}

func (r *MultiSinkRecorder) Record(ctx context.Context, event Event) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Detach from the request context so an event outlives the response.
	go r.fanOut(event)
}

func (r *MultiSinkRecorder) fanOut(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		util.Error("Failed to marshal event", zap.Error(err))
		return
	}

	if r.kafka != nil {
		key := event.UserID
		if key == "" {
			key = event.Phone
		}
		if err := r.kafka.ProduceMessage(ctx, r.cfg.Kafka.Topic, []byte(key), payload, map[string]string{
			"event_type": event.Type,
		}); err != nil {
			util.Warn("Kafka event publish failed",
				zap.String("type", event.Type),
				zap.Error(err))
		}
	}

	if r.es != nil {
		res, err := r.es.IndexDocument(ctx, r.cfg.Elasticsearch.AuditIndex, event.EventID, event)
		if err != nil {
			util.Warn("Elasticsearch event index failed",
				zap.String("type", event.Type),
				zap.Error(err))
		} else {
			res.Body.Close()
		}
	}

	if r.clickhouse != nil {
		bucket := 0
		if event.UserID != "" {
			bucket = r.buckets.GetEventBucket(event.UserID)
		} else if event.Phone != "" {
			bucket = r.buckets.GetEventBucket(event.Phone)
		}

		err := r.clickhouse.Exec(ctx, `
            INSERT INTO auth_events (event_id, event_type, user_id, phone, event_bucket, extra, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?)`,
			event.EventID, event.Type, event.UserID, event.Phone,
			bucket, marshalExtra(event.Extra), event.Timestamp)
		if err != nil {
			util.Warn("ClickHouse event insert failed",
				zap.String("type", event.Type),
				zap.Error(err))
		}
	}
}
