package scylla

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"agroguardian-api/internal/config"
	"agroguardian-api/internal/util"
)

// PreparedStatements holds prepared statements for the hot paths of the
// auth and detection flows.
type PreparedStatements struct {
	CreateUser        *gocql.Query
	CreatePhoneToUser *gocql.Query
	GetPhoneToUser    *gocql.Query
	GetUserByID       *gocql.Query
	UpdateUserProfile *gocql.Query
	SetUserVerified   *gocql.Query

	GetLatestOTP *gocql.Query

	CreateSession *gocql.Query
	GetSession    *gocql.Query
	DeleteSession *gocql.Query

	CreateDetection    *gocql.Query
	GetDetection       *gocql.Query
	CreateNotification *gocql.Query
	CreateReport       *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateUser = s.Session.Query(`
        INSERT INTO users (
            user_bucket, user_id, phone, email, name, location, language,
            is_verified, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreatePhoneToUser = s.Session.Query(`
        INSERT INTO phone_to_user (phone, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`)

	prepared.GetPhoneToUser = s.Session.Query(`
        SELECT user_bucket, user_id FROM phone_to_user WHERE phone = ?`)

	prepared.GetUserByID = s.Session.Query(`
        SELECT user_bucket, user_id, phone, email, name, location, language,
            is_verified, created_at, updated_at
        FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateUserProfile = s.Session.Query(`
        UPDATE users SET name = ?, email = ?, location = ?, language = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.SetUserVerified = s.Session.Query(`
        UPDATE users SET is_verified = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.GetLatestOTP = s.Session.Query(`
        SELECT otp_id, phone, code_hash, code_salt, pepper_version,
            expires_at, is_used, created_at
        FROM otps WHERE phone = ? LIMIT 1`)

	prepared.CreateSession = s.Session.Query(`
        INSERT INTO user_sessions (
            user_id, token, session_id, device_info_enc, device_info_dek,
            device_info_key_id, expires_at, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetSession = s.Session.Query(`
        SELECT user_id, token, session_id, device_info_enc, device_info_dek,
            device_info_key_id, expires_at, created_at
        FROM user_sessions WHERE user_id = ? AND token = ?`)

	prepared.DeleteSession = s.Session.Query(`
        DELETE FROM user_sessions WHERE user_id = ? AND token = ?`)

	prepared.CreateDetection = s.Session.Query(`
        INSERT INTO disease_detections (
            user_id, detected_at, detection_id, crop_type, disease_name,
            confidence, image_data, remedy, preventive_measures, location,
            weather_conditions
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetDetection = s.Session.Query(`
        SELECT user_id, detected_at, detection_id, crop_type, disease_name,
            confidence, image_data, remedy, preventive_measures, location,
            weather_conditions
        FROM disease_detections WHERE user_id = ? AND detection_id = ? ALLOW FILTERING`)

	prepared.CreateNotification = s.Session.Query(`
        INSERT INTO notifications (
            user_id, created_at, notification_id, title, message, type, is_read
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateReport = s.Session.Query(`
        INSERT INTO weekly_reports (
            user_id, week_start, report_id, week_end, total_detections,
            healthy_crops, diseased_crops, most_common_disease, report_data,
            generated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		err := query.Scan(dest...)
		if err == nil {
			return nil
		}
		// A miss is a definitive answer, not a transient fault.
		if errors.Is(err, gocql.ErrNotFound) {
			return err
		}
		lastErr = err
		if i < 2 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return lastErr
}
