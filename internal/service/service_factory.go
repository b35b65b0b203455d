package service

import (
	"go.uber.org/zap"

	"agroguardian-api/internal/config"
	"agroguardian-api/internal/encryption"
	"agroguardian-api/internal/hashing"
	"agroguardian-api/internal/model"
	"agroguardian-api/internal/notify"
	"agroguardian-api/internal/token"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	users         model.UserRepository
	otps          model.OTPRepository
	sessions      model.SessionRepository
	detections    model.DetectionRepository
	notifications model.NotificationRepository
	reports       model.WeeklyReportRepository

	rateLimits   model.RateLimitCache
	attempts     model.OTPAttemptCache
	sessionCache model.SessionCache

	hasher        *hashing.Hasher
	tokens        *token.Manager
	encryptionMgr *encryption.EncryptionManager
	sms           notify.SMSSender
	email         notify.EmailSender
	detector      Detector
	events        EventRecorder

	cfg    *config.Config
	logger *zap.Logger

	authService         *AuthService
	detectionService    *DetectionService
	notificationService *NotificationService
}

// ServiceFactoryDeps bundles the wiring a factory needs.
type ServiceFactoryDeps struct {
	Users         model.UserRepository
	OTPs          model.OTPRepository
	Sessions      model.SessionRepository
	Detections    model.DetectionRepository
	Notifications model.NotificationRepository
	Reports       model.WeeklyReportRepository

	RateLimits   model.RateLimitCache
	Attempts     model.OTPAttemptCache
	SessionCache model.SessionCache

	Hasher        *hashing.Hasher
	Tokens        *token.Manager
	EncryptionMgr *encryption.EncryptionManager
	SMS           notify.SMSSender
	Email         notify.EmailSender
	Detector      Detector
	Events        EventRecorder
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(deps ServiceFactoryDeps, cfg *config.Config, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{
		users:         deps.Users,
		otps:          deps.OTPs,
		sessions:      deps.Sessions,
		detections:    deps.Detections,
		notifications: deps.Notifications,
		reports:       deps.Reports,
		rateLimits:    deps.RateLimits,
		attempts:      deps.Attempts,
		sessionCache:  deps.SessionCache,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		encryptionMgr: deps.EncryptionMgr,
		sms:           deps.SMS,
		email:         deps.Email,
		detector:      deps.Detector,
		events:        deps.Events,
		cfg:           cfg,
		logger:        logger,
	}
}

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.users, f.otps, f.sessions,
			f.rateLimits, f.attempts, f.sessionCache,
			f.hasher, f.tokens, f.encryptionMgr,
			f.sms, f.email, f.events,
			f.cfg, f.logger,
		)
	}
	return f.authService
}

// DetectionService returns the detection service instance (singleton)
func (f *ServiceFactory) DetectionService() *DetectionService {
	if f.detectionService == nil {
		f.detectionService = NewDetectionService(
			f.detector, f.detections, f.notifications,
			f.events, f.cfg, f.logger,
		)
	}
	return f.detectionService
}

// NotificationService returns the notification service instance (singleton)
func (f *ServiceFactory) NotificationService() *NotificationService {
	if f.notificationService == nil {
		f.notificationService = NewNotificationService(
			f.notifications, f.detections, f.reports,
			f.cfg, f.logger,
		)
	}
	return f.notificationService
}
