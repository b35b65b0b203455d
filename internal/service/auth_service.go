package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agroguardian-api/internal/config"
	"agroguardian-api/internal/encryption"
	"agroguardian-api/internal/hashing"
	"agroguardian-api/internal/model"
	"agroguardian-api/internal/notify"
	"agroguardian-api/internal/token"
	"agroguardian-api/internal/util"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidOTP covers every verification failure: wrong code,
	// expired code, consumed code, unknown phone. Callers must not be
	// able to tell which one happened.
	ErrInvalidOTP      = errors.New("invalid or expired OTP")
	ErrMissingName     = errors.New("name is required")
	ErrTooManyRequests = errors.New("too many OTP requests")
	ErrTooManyAttempts = errors.New("too many failed attempts")
	ErrInvalidSession  = errors.New("invalid or expired session")
	ErrUserNotFound    = errors.New("user not found")
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// DispatchResult reports which channels accepted the code for delivery.
type DispatchResult struct {
	SMS   bool `json:"sms"`
	Email bool `json:"email"`
}

// AuthResult is the outcome of a successful verification.
type AuthResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
	IsNewUser bool
}

// ProfileUpdateRequest carries the mutable profile fields.
type ProfileUpdateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Location string `json:"location"`
	Language string `json:"language"`
}

// AuthService implements phone-first authentication: request a code,
// verify it, receive a token backed by a session row. There are no
// passwords anywhere in the flow.
type AuthService struct {
	users    model.UserRepository
	otps     model.OTPRepository
	sessions model.SessionRepository

	rateLimits   model.RateLimitCache
	attempts     model.OTPAttemptCache
	sessionCache model.SessionCache

	hasher        *hashing.Hasher
	tokens        *token.Manager
	encryptionMgr *encryption.EncryptionManager
	sms           notify.SMSSender
	email         notify.EmailSender
	events        EventRecorder

	cfg    *config.Config
	logger *zap.Logger
}

func NewAuthService(
	users model.UserRepository,
	otps model.OTPRepository,
	sessions model.SessionRepository,
	rateLimits model.RateLimitCache,
	attempts model.OTPAttemptCache,
	sessionCache model.SessionCache,
	hasher *hashing.Hasher,
	tokens *token.Manager,
	encryptionMgr *encryption.EncryptionManager,
	sms notify.SMSSender,
	email notify.EmailSender,
	events EventRecorder,
	cfg *config.Config,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:         users,
		otps:          otps,
		sessions:      sessions,
		rateLimits:    rateLimits,
		attempts:      attempts,
		sessionCache:  sessionCache,
		hasher:        hasher,
		tokens:        tokens,
		encryptionMgr: encryptionMgr,
		sms:           sms,
		email:         email,
		events:        events,
		cfg:           cfg,
		logger:        logger,
	}
}

// RequestCode issues a fresh one-time code for the phone, superseding
// any earlier code, and dispatches it over the available channels. The
// email channel is attempted only when the caller supplied an address.
// Delivery is best-effort; the code is committed before dispatch starts.
func (s *AuthService) RequestCode(ctx context.Context, phone, email string) (*DispatchResult, error) {
	phone = util.NormalizePhone(phone)
	if !phonePattern.MatchString(phone) {
		return nil, fmt.Errorf("%w: phone number is malformed", ErrInvalidInput)
	}

	sends, err := s.rateLimits.Increment(ctx, "otp_send:"+phone, time.Hour)
	if err != nil {
		// The limiter is advisory; a cache outage must not block logins.
		util.Warn("Rate limit check failed, allowing request",
			zap.String("phone", phone),
			zap.Error(err))
	} else if sends > s.cfg.OTP.MaxSendsPerHour {
		s.events.Record(ctx, Event{
			Type:  EventOTPRateLimited,
			Phone: phone,
		})
		return nil, ErrTooManyRequests
	}

	code, err := generateCode(s.cfg.OTP.Length)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	hashResult, err := s.hasher.HashCode(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash code: %w", err)
	}

	now := time.Now().UTC()
	otp := &model.OneTimeCode{
		Phone:         phone,
		CodeHash:      hashResult.Hash,
		CodeSalt:      hashResult.Salt,
		PepperVersion: hashResult.PepperVersion,
		ExpiresAt:     now.Add(s.cfg.OTP.TTL),
		CreatedAt:     now,
	}

	if err := s.otps.ReplaceCode(ctx, otp); err != nil {
		return nil, fmt.Errorf("failed to store code: %w", err)
	}

	// A new code voids the failure budget of the old one.
	if err := s.attempts.Clear(ctx, phone); err != nil {
		util.Warn("Failed to clear attempt counter", zap.Error(err))
	}

	result := s.dispatch(ctx, phone, email, code)

	s.events.Record(ctx, Event{
		Type:  EventOTPIssued,
		Phone: phone,
	})

	util.Info("OTP issued",
		zap.String("phone", phone),
		zap.Bool("sms", result.SMS),
		zap.Bool("email", result.Email))

	return result, nil
}

// dispatch fans the code out to SMS and email concurrently. Either
// channel may fail without affecting the other or the request.
func (s *AuthService) dispatch(ctx context.Context, phone, emailAddr, code string) *DispatchResult {
	result := &DispatchResult{}

	dispatchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(dispatchCtx)

	if s.cfg.SMS.Enabled {
		g.Go(func() error {
			if err := s.sms.SendCode(gctx, phone, code); err != nil {
				util.Warn("SMS dispatch failed", zap.String("phone", phone), zap.Error(err))
				return nil
			}
			result.SMS = true
			return nil
		})
	}

	if s.cfg.Email.Enabled && emailAddr != "" {
		g.Go(func() error {
			if err := s.email.SendCode(gctx, emailAddr, code); err != nil {
				util.Warn("Email dispatch failed", zap.String("phone", phone), zap.Error(err))
				return nil
			}
			result.Email = true
			return nil
		})
	}

	_ = g.Wait()
	return result
}

// VerifyCode checks the submitted code and, on success, completes the
// login: the user is found or created, a session row is written, and
// only then is the token handed out. Every code failure returns
// ErrInvalidOTP so callers cannot probe which phones are registered.
// The profile is applied only when a new account is created; a
// returning user's profile is never touched here.
func (s *AuthService) VerifyCode(ctx context.Context, phone, code string, profile *ProfileUpdateRequest, deviceInfo string) (*AuthResult, error) {
	phone = util.NormalizePhone(phone)
	if !phonePattern.MatchString(phone) || code == "" {
		return nil, fmt.Errorf("%w: phone and OTP are required", ErrInvalidInput)
	}

	failures, err := s.attempts.Failures(ctx, phone)
	if err != nil {
		util.Warn("Attempt counter read failed", zap.Error(err))
	} else if failures >= s.cfg.OTP.MaxVerifyAttempts {
		s.events.Record(ctx, Event{Type: EventOTPLocked, Phone: phone})
		return nil, ErrTooManyAttempts
	}

	otp, err := s.otps.GetLatestByPhone(ctx, phone)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			util.Error("OTP lookup failed", zap.String("phone", phone), zap.Error(err))
		}
		s.recordFailure(ctx, phone)
		return nil, ErrInvalidOTP
	}

	now := time.Now().UTC()
	if !otp.Usable(now) {
		s.recordFailure(ctx, phone)
		return nil, ErrInvalidOTP
	}

	match, err := s.hasher.VerifyCode(code, &hashing.HashResult{
		Hash:          otp.CodeHash,
		Salt:          otp.CodeSalt,
		PepperVersion: otp.PepperVersion,
	})
	if err != nil || !match {
		s.recordFailure(ctx, phone)
		return nil, ErrInvalidOTP
	}

	// The LWT admits exactly one winner per code. A concurrent verify
	// that lost the race lands here with applied=false.
	applied, err := s.otps.ConsumeCode(ctx, phone, otp.OTPID)
	if err != nil {
		util.Error("OTP consume failed", zap.String("phone", phone), zap.Error(err))
		return nil, ErrInvalidOTP
	}
	if !applied {
		s.recordFailure(ctx, phone)
		return nil, ErrInvalidOTP
	}

	if err := s.attempts.Clear(ctx, phone); err != nil {
		util.Warn("Failed to clear attempt counter", zap.Error(err))
	}

	return s.completeAuth(ctx, phone, profile, deviceInfo)
}

// completeAuth resolves the verified phone to an account and opens a
// session. The session row must be durable before the token leaves this
// function; a token floating around without a row would be unrevokable.
func (s *AuthService) completeAuth(ctx context.Context, phone string, profile *ProfileUpdateRequest, deviceInfo string) (*AuthResult, error) {
	now := time.Now().UTC()
	isNew := false
	if profile == nil {
		profile = &ProfileUpdateRequest{}
	}

	user, err := s.users.GetUserByPhone(ctx, phone)
	if errors.Is(err, model.ErrNotFound) {
		name := util.SanitizeInput(profile.Name)
		if name == "" {
			return nil, ErrMissingName
		}
		language := model.LanguageEnglish
		if profile.Language != "" {
			if !model.ValidLanguage(profile.Language) {
				return nil, fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, profile.Language)
			}
			language = profile.Language
		}
		user = &model.User{
			Phone:      phone,
			Name:       name,
			Email:      util.SanitizeInput(profile.Email),
			Location:   util.SanitizeInput(profile.Location),
			Language:   language,
			IsVerified: true,
		}
		if createErr := s.users.CreateUser(ctx, user); createErr != nil {
			if errors.Is(createErr, model.ErrAlreadyExists) {
				// Lost a concurrent first-login race; the other request
				// created the account, so use it.
				user, err = s.users.GetUserByPhone(ctx, phone)
				if err != nil {
					return nil, fmt.Errorf("failed to resolve user after race: %w", err)
				}
			} else {
				return nil, fmt.Errorf("failed to create user: %w", createErr)
			}
		} else {
			isNew = true
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	if !isNew && !user.IsVerified {
		if err := s.users.SetVerified(ctx, user.UserID, true); err != nil {
			util.Warn("Failed to mark user verified", zap.String("user_id", user.UserID), zap.Error(err))
		} else {
			user.IsVerified = true
		}
	}

	signed, expiresAt, err := s.tokens.Sign(user.UserID, user.Phone, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	// The session row has its own lifetime; a token that outlives its
	// session stops working when the row expires.
	sessionExpiry := now.Add(s.cfg.Session.TTL)
	if sessionExpiry.Before(expiresAt) {
		expiresAt = sessionExpiry
	}

	session := &model.Session{
		UserID:    user.UserID,
		Token:     signed,
		ExpiresAt: sessionExpiry,
		CreatedAt: now,
	}

	if deviceInfo != "" {
		enc, encErr := s.encryptionMgr.EncryptField(ctx, deviceInfo)
		if encErr != nil {
			util.Warn("Device info encryption failed, storing session without it",
				zap.String("user_id", user.UserID),
				zap.Error(encErr))
		} else {
			session.DeviceInfoEnc = []byte(enc.EncryptedValue)
			session.DeviceInfoDEK = []byte(enc.EncryptedDEK)
			session.DeviceInfoKeyID = enc.KeyID
		}
	}

	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	// The cache mirrors session liveness for dashboards and debugging.
	// Authorization decisions always go to the store. Mirror entries
	// live for the remaining session lifetime, capped by the configured
	// cache TTL.
	cacheTTL := s.cfg.Session.CacheTTL
	if remaining := session.ExpiresAt.Sub(now); remaining < cacheTTL {
		cacheTTL = remaining
	}
	if err := s.sessionCache.Put(ctx, session, cacheTTL); err != nil {
		util.Warn("Failed to cache session", zap.Error(err))
	}

	s.events.Record(ctx, Event{
		Type:   EventLogin,
		Phone:  phone,
		UserID: user.UserID,
		Extra:  map[string]interface{}{"is_new_user": isNew},
	})

	util.Info("Authentication completed",
		zap.String("user_id", user.UserID),
		zap.Bool("is_new_user", isNew))

	return &AuthResult{
		User:      user,
		Token:     signed,
		ExpiresAt: expiresAt,
		IsNewUser: isNew,
	}, nil
}

// Authenticate validates a bearer token against its session row. The
// row is re-read on every call; a verifiable JWT whose session was
// deleted or expired must be rejected immediately, so the decision is
// never served from the cache.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*model.User, *model.Session, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, nil, ErrInvalidSession
	}

	session, err := s.sessions.GetSession(ctx, claims.UserID, tokenString)
	if err != nil {
		return nil, nil, ErrInvalidSession
	}

	if !session.Valid(time.Now().UTC()) {
		return nil, nil, ErrInvalidSession
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, ErrInvalidSession
	}

	return user, session, nil
}

// Logout tears down the session behind the token. Repeated logouts of
// the same token succeed; there is nothing secret about being already
// logged out.
func (s *AuthService) Logout(ctx context.Context, userID, tokenString string) error {
	if err := s.sessionCache.Delete(ctx, tokenString); err != nil {
		util.Warn("Failed to evict session from cache", zap.Error(err))
	}

	if err := s.sessions.DeleteSession(ctx, userID, tokenString); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.events.Record(ctx, Event{Type: EventLogout, UserID: userID})

	return nil
}

// GetProfile returns the account for an authenticated user.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile applies the mutable profile fields. The phone number is
// the account's identity and cannot be changed here.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req *ProfileUpdateRequest) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	name := user.Name
	if req.Name != "" {
		name = util.SanitizeInput(req.Name)
	}
	email := user.Email
	if req.Email != "" {
		email = util.SanitizeInput(req.Email)
	}
	location := user.Location
	if req.Location != "" {
		location = util.SanitizeInput(req.Location)
	}
	language := user.Language
	if req.Language != "" {
		if !model.ValidLanguage(req.Language) {
			return nil, fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, req.Language)
		}
		language = req.Language
	}

	if err := s.users.UpdateProfile(ctx, userID, name, email, location, language); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	user.Name = name
	user.Email = email
	user.Location = location
	user.Language = language

	return user, nil
}

// DecryptDeviceInfo recovers the device metadata stored with a session.
func (s *AuthService) DecryptDeviceInfo(ctx context.Context, session *model.Session) (string, error) {
	if len(session.DeviceInfoEnc) == 0 {
		return "", nil
	}
	return s.encryptionMgr.DecryptField(ctx, &encryption.EncryptedData{
		EncryptedValue: string(session.DeviceInfoEnc),
		EncryptedDEK:   string(session.DeviceInfoDEK),
		KeyID:          session.DeviceInfoKeyID,
	})
}

func (s *AuthService) recordFailure(ctx context.Context, phone string) {
	if _, err := s.attempts.RecordFailure(ctx, phone, s.cfg.OTP.TTL); err != nil {
		util.Warn("Failed to record verification failure", zap.Error(err))
	}
	s.events.Record(ctx, Event{Type: EventOTPFailed, Phone: phone})
}

// generateCode produces a zero-padded numeric code from crypto/rand.
func generateCode(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", length, n), nil
}

// marshalExtra is shared by the event sinks.
func marshalExtra(extra map[string]interface{}) string {
	if len(extra) == 0 {
		return ""
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return ""
	}
	return string(data)
}
