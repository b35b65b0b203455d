package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"agroguardian-api/internal/config"
	"agroguardian-api/internal/encryption"
	"agroguardian-api/internal/hashing"
	"agroguardian-api/internal/model"
	"agroguardian-api/internal/repository/memory"
	"agroguardian-api/internal/token"
	"agroguardian-api/internal/util"
)

const testPhone = "+911234567890"

func testConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		JWT: config.JWTConfig{
			Secret: "test-secret-do-not-use",
			Issuer: "agroguardian-api",
			TTL:    30 * 24 * time.Hour,
		},
		OTP: config.OTPConfig{
			Length:            6,
			TTL:               10 * time.Minute,
			MaxSendsPerHour:   5,
			MaxVerifyAttempts: 5,
			RetentionAge:      24 * time.Hour,
		},
		Session: config.SessionConfig{TTL: 30 * 24 * time.Hour, CacheTTL: 15 * time.Minute},
		SMS:     config.SMSConfig{Enabled: true},
		Email:   config.EmailConfig{Enabled: false},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8 * 1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			PepperSecret:      "test-pepper-secret",
		},
		Bucketing: config.BucketingConfig{UserBuckets: 16, EventBuckets: 16},
	}
}

// captureSMS records the last code sent per phone.
type captureSMS struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func newCaptureSMS() *captureSMS {
	return &captureSMS{codes: make(map[string]string)}
}

func (c *captureSMS) SendCode(ctx context.Context, phone, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[phone] = code
	c.sent++
	return nil
}

func (c *captureSMS) last(phone string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[phone]
}

type authFixture struct {
	svc      *AuthService
	users    *memory.UserRepo
	otps     *memory.OTPRepo
	sessions model.SessionRepository
	attempts *memory.OTPAttemptCache
	sms      *captureSMS
	cfg      *config.Config
	hasher   *hashing.Hasher
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	return newAuthFixtureWithSessions(t, memory.NewSessionRepo())
}

func newAuthFixtureWithSessions(t *testing.T, sessions model.SessionRepository) *authFixture {
	t.Helper()
	cfg := testConfig()
	sms := newCaptureSMS()
	users := memory.NewUserRepo()
	otps := memory.NewOTPRepo()
	attempts := memory.NewOTPAttemptCache()
	hasher := hashing.NewHasher(cfg)

	svc := NewAuthService(
		users,
		otps,
		sessions,
		memory.NewRateLimitCache(),
		attempts,
		memory.NewSessionCache(),
		hasher,
		token.NewManager(cfg),
		encryption.NewEncryptionManager(cfg, nil),
		sms,
		nil,
		NoopRecorder{},
		cfg,
		util.Get(),
	)

	return &authFixture{
		svc:      svc,
		users:    users,
		otps:     otps,
		sessions: sessions,
		attempts: attempts,
		sms:      sms,
		cfg:      cfg,
		hasher:   hasher,
	}
}

// asha is the profile a first-time caller submits alongside the code.
func asha() *ProfileUpdateRequest {
	return &ProfileUpdateRequest{Name: "Asha"}
}

// requestCode issues a code for the phone and returns the cleartext the
// SMS channel captured.
func (f *authFixture) requestCode(t *testing.T, phone string) string {
	t.Helper()
	if _, err := f.svc.RequestCode(context.Background(), phone, ""); err != nil {
		t.Fatalf("RequestCode(%s) returned error: %v", phone, err)
	}
	code := f.sms.last(phone)
	if code == "" {
		t.Fatalf("no code captured for %s", phone)
	}
	return code
}

func TestRequestCodeStoresHashedCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	if len(code) != 6 {
		t.Errorf("code length = %d, want 6", len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Errorf("code %q contains non-digit %q", code, r)
		}
	}

	stored, err := f.otps.GetLatestByPhone(ctx, testPhone)
	if err != nil {
		t.Fatalf("GetLatestByPhone returned error: %v", err)
	}
	if stored.CodeHash == code {
		t.Error("code stored in clear")
	}
	if stored.IsUsed {
		t.Error("fresh code marked used")
	}
	if !stored.Usable(time.Now().UTC()) {
		t.Error("fresh code not usable")
	}
	wantExpiry := stored.CreatedAt.Add(10 * time.Minute)
	if !stored.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expiry = %v, want created+10m = %v", stored.ExpiresAt, wantExpiry)
	}
}

func TestRequestCodeNormalizesPhone(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RequestCode(ctx, "+91 12345 67890", ""); err != nil {
		t.Fatalf("RequestCode with spaced phone returned error: %v", err)
	}
	if _, err := f.otps.GetLatestByPhone(ctx, testPhone); err != nil {
		t.Errorf("code not stored under normalized phone: %v", err)
	}
}

func TestRequestCodeRejectsMalformedPhone(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for _, phone := range []string{"", "12345", "abcdefghij", "+91123"} {
		if _, err := f.svc.RequestCode(ctx, phone, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("RequestCode(%q) error = %v, want ErrInvalidInput", phone, err)
		}
	}
}

func TestRequestCodeSupersedesPriorCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	oldCode := f.requestCode(t, testPhone)
	newCode := f.requestCode(t, testPhone)
	if oldCode == newCode {
		t.Skip("codes collided, cannot distinguish supersession")
	}

	if _, err := f.svc.VerifyCode(ctx, testPhone, oldCode, nil, ""); !errors.Is(err, ErrInvalidOTP) {
		t.Errorf("superseded code error = %v, want ErrInvalidOTP", err)
	}
	if _, err := f.svc.VerifyCode(ctx, testPhone, newCode, asha(), ""); err != nil {
		t.Errorf("latest code rejected: %v", err)
	}
}

func TestRequestCodeRateLimited(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for i := 0; i < f.cfg.OTP.MaxSendsPerHour; i++ {
		if _, err := f.svc.RequestCode(ctx, testPhone, ""); err != nil {
			t.Fatalf("request %d returned error: %v", i+1, err)
		}
	}
	if _, err := f.svc.RequestCode(ctx, testPhone, ""); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("over-limit request error = %v, want ErrTooManyRequests", err)
	}
}

func TestVerifyCodeCreatesAccountAndSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	result, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), "")
	if err != nil {
		t.Fatalf("VerifyCode returned error: %v", err)
	}

	if !result.IsNewUser {
		t.Error("first verification should report a new user")
	}
	if result.User.Name != "Asha" {
		t.Errorf("name = %q, want Asha", result.User.Name)
	}
	if result.User.Phone != testPhone {
		t.Errorf("phone = %q, want %s", result.User.Phone, testPhone)
	}
	if !result.User.IsVerified {
		t.Error("user not marked verified")
	}
	if result.User.Language != model.LanguageEnglish {
		t.Errorf("default language = %q, want en", result.User.Language)
	}
	if result.Token == "" {
		t.Fatal("no token returned")
	}

	// The token must be backed by a persisted session row.
	session, err := f.sessions.GetSession(ctx, result.User.UserID, result.Token)
	if err != nil {
		t.Fatalf("no session row behind token: %v", err)
	}
	if !session.ExpiresAt.Equal(result.ExpiresAt) {
		t.Errorf("session expiry %v != token expiry %v", session.ExpiresAt, result.ExpiresAt)
	}
}

func TestVerifyCodeNewUserRequiresName(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	if _, err := f.svc.VerifyCode(ctx, testPhone, code, nil, ""); !errors.Is(err, ErrMissingName) {
		t.Fatalf("nameless first login error = %v, want ErrMissingName", err)
	}
	if _, err := f.users.GetUserByPhone(ctx, testPhone); !errors.Is(err, model.ErrNotFound) {
		t.Error("account created despite missing name")
	}

	// The code was consumed before the name check, so the retry needs a
	// fresh one.
	code = f.requestCode(t, testPhone)
	if _, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), ""); err != nil {
		t.Errorf("retry with name failed: %v", err)
	}
}

func TestVerifyCodeAppliesProfileOnCreate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	result, err := f.svc.VerifyCode(ctx, testPhone, code, &ProfileUpdateRequest{
		Name:     "Asha",
		Email:    "asha@example.in",
		Location: "Madurai",
		Language: model.LanguageTamil,
	}, "")
	if err != nil {
		t.Fatalf("VerifyCode returned error: %v", err)
	}
	u := result.User
	if u.Email != "asha@example.in" || u.Location != "Madurai" || u.Language != model.LanguageTamil {
		t.Errorf("profile not applied on create: %+v", u)
	}
}

func TestVerifyCodeRejectsBadLanguageOnCreate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	profile := &ProfileUpdateRequest{Name: "Asha", Language: "xx"}
	if _, err := f.svc.VerifyCode(ctx, testPhone, code, profile, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad language error = %v, want ErrInvalidInput", err)
	}
}

// captureEmail records codes handed to the email channel.
type captureEmail struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *captureEmail) SendCode(ctx context.Context, to, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[to] = code
	return nil
}

func TestRequestCodeDispatchesEmailOnlyWhenGiven(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	email := &captureEmail{codes: make(map[string]string)}
	f.svc.email = email
	f.svc.cfg.Email.Enabled = true

	channels, err := f.svc.RequestCode(ctx, testPhone, "")
	if err != nil {
		t.Fatalf("RequestCode returned error: %v", err)
	}
	if channels.Email {
		t.Error("email flagged sent with no address supplied")
	}

	channels, err = f.svc.RequestCode(ctx, testPhone, "asha@example.in")
	if err != nil {
		t.Fatalf("RequestCode returned error: %v", err)
	}
	if !channels.Email || !channels.SMS {
		t.Errorf("channels = %+v, want both true", channels)
	}
	if email.codes["asha@example.in"] != f.sms.last(testPhone) {
		t.Error("email and SMS carried different codes")
	}
}

func TestVerifyCodeIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	if _, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), ""); err != nil {
		t.Fatalf("first verification failed: %v", err)
	}
	if _, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), ""); !errors.Is(err, ErrInvalidOTP) {
		t.Errorf("replayed code error = %v, want ErrInvalidOTP", err)
	}
}

func TestVerifyCodeWrongGuessThenCorrect(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	if _, err := f.svc.VerifyCode(ctx, testPhone, wrong, nil, ""); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("wrong guess error = %v, want ErrInvalidOTP", err)
	}
	if _, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), ""); err != nil {
		t.Errorf("correct code rejected after one wrong guess: %v", err)
	}
}

func TestVerifyCodeExpired(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	hashResult, err := f.hasher.HashCode("123456")
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}
	now := time.Now().UTC()
	err = f.otps.ReplaceCode(ctx, &model.OneTimeCode{
		Phone:         testPhone,
		CodeHash:      hashResult.Hash,
		CodeSalt:      hashResult.Salt,
		PepperVersion: hashResult.PepperVersion,
		ExpiresAt:     now.Add(-time.Minute),
		CreatedAt:     now.Add(-11 * time.Minute),
	})
	if err != nil {
		t.Fatalf("ReplaceCode returned error: %v", err)
	}

	if _, err := f.svc.VerifyCode(ctx, testPhone, "123456", nil, ""); !errors.Is(err, ErrInvalidOTP) {
		t.Errorf("expired code error = %v, want ErrInvalidOTP", err)
	}
}

func TestVerifyCodeUnknownPhoneLooksLikeWrongCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	// No code was ever issued for this phone. The error must be identical
	// to a wrong guess so callers cannot probe which phones are active.
	_, err := f.svc.VerifyCode(ctx, "+919999999999", "123456", nil, "")
	if !errors.Is(err, ErrInvalidOTP) {
		t.Errorf("unknown phone error = %v, want ErrInvalidOTP", err)
	}
}

func TestVerifyLockoutAfterMaxAttempts(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < f.cfg.OTP.MaxVerifyAttempts; i++ {
		if _, err := f.svc.VerifyCode(ctx, testPhone, wrong, nil, ""); !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("attempt %d error = %v, want ErrInvalidOTP", i+1, err)
		}
	}

	// Budget exhausted: even the correct code is refused now.
	if _, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), ""); !errors.Is(err, ErrTooManyAttempts) {
		t.Errorf("locked verify error = %v, want ErrTooManyAttempts", err)
	}
}

func TestRequestCodeResetsAttemptBudget(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	for i := 0; i < f.cfg.OTP.MaxVerifyAttempts; i++ {
		f.svc.VerifyCode(ctx, testPhone, wrong, nil, "")
	}

	fresh := f.requestCode(t, testPhone)
	if _, err := f.svc.VerifyCode(ctx, testPhone, fresh, asha(), ""); err != nil {
		t.Errorf("verify after reissue failed: %v", err)
	}
}

func TestVerifyReturningUserKeepsProfile(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	first, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), "")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}

	code = f.requestCode(t, testPhone)
	second, err := f.svc.VerifyCode(ctx, testPhone, code, &ProfileUpdateRequest{Name: "Somebody Else", Location: "Elsewhere"}, "")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	if second.IsNewUser {
		t.Error("returning user reported as new")
	}
	if second.User.UserID != first.User.UserID {
		t.Error("returning login resolved to a different account")
	}
	if second.User.Name != "Asha" {
		t.Errorf("name changed on login: %q", second.User.Name)
	}
	if second.User.Location != "" {
		t.Errorf("profile fields applied on returning login: %q", second.User.Location)
	}
	if second.Token == first.Token {
		t.Error("expected a fresh token per login")
	}

	// Both sessions stay valid; logging in again does not evict the old one.
	if _, err := f.sessions.GetSession(ctx, first.User.UserID, first.Token); err != nil {
		t.Errorf("first session gone after second login: %v", err)
	}
}

func TestConcurrentVerifySingleWinner(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), "")
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrInvalidOTP) && !errors.Is(err, ErrTooManyAttempts) {
			t.Errorf("unexpected loser error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
}

type failingSessionRepo struct {
	*memory.SessionRepo
}

func (r *failingSessionRepo) CreateSession(ctx context.Context, session *model.Session) error {
	return errors.New("disk on fire")
}

func TestNoTokenWithoutSessionRow(t *testing.T) {
	f := newAuthFixtureWithSessions(t, &failingSessionRepo{memory.NewSessionRepo()})
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	result, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), "")
	if err == nil {
		t.Fatalf("expected error when session write fails, got token %q", result.Token)
	}
	if result != nil {
		t.Error("result leaked despite session write failure")
	}
}

func TestAuthenticateAndLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	result, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	user, session, err := f.svc.Authenticate(ctx, result.Token)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if user.UserID != result.User.UserID {
		t.Error("authenticated as wrong user")
	}
	if session.Token != result.Token {
		t.Error("session token mismatch")
	}

	if err := f.svc.Logout(ctx, user.UserID, result.Token); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	if _, _, err := f.svc.Authenticate(ctx, result.Token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("post-logout authenticate error = %v, want ErrInvalidSession", err)
	}

	// Logout is idempotent.
	if err := f.svc.Logout(ctx, user.UserID, result.Token); err != nil {
		t.Errorf("repeated logout returned error: %v", err)
	}
}

func TestAuthenticateRejectsGarbageToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for _, tok := range []string{"", "garbage", "eyJhbGciOiJIUzI1NiJ9.e30.sig"} {
		if _, _, err := f.svc.Authenticate(ctx, tok); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("Authenticate(%q) error = %v, want ErrInvalidSession", tok, err)
		}
	}
}

func TestAuthenticateRejectsExpiredSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	result, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Force-expire the row. The validator re-reads the store on every
	// call, so the stale cache mirror must not mask this.
	if err := f.sessions.DeleteSession(ctx, result.User.UserID, result.Token); err != nil {
		t.Fatalf("DeleteSession returned error: %v", err)
	}
	expired := &model.Session{
		UserID:    result.User.UserID,
		Token:     result.Token,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := f.sessions.CreateSession(ctx, expired); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if _, _, err := f.svc.Authenticate(ctx, result.Token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expired session error = %v, want ErrInvalidSession", err)
	}
}

func TestSessionCacheMirrorsLifecycle(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	result, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	cached, err := f.svc.sessionCache.Get(ctx, result.Token)
	if err != nil {
		t.Fatalf("session not mirrored after login: %v", err)
	}
	if cached.UserID != result.User.UserID {
		t.Error("mirrored session belongs to wrong user")
	}

	if err := f.svc.Logout(ctx, result.User.UserID, result.Token); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, err := f.svc.sessionCache.Get(ctx, result.Token); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("mirror survived logout: %v", err)
	}
}

// recordingSessionCache captures the TTL each mirror entry was stored with.
type recordingSessionCache struct {
	*memory.SessionCache
	lastTTL time.Duration
}

func (c *recordingSessionCache) Put(ctx context.Context, session *model.Session, ttl time.Duration) error {
	c.lastTTL = ttl
	return c.SessionCache.Put(ctx, session, ttl)
}

func TestSessionLifetimeFollowsConfiguredTTL(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.cfg.Session.TTL = time.Hour

	before := time.Now().UTC()
	code := f.requestCode(t, testPhone)
	result, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	after := time.Now().UTC()

	session, err := f.sessions.GetSession(ctx, result.User.UserID, result.Token)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if session.ExpiresAt.Before(before.Add(time.Hour)) || session.ExpiresAt.After(after.Add(time.Hour)) {
		t.Errorf("session expiry %v not driven by the configured session TTL", session.ExpiresAt)
	}
	if !result.ExpiresAt.Equal(session.ExpiresAt) {
		t.Errorf("reported expiry %v differs from session expiry %v", result.ExpiresAt, session.ExpiresAt)
	}
}

func TestSessionCacheTTLCappedByRemainingLifetime(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	cache := &recordingSessionCache{SessionCache: memory.NewSessionCache()}
	f.svc.sessionCache = cache

	code := f.requestCode(t, testPhone)
	if _, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), ""); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if cache.lastTTL != f.cfg.Session.CacheTTL {
		t.Errorf("mirror TTL = %v, want configured cache TTL %v", cache.lastTTL, f.cfg.Session.CacheTTL)
	}

	// A session shorter than the cache TTL caps the mirror entry too.
	f.cfg.Session.TTL = 5 * time.Minute
	code = f.requestCode(t, testPhone)
	if _, err := f.svc.VerifyCode(ctx, testPhone, code, nil, ""); err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if cache.lastTTL != 5*time.Minute {
		t.Errorf("mirror TTL = %v, want the remaining session lifetime", cache.lastTTL)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	result, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	userID := result.User.UserID

	updated, err := f.svc.UpdateProfile(ctx, userID, &ProfileUpdateRequest{
		Email:    "asha@example.in",
		Location: "Madurai",
		Language: model.LanguageTamil,
	})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if updated.Name != "Asha" {
		t.Errorf("empty name overwrote existing value: %q", updated.Name)
	}
	if updated.Email != "asha@example.in" || updated.Location != "Madurai" || updated.Language != model.LanguageTamil {
		t.Errorf("profile not applied: %+v", updated)
	}

	if _, err := f.svc.UpdateProfile(ctx, userID, &ProfileUpdateRequest{Language: "xx"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad language error = %v, want ErrInvalidInput", err)
	}

	if _, err := f.svc.UpdateProfile(ctx, "no-such-user", &ProfileUpdateRequest{Name: "X"}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user error = %v, want ErrUserNotFound", err)
	}
}

func TestDeviceInfoRoundTrip(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	code := f.requestCode(t, testPhone)
	result, err := f.svc.VerifyCode(ctx, testPhone, code, asha(), `{"model":"Redmi 9","os":"android"}`)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	_, session, err := f.svc.Authenticate(ctx, result.Token)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if len(session.DeviceInfoEnc) == 0 {
		t.Fatal("device info not stored")
	}
	if strings.Contains(string(session.DeviceInfoEnc), "Redmi") {
		t.Error("device info stored in clear")
	}

	plain, err := f.svc.DecryptDeviceInfo(ctx, session)
	if err != nil {
		t.Fatalf("DecryptDeviceInfo returned error: %v", err)
	}
	if plain != `{"model":"Redmi 9","os":"android"}` {
		t.Errorf("decrypted device info = %q", plain)
	}
}

func TestGenerateCodePadsToLength(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode(6)
		if err != nil {
			t.Fatalf("generateCode returned error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q length = %d, want 6", code, len(code))
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q contains non-digit", code)
			}
		}
	}
}
