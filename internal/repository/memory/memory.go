// Package memory provides in-memory repository implementations used by
// unit tests and local experiments. Behavior mirrors the Scylla-backed
// repositories, including the single-winner consume semantics.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agroguardian-api/internal/model"
)

// -------------------- USERS --------------------

type UserRepo struct {
	mu      sync.RWMutex
	users   map[string]*model.User // user_id -> user
	byPhone map[string]string      // phone -> user_id
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		users:   make(map[string]*model.User),
		byPhone: make(map[string]string),
	}
}

func (r *UserRepo) CreateUser(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byPhone[user.Phone]; taken {
		return model.ErrAlreadyExists
	}
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	r.users[user.UserID] = &cp
	r.byPhone[user.Phone] = user.UserID
	return nil
}

func (r *UserRepo) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) GetUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPhone[phone]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *r.users[id]
	return &cp, nil
}

func (r *UserRepo) UpdateProfile(ctx context.Context, userID string, name, email, location, language string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return model.ErrNotFound
	}
	u.Name = name
	u.Email = email
	u.Location = location
	u.Language = language
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepo) SetVerified(ctx context.Context, userID string, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return model.ErrNotFound
	}
	u.IsVerified = verified
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepo) HealthCheck(ctx context.Context) error { return nil }

// -------------------- OTPS --------------------

type OTPRepo struct {
	mu    sync.Mutex
	codes map[string][]*model.OneTimeCode // phone -> codes
}

func NewOTPRepo() *OTPRepo {
	return &OTPRepo{codes: make(map[string][]*model.OneTimeCode)}
}

// ReplaceCode drops every prior code for the phone before installing the
// new one, so at most one code per phone is ever live.
func (r *OTPRepo) ReplaceCode(ctx context.Context, code *model.OneTimeCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code.OTPID == "" {
		code.OTPID = uuid.New().String()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	cp := *code
	r.codes[code.Phone] = []*model.OneTimeCode{&cp}
	return nil
}

func (r *OTPRepo) GetLatestByPhone(ctx context.Context, phone string) (*model.OneTimeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := r.codes[phone]
	if len(codes) == 0 {
		return nil, model.ErrNotFound
	}
	latest := codes[0]
	for _, c := range codes[1:] {
		if c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	cp := *latest
	return &cp, nil
}

func (r *OTPRepo) ConsumeCode(ctx context.Context, phone, otpID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes[phone] {
		if c.OTPID == otpID {
			if c.IsUsed {
				return false, nil
			}
			c.IsUsed = true
			return true, nil
		}
	}
	return false, nil
}

func (r *OTPRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for phone, codes := range r.codes {
		kept := codes[:0]
		for _, c := range codes {
			if c.CreatedAt.After(cutoff) {
				kept = append(kept, c)
			} else {
				deleted++
			}
		}
		if len(kept) == 0 {
			delete(r.codes, phone)
		} else {
			r.codes[phone] = kept
		}
	}
	return deleted, nil
}

func (r *OTPRepo) HealthCheck(ctx context.Context) error { return nil }

// -------------------- SESSIONS --------------------

type sessionKey struct {
	userID string
	token  string
}

type SessionRepo struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*model.Session
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{sessions: make(map[sessionKey]*model.Session)}
}

func (r *SessionRepo) CreateSession(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.SessionID == "" {
		session.SessionID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	cp := *session
	r.sessions[sessionKey{session.UserID, session.Token}] = &cp
	return nil
}

func (r *SessionRepo) GetSession(ctx context.Context, userID, token string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionKey{userID, token}]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepo) DeleteSession(ctx context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionKey{userID, token})
	return nil
}

func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for k, s := range r.sessions {
		if !s.Valid(now) {
			delete(r.sessions, k)
			deleted++
		}
	}
	return deleted, nil
}

func (r *SessionRepo) HealthCheck(ctx context.Context) error { return nil }

// -------------------- DETECTIONS --------------------

type DetectionRepo struct {
	mu         sync.RWMutex
	detections map[string][]*model.Detection // user_id -> detections
}

func NewDetectionRepo() *DetectionRepo {
	return &DetectionRepo{detections: make(map[string][]*model.Detection)}
}

func (r *DetectionRepo) CreateDetection(ctx context.Context, det *model.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if det.DetectionID == "" {
		det.DetectionID = uuid.New().String()
	}
	if det.DetectedAt.IsZero() {
		det.DetectedAt = time.Now().UTC()
	}
	cp := *det
	r.detections[det.UserID] = append(r.detections[det.UserID], &cp)
	return nil
}

func (r *DetectionRepo) GetDetection(ctx context.Context, userID, detectionID string) (*model.Detection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.detections[userID] {
		if d.DetectionID == detectionID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r *DetectionRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Detection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := copyDetections(r.detections[userID])
	sortDetectionsDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *DetectionRepo) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]*model.Detection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Detection
	for _, d := range r.detections[userID] {
		if !d.DetectedAt.Before(from) && !d.DetectedAt.After(to) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sortDetectionsDesc(out)
	return out, nil
}

func (r *DetectionRepo) ListSince(ctx context.Context, since time.Time) ([]*model.Detection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Detection
	for _, list := range r.detections {
		for _, d := range list {
			if !d.DetectedAt.Before(since) {
				cp := *d
				out = append(out, &cp)
			}
		}
	}
	sortDetectionsDesc(out)
	return out, nil
}

func (r *DetectionRepo) HealthCheck(ctx context.Context) error { return nil }

func copyDetections(src []*model.Detection) []*model.Detection {
	out := make([]*model.Detection, 0, len(src))
	for _, d := range src {
		cp := *d
		out = append(out, &cp)
	}
	return out
}

func sortDetectionsDesc(list []*model.Detection) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].DetectedAt.After(list[j].DetectedAt)
	})
}

// -------------------- NOTIFICATIONS --------------------

type NotificationRepo struct {
	mu            sync.RWMutex
	notifications map[string][]*model.Notification // user_id -> notifications
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{notifications: make(map[string][]*model.Notification)}
}

func (r *NotificationRepo) CreateNotification(ctx context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.NotificationID == "" {
		n.NotificationID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	cp := *n
	r.notifications[n.UserID] = append(r.notifications[n.UserID], &cp)
	return nil
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit int, unreadOnly bool) ([]*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Notification
	for _, n := range r.notifications[userID] {
		if unreadOnly && n.IsRead {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, userID, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications[userID] {
		if n.NotificationID == notificationID {
			n.IsRead = true
			return nil
		}
	}
	return model.ErrNotFound
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications[userID] {
		n.IsRead = true
	}
	return nil
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, n := range r.notifications[userID] {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) HealthCheck(ctx context.Context) error { return nil }

// -------------------- WEEKLY REPORTS --------------------

type WeeklyReportRepo struct {
	mu      sync.RWMutex
	reports map[string][]*model.WeeklyReport
}

func NewWeeklyReportRepo() *WeeklyReportRepo {
	return &WeeklyReportRepo{reports: make(map[string][]*model.WeeklyReport)}
}

func (r *WeeklyReportRepo) CreateReport(ctx context.Context, report *model.WeeklyReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if report.ReportID == "" {
		report.ReportID = uuid.New().String()
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}
	cp := *report
	r.reports[report.UserID] = append(r.reports[report.UserID], &cp)
	return nil
}

func (r *WeeklyReportRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.WeeklyReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.WeeklyReport, 0, len(r.reports[userID]))
	for _, rep := range r.reports[userID] {
		cp := *rep
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *WeeklyReportRepo) HealthCheck(ctx context.Context) error { return nil }
