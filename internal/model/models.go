package model

import "time"

// Languages the mobile clients can render.
const (
	LanguageEnglish = "en"
	LanguageHindi   = "hi"
	LanguageTamil   = "ta"
	LanguageBengali = "bn"
)

// ValidLanguage reports whether lang is one of the supported UI languages.
func ValidLanguage(lang string) bool {
	switch lang {
	case LanguageEnglish, LanguageHindi, LanguageTamil, LanguageBengali:
		return true
	}
	return false
}

// -------------------- USER MODEL --------------------
type User struct {
	UserBucket int       `json:"-" db:"user_bucket"`
	UserID     string    `json:"id" db:"user_id"` // UUID
	Phone      string    `json:"phone" db:"phone"`
	Email      string    `json:"email" db:"email"`
	Name       string    `json:"name" db:"name"`
	Location   string    `json:"location" db:"location"`
	Language   string    `json:"language" db:"language"`
	IsVerified bool      `json:"is_verified" db:"is_verified"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// PublicProfile is the subset of user fields exposed to clients and
// downstream handlers. The token and session internals never leave the
// auth service.
type PublicProfile struct {
	ID       string `json:"id"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Language string `json:"language"`
}

// Public returns the client-facing view of the user.
func (u *User) Public() *PublicProfile {
	return &PublicProfile{
		ID:       u.UserID,
		Phone:    u.Phone,
		Email:    u.Email,
		Name:     u.Name,
		Location: u.Location,
		Language: u.Language,
	}
}

// -------------------- OTP MODEL --------------------
// OneTimeCode is stored hashed; the cleartext code only exists in the
// SMS/email payloads. At most one usable code per phone at any instant —
// issuing a new code supersedes all prior ones for the phone.
type OneTimeCode struct {
	OTPID         string    `json:"otp_id" db:"otp_id"` // UUID
	Phone         string    `json:"phone" db:"phone"`
	CodeHash      string    `json:"-" db:"code_hash"`
	CodeSalt      string    `json:"-" db:"code_salt"`
	PepperVersion int       `json:"-" db:"pepper_version"`
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
	IsUsed        bool      `json:"is_used" db:"is_used"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Usable reports whether the code can still satisfy a verification at t.
func (c *OneTimeCode) Usable(t time.Time) bool {
	return !c.IsUsed && t.Before(c.ExpiresAt)
}

// -------------------- SESSION MODEL --------------------
// Session is valid iff ExpiresAt is in the future. Tokens stay valid on
// reuse; only logout or passive expiry end a session. A user may hold any
// number of concurrent sessions.
type Session struct {
	SessionID       string    `json:"session_id" db:"session_id"` // UUID
	UserID          string    `json:"user_id" db:"user_id"`
	Token           string    `json:"-" db:"token"`
	DeviceInfoEnc   []byte    `json:"-" db:"device_info_enc"`
	DeviceInfoDEK   []byte    `json:"-" db:"device_info_dek"`
	DeviceInfoKeyID string    `json:"-" db:"device_info_key_id"`
	ExpiresAt       time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Valid reports whether the session is live at t.
func (s *Session) Valid(t time.Time) bool {
	return t.Before(s.ExpiresAt)
}

// -------------------- DETECTION MODEL --------------------
const HealthyCropDisease = "Healthy Crop"

type Detection struct {
	DetectionID        string    `json:"id" db:"detection_id"` // UUID
	UserID             string    `json:"user_id" db:"user_id"`
	CropType           string    `json:"crop" db:"crop_type"`
	DiseaseName        string    `json:"disease" db:"disease_name"`
	Confidence         float64   `json:"confidence" db:"confidence"`
	ImageData          []byte    `json:"-" db:"image_data"`
	Remedy             string    `json:"remedy" db:"remedy"`
	PreventiveMeasures []string  `json:"preventive_measures" db:"preventive_measures"`
	Location           string    `json:"location,omitempty" db:"location"`
	WeatherConditions  string    `json:"weather_conditions,omitempty" db:"weather_conditions"`
	DetectedAt         time.Time `json:"timestamp" db:"detected_at"`
}

// Healthy reports whether the detection found no disease.
func (d *Detection) Healthy() bool {
	return d.DiseaseName == HealthyCropDisease
}

// -------------------- NOTIFICATION MODEL --------------------
const (
	NotificationDiseaseAlert      = "disease_alert"
	NotificationWeatherWarning    = "weather_warning"
	NotificationTreatmentReminder = "treatment_reminder"
	NotificationWeeklyReport      = "weekly_report"
)

type Notification struct {
	NotificationID string    `json:"id" db:"notification_id"` // UUID
	UserID         string    `json:"user_id" db:"user_id"`
	Title          string    `json:"title" db:"title"`
	Message        string    `json:"message" db:"message"`
	Type           string    `json:"type" db:"type"`
	IsRead         bool      `json:"is_read" db:"is_read"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// -------------------- WEEKLY REPORT MODEL --------------------
type WeeklyReport struct {
	ReportID          string    `json:"id" db:"report_id"` // UUID
	UserID            string    `json:"user_id" db:"user_id"`
	WeekStart         time.Time `json:"week_start" db:"week_start"`
	WeekEnd           time.Time `json:"week_end" db:"week_end"`
	TotalDetections   int       `json:"total_detections" db:"total_detections"`
	HealthyCrops      int       `json:"healthy_crops" db:"healthy_crops"`
	DiseasedCrops     int       `json:"diseased_crops" db:"diseased_crops"`
	MostCommonDisease string    `json:"most_common_disease,omitempty" db:"most_common_disease"`
	ReportData        string    `json:"report_data,omitempty" db:"report_data"`
	GeneratedAt       time.Time `json:"generated_at" db:"generated_at"`
}
