package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"agroguardian-api/internal/config"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by every access token. UserID and Phone are enough for
// downstream handlers to act without touching the users table.
type Claims struct {
	UserID string `json:"userId"`
	Phone  string `json:"phone"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 access tokens. A token is only half
// of a valid login: the session row backing it is checked separately,
// so logout revokes tokens that would otherwise verify fine.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		secret: []byte(cfg.JWT.Secret),
		issuer: cfg.JWT.Issuer,
		ttl:    cfg.JWT.TTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.JWT.Issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Sign mints a token for the user. The expiry embedded in the token
// mirrors the session row's expires_at.
func (m *Manager) Sign(userID, phone string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(m.ttl)

	claims := Claims{
		UserID: userID,
		Phone:  phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Verify parses and validates a token, returning its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := m.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" || claims.Phone == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
