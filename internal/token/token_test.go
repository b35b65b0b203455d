package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"agroguardian-api/internal/config"
)

func testManager(secret string) *Manager {
	return NewManager(&config.Config{
		JWT: config.JWTConfig{
			Secret: secret,
			Issuer: "agroguardian-api",
			TTL:    30 * 24 * time.Hour,
		},
	})
}

func TestSignAndVerify(t *testing.T) {
	m := testManager("unit-test-secret")
	now := time.Now().UTC()

	signed, expiresAt, err := m.Sign("user-123", "+911234567890", now)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if want := now.Add(30 * 24 * time.Hour); !expiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, want)
	}

	claims, err := m.Verify(signed)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Errorf("UserID = %q", claims.UserID)
	}
	if claims.Phone != "+911234567890" {
		t.Errorf("Phone = %q", claims.Phone)
	}
	if claims.Subject != "user-123" {
		t.Errorf("Subject = %q", claims.Subject)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signed, _, err := testManager("secret-a").Sign("user-123", "+911234567890", time.Now().UTC())
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if _, err := testManager("secret-b").Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := testManager("unit-test-secret")
	signed, _, err := m.Sign("user-123", "+911234567890", time.Now().UTC().Add(-31*24*time.Hour))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if _, err := m.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	m := testManager("unit-test-secret")

	claims := Claims{
		UserID: "user-123",
		Phone:  "+911234567890",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "agroguardian-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing with none failed: %v", err)
	}

	if _, err := m.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	m := testManager("unit-test-secret")

	claims := Claims{
		UserID: "user-123",
		Phone:  "+911234567890",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unit-test-secret"))
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	if _, err := m.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsEmptyIdentity(t *testing.T) {
	m := testManager("unit-test-secret")

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "agroguardian-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unit-test-secret"))
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	if _, err := m.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}
