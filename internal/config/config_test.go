package config

import (
	"strings"
	"testing"
)

func productionConfig() *Config {
	cfg := &Config{Environment: "production"}
	cfg.JWT.Secret = strings.Repeat("k", 32)
	cfg.Hashing.PepperSecret = "pepper"
	return cfg
}

func TestValidateDevelopmentIsPermissive(t *testing.T) {
	cfg := &Config{Environment: "development"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("development config should not be rejected: %v", err)
	}
}

func TestValidateProductionRequiresJWTSecret(t *testing.T) {
	cfg := productionConfig()
	cfg.JWT.Secret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected empty JWT secret to be rejected in production")
	}

	cfg.JWT.Secret = "short"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected short JWT secret to be rejected in production")
	}

	cfg.JWT.Secret = strings.Repeat("k", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected 32-character secret to pass: %v", err)
	}
}

func TestValidateProductionRequiresPepper(t *testing.T) {
	cfg := productionConfig()
	cfg.Hashing.PepperSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected empty pepper secret to be rejected in production")
	}
}

func TestValidateProductionRequiresTLSMaterial(t *testing.T) {
	cfg := productionConfig()
	cfg.Server.EnableTLS = true

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing cert and key files to be rejected")
	}

	cfg.Server.CertFile = "/etc/ssl/agroguardian.crt"
	cfg.Server.KeyFile = "/etc/ssl/agroguardian.key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected file-based TLS config to pass: %v", err)
	}

	cfg.Server.CertFile = ""
	cfg.Server.KeyFile = ""
	cfg.Server.AutoCert = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected autocert TLS config to pass: %v", err)
	}
}
