package config

import (
	"testing"
	"time"
)

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresProviderCreds(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "safescan", SSLMode: "require"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "safescan", JWTAudience: "api"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without Exotel/TURN credentials")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "safescan", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Exotel.RingTimeout != 30*time.Second {
		t.Fatalf("expected 30s ring timeout default, got %v", c.Exotel.RingTimeout)
	}
	if c.Exotel.MaxCallDuration != 10*time.Minute {
		t.Fatalf("expected 10m call cap default, got %v", c.Exotel.MaxCallDuration)
	}
	if c.Turn.CredentialTTL != time.Hour {
		t.Fatalf("expected 1h TURN credential TTL default, got %v", c.Turn.CredentialTTL)
	}
	if c.Turn.Realm == "" {
		t.Fatalf("expected a default TURN realm")
	}
}

func TestValidate_RefreshMustOutliveAccess(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "safescan"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth: AuthConfig{
			JWTSecret:       "secret",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: time.Minute,
		},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error when refresh TTL <= access TTL")
	}
}
