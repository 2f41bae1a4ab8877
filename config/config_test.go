package config

import (
	"strings"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_CLIENT_ID", "cid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_OAUTH_CALLBACK", "https://broker.example/google/callback")
	t.Setenv("IDENTITY_URL", "https://id.example")
	t.Setenv("IDENTITY_SERVICE_KEY", "service-key")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
}

func TestLoad(t *testing.T) {
	setRequired(t)
	t.Setenv("FRONTEND_BASE_URL", "https://app.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GoogleClientID != "cid" {
		t.Errorf("unexpected client id: %q", cfg.GoogleClientID)
	}
	if cfg.FrontendBaseURL != "https://app.example" {
		t.Errorf("unexpected frontend url: %q", cfg.FrontendBaseURL)
	}
	if cfg.HTTPAddress != ":8080" {
		t.Errorf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.MongoDatabase != "leadclient" {
		t.Errorf("expected default database name, got %q", cfg.MongoDatabase)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	t.Setenv("IDENTITY_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error for missing configuration")
	}
	msg := err.Error()
	if !strings.Contains(msg, "GOOGLE_CLIENT_SECRET") || !strings.Contains(msg, "IDENTITY_URL") {
		t.Errorf("error should name the missing variables: %s", msg)
	}
}
