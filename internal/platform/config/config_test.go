package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"POS_FIREBASE_PROJECT_ID": "gelomax-prod",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "gelomax-prod" {
		t.Fatalf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "gelomax-prod" {
		t.Fatalf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.InvoiceTopic != "invoice-emission" {
		t.Fatalf("unexpected invoice topic %s", cfg.PubSub.InvoiceTopic)
	}
	if cfg.Payments.Currency != "brl" {
		t.Fatalf("expected default currency brl, got %s", cfg.Payments.Currency)
	}
	if cfg.Payments.TerminalDelay != 2*time.Second {
		t.Fatalf("unexpected terminal delay %s", cfg.Payments.TerminalDelay)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != "https://accounts.google.com" {
		t.Fatalf("unexpected issuers %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.TTL != 24*time.Hour {
		t.Fatalf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	env := baseEnv()
	env["POS_SERVER_PORT"] = "9090"
	env["POS_FIRESTORE_PROJECT_ID"] = "gelomax-db"
	env["POS_PAYMENTS_TERMINAL_DELAY"] = "500ms"
	env["POS_SECURITY_OIDC_ISSUERS"] = "https://accounts.google.com, https://issuer.example.com"

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "gelomax-db" {
		t.Fatalf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Payments.TerminalDelay != 500*time.Millisecond {
		t.Fatalf("unexpected terminal delay %s", cfg.Payments.TerminalDelay)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Fatalf("expected two issuers, got %v", cfg.Security.OIDC.Issuers)
	}
}

func TestLoadNormalizesEnvMap(t *testing.T) {
	env := map[string]string{
		" POS_FIREBASE_PROJECT_ID ": " gelomax-prod ",
		"POS_SERVER_PORT":           "  9091",
		"   ":                       "ignored",
	}

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Firebase.ProjectID != "gelomax-prod" {
		t.Fatalf("expected trimmed firebase project, got %q", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "9091" {
		t.Fatalf("expected trimmed port 9091, got %q", cfg.Server.Port)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["POS_PAYMENTS_STRIPE_API_KEY"] = "sm://projects/gelomax/secrets/stripe/versions/latest"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/gelomax/secrets/stripe/versions/latest" {
			t.Fatalf("unexpected secret ref %q", ref)
		}
		return "sk_live_123", nil
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Payments.StripeAPIKey != "sk_live_123" {
		t.Fatalf("expected resolved secret, got %s", cfg.Payments.StripeAPIKey)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := baseEnv()
	env["POS_FISCAL_API_KEY"] = "secret://projects/gelomax/secrets/fiscal/versions/latest"

	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("permission denied")
	})

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)

	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	fields := validationErr.Fields()
	found := false
	for _, field := range fields {
		if field == "Firebase.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Firebase.ProjectID in %v", fields)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "POS_FIREBASE_PROJECT_ID=gelomax-local\nexport POS_SERVER_PORT=\"3000\"\n# comment\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(envFile),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Firebase.ProjectID != "gelomax-local" {
		t.Fatalf("expected project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "3000" {
		t.Fatalf("expected quoted export value, got %s", cfg.Server.Port)
	}
}
