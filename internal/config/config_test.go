package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("AVAILABILITY_TTL_SECONDS", "-5")
	t.Setenv("RETRY_MAX_ATTEMPTS", "abc")
	t.Setenv("VAT_RATE_PERCENT", "")
	t.Setenv("DEPLOY_CONCURRENCY", "8")

	cfg := Load()
	if cfg.AvailabilityTTL() != 60*time.Second {
		t.Fatalf("expected default availability ttl, got %s", cfg.AvailabilityTTL())
	}
	if cfg.RetryMaxAttempts != 5 || cfg.VATRatePercent != 12 || cfg.DeployConcurrency != 8 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("CROFFLE_TEST_FROM_FILE=file\nCROFFLE_TEST_PRESET=file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CROFFLE_TEST_PRESET", "env")
	t.Setenv("CROFFLE_TEST_FROM_FILE", "")
	os.Unsetenv("CROFFLE_TEST_FROM_FILE")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("CROFFLE_TEST_FROM_FILE"); got != "file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("CROFFLE_TEST_PRESET"); got != "env" {
		t.Fatalf("expected environment to win, got %q", got)
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}

func TestValidateSecurity(t *testing.T) {
	strongSecret := "0123456789abcdef0123456789abcdef"
	cases := []struct {
		name    string
		secret  string
		pin     string
		wantErr bool
	}{
		{"short secret", "short", "739154", true},
		{"short pin", strongSecret, "7391", true},
		{"common pin", strongSecret, "123456", true},
		{"same digit", strongSecret, "444444", true},
		{"descending", strongSecret, "987654", true},
		{"non numeric", strongSecret, "73a154", true},
		{"strong", strongSecret, "739154", false},
	}
	for _, tc := range cases {
		err := Config{AuthSecret: tc.secret, ManagerPIN: tc.pin}.ValidateSecurity()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: wantErr=%t, got %v", tc.name, tc.wantErr, err)
		}
	}
}
