package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "CONTACT_PRICE")
	unsetEnvWithCleanup(t, "APPROVAL_MODE")
	unsetEnvWithCleanup(t, "CORS_ALLOWED_ORIGINS")
	setEnvWithCleanup(t, "STORE_BACKEND", "memory")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.ContactPrice != 5 {
		t.Fatalf("expected default contact price 5, got %d", cfg.ContactPrice)
	}
	if cfg.ApprovalMode != ApprovalModeTwoStep {
		t.Fatalf("expected two_step approval mode, got %q", cfg.ApprovalMode)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected two default CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STORE_BACKEND", "memory")
	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "7000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_NormalizesApprovalMode(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "STORE_BACKEND", "memory")
	setEnvWithCleanup(t, "APPROVAL_MODE", "  DIRECT ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ApprovalMode != ApprovalModeDirect {
		t.Fatalf("expected direct approval mode, got %q", cfg.ApprovalMode)
	}
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "unknown approval mode",
			env:  map[string]string{"STORE_BACKEND": "memory", "APPROVAL_MODE": "auto"},
		},
		{
			name: "unknown store backend",
			env:  map[string]string{"STORE_BACKEND": "mongo"},
		},
		{
			name: "postgres without database url",
			env:  map[string]string{"STORE_BACKEND": "postgres", "DATABASE_URL": ""},
		},
		{
			name: "non-positive contact price",
			env:  map[string]string{"STORE_BACKEND": "memory", "CONTACT_PRICE": "0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			unsetEnvWithCleanup(t, "APPROVAL_MODE")
			unsetEnvWithCleanup(t, "CONTACT_PRICE")
			for k, v := range tt.env {
				setEnvWithCleanup(t, k, v)
			}

			if _, err := LoadConfig(t.TempDir()); err == nil {
				t.Fatalf("expected LoadConfig to fail")
			}
		})
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
