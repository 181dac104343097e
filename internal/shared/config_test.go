package shared

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnvs(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("JWT_SECRET", "0123456789abcdef")
}

func TestLoadSuccess(t *testing.T) {
	setRequiredEnvs(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("MAINT_WORKERS", "3")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("HTTPAddr = %s, want :9090", cfg.HTTPAddr)
	}
	if cfg.CacheTTL != time.Minute {
		t.Fatalf("CacheTTL = %s, want 1m", cfg.CacheTTL)
	}
	if cfg.MaintWorkers != 3 {
		t.Fatalf("MaintWorkers = %d, want 3", cfg.MaintWorkers)
	}
	if cfg.RedisDB != 2 {
		t.Fatalf("RedisDB = %d, want 2", cfg.RedisDB)
	}
	if cfg.LeaderboardSize != 50 {
		t.Fatalf("LeaderboardSize = %d, want default 50", cfg.LeaderboardSize)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T)
		wantErr string
	}{
		{
			name: "unknown store driver",
			setup: func(t *testing.T) {
				setRequiredEnvs(t)
				t.Setenv("STORE_DRIVER", "sqlite")
			},
			wantErr: "STORE_DRIVER",
		},
		{
			name: "short jwt secret",
			setup: func(t *testing.T) {
				setRequiredEnvs(t)
				t.Setenv("JWT_SECRET", "short")
			},
			wantErr: "JWT_SECRET",
		},
		{
			name: "remote auth without key",
			setup: func(t *testing.T) {
				setRequiredEnvs(t)
				t.Setenv("AUTH_MODE", "remote")
				t.Setenv("IDENTITY_API_KEY", "")
			},
			wantErr: "IDENTITY_API_KEY",
		},
		{
			name: "unknown auth mode",
			setup: func(t *testing.T) {
				setRequiredEnvs(t)
				t.Setenv("AUTH_MODE", "basic")
			},
			wantErr: "AUTH_MODE",
		},
		{
			name: "zero workers",
			setup: func(t *testing.T) {
				setRequiredEnvs(t)
				t.Setenv("MAINT_WORKERS", "0")
			},
			wantErr: "MAINT_WORKERS",
		},
		{
			name: "negative cache ttl",
			setup: func(t *testing.T) {
				setRequiredEnvs(t)
				t.Setenv("CACHE_TTL_SECONDS", "-1")
			},
			wantErr: "CACHE_TTL_SECONDS",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.setup(t)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Load() error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadMaintenanceIgnoresAuth(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() should require JWT_SECRET")
	}
	cfg, err := LoadMaintenance()
	if err != nil {
		t.Fatalf("LoadMaintenance() unexpected error: %v", err)
	}
	if cfg.StoreDriver != "memory" {
		t.Fatalf("StoreDriver = %s, want memory", cfg.StoreDriver)
	}
}
