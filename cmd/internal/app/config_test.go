package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TIENDA_HTTP_ADDR", "")
	t.Setenv("TIENDA_DATABASE_URL", "")
	t.Setenv("TIENDA_CORS_ALLOWED_ORIGINS", "")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr default: %q", cfg.HTTPAddr)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL default not empty: %q", cfg.DatabaseURL)
	}
	if cfg.DBSchema != "tienda" {
		t.Fatalf("DBSchema default: %q", cfg.DBSchema)
	}
	if cfg.WriteTimeout != 0 {
		t.Fatalf("WriteTimeout default must be 0 for websocket sessions, got %v", cfg.WriteTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORS defaults: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TIENDA_HTTP_ADDR", "127.0.0.1:9090")
	t.Setenv("TIENDA_LOG_LEVEL", "debug")
	t.Setenv("TIENDA_HTTP_IDLE_TIMEOUT", "90s")
	t.Setenv("TIENDA_DB_MAX_CONNS", "25")
	t.Setenv("TIENDA_READINESS_REQUIRE_DB", "true")
	t.Setenv("TIENDA_CORS_ALLOWED_ORIGINS", "https://tienda.example, https://admin.tienda.example")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9090" {
		t.Fatalf("HTTPAddr: %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel: %q", cfg.LogLevel)
	}
	if cfg.IdleTimeout != 90*time.Second {
		t.Fatalf("IdleTimeout: %v", cfg.IdleTimeout)
	}
	if cfg.DBMaxConns != 25 {
		t.Fatalf("DBMaxConns: %d", cfg.DBMaxConns)
	}
	if !cfg.ReadinessRequireDB {
		t.Fatalf("ReadinessRequireDB not set")
	}
	want := []string{"https://tienda.example", "https://admin.tienda.example"}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[0] != want[0] || cfg.CORSAllowedOrigins[1] != want[1] {
		t.Fatalf("CORSAllowedOrigins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestEnvHelpersRejectGarbage(t *testing.T) {
	t.Setenv("TIENDA_TEST_INT", "not-a-number")
	if got := EnvInt("TIENDA_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt fallback: %d", got)
	}

	t.Setenv("TIENDA_TEST_DUR", "-5s")
	if got := EnvDuration("TIENDA_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration fallback: %v", got)
	}

	t.Setenv("TIENDA_TEST_BOOL", "maybe")
	if got := EnvBool("TIENDA_TEST_BOOL", true); !got {
		t.Fatalf("EnvBool fallback: %v", got)
	}
}
