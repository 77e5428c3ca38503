package database_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/invoiceflow/pkg/database"
	"github.com/JaimeStill/invoiceflow/pkg/lifecycle"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFinalizeDefaults(t *testing.T) {
	cfg := database.Config{Name: "testdb", User: "testuser"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"driver", cfg.Driver, database.DriverPostgres},
		{"host", cfg.Host, "localhost"},
		{"port", cfg.Port, 5432},
		{"ssl_mode", cfg.SSLMode, "disable"},
		{"max_open_conns", cfg.MaxOpenConns, 25},
		{"conn_timeout", cfg.ConnTimeout, "5s"},
		{"driver_name", cfg.DriverName(), "pgx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %v, want %v", tt.got, tt.expected)
			}
		})
	}
}

func TestFinalizeEnvOverrides(t *testing.T) {
	t.Setenv("TEST_DB_DRIVER", "sqlite")
	t.Setenv("TEST_DB_PATH", "/tmp/runs.db")
	t.Setenv("TEST_DB_TIMEOUT", "10s")

	env := &database.Env{
		Driver:      "TEST_DB_DRIVER",
		Path:        "TEST_DB_PATH",
		ConnTimeout: "TEST_DB_TIMEOUT",
	}

	cfg := database.Config{}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if cfg.Driver != database.DriverSQLite {
		t.Errorf("driver: got %s, want sqlite", cfg.Driver)
	}
	if cfg.Dsn() != "/tmp/runs.db" {
		t.Errorf("dsn: got %s, want /tmp/runs.db", cfg.Dsn())
	}
	if cfg.ConnTimeoutDuration() != 10*time.Second {
		t.Errorf("conn_timeout: got %v, want 10s", cfg.ConnTimeoutDuration())
	}
}

func TestFinalizeValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     database.Config
		wantErr string
	}{
		{
			name:    "missing name",
			cfg:     database.Config{User: "testuser"},
			wantErr: "name required",
		},
		{
			name:    "missing user",
			cfg:     database.Config{Name: "testdb"},
			wantErr: "user required",
		},
		{
			name:    "unsupported driver",
			cfg:     database.Config{Driver: "oracle"},
			wantErr: "unsupported driver",
		},
		{
			name:    "invalid conn_timeout",
			cfg:     database.Config{Driver: "sqlite", ConnTimeout: "bad"},
			wantErr: "invalid conn_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := database.Config{Driver: "postgres", Host: "localhost", Name: "basedb", User: "baseuser"}
	base.Merge(&database.Config{Driver: "sqlite", Path: "local.db"})

	if base.Driver != "sqlite" || base.Path != "local.db" {
		t.Errorf("overlay not applied: %+v", base)
	}
	if base.Name != "basedb" {
		t.Errorf("name: got %s, want basedb", base.Name)
	}
}

func TestSQLiteLifecycle(t *testing.T) {
	cfg := database.Config{Driver: database.DriverSQLite, Path: ":memory:"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	sys, err := database.New(&cfg, discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if sys.Driver() != database.DriverSQLite {
		t.Errorf("driver: got %s", sys.Driver())
	}
	if got := sys.Connection().Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}

	lc := lifecycle.New()
	if err := sys.Start(lc); err != nil {
		t.Fatalf("start: %v", err)
	}
	lc.WaitForStartup()

	if err := sys.Connection().Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if err := lc.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
