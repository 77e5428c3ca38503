package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/JaimeStill/invoiceflow/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=invoicestore;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/invoicestore;"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfigFinalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     storage.Config
		wantErr string
	}{
		{name: "memory default", cfg: storage.Config{}},
		{name: "azure connection string", cfg: storage.Config{Provider: "azure", ConnectionString: azuriteConnString}},
		{name: "azure service url", cfg: storage.Config{Provider: "azure", ServiceURL: "https://acct.blob.core.windows.net"}},
		{name: "azure missing auth", cfg: storage.Config{Provider: "azure"}, wantErr: "connection_string or service_url required"},
		{name: "unknown provider", cfg: storage.Config{Provider: "s3"}, wantErr: "unsupported provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if tt.cfg.ContainerName != "invoices" {
					t.Errorf("container: got %s, want invoices", tt.cfg.ContainerName)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigEnv(t *testing.T) {
	t.Setenv("TEST_STORAGE_PROVIDER", "azure")
	t.Setenv("TEST_STORAGE_SERVICE_URL", "https://acct.blob.core.windows.net")

	cfg := storage.Config{}
	err := cfg.Finalize(&storage.Env{
		Provider:   "TEST_STORAGE_PROVIDER",
		ServiceURL: "TEST_STORAGE_SERVICE_URL",
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if cfg.Provider != storage.ProviderAzure {
		t.Errorf("provider: got %s", cfg.Provider)
	}
}

func TestNewAzure(t *testing.T) {
	sys, err := storage.New(&storage.Config{
		Provider:         storage.ProviderAzure,
		ContainerName:    "invoices",
		ConnectionString: azuriteConnString,
	}, discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if sys == nil {
		t.Fatal("New() returned nil system")
	}

	_, err = storage.New(&storage.Config{
		Provider:         storage.ProviderAzure,
		ContainerName:    "invoices",
		ConnectionString: "not-a-connection-string",
	}, discard())
	if err == nil {
		t.Fatal("expected error for invalid connection string")
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	sys, err := storage.New(&storage.Config{Provider: storage.ProviderMemory}, discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := sys.Upload(ctx, "runs/1/payload.json", bytes.NewReader([]byte(`{"a":1}`)), "application/json"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	ok, err := sys.Exists(ctx, "runs/1/payload.json")
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}

	rc, err := sys.Download(ctx, "runs/1/payload.json")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != `{"a":1}` {
		t.Errorf("data = %s", data)
	}

	if err := sys.Delete(ctx, "runs/1/payload.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"missing", "runs/1/payload.json", storage.ErrNotFound},
		{"empty key", "", storage.ErrEmptyKey},
		{"traversal", "../etc/passwd", storage.ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := sys.Download(ctx, tt.key); !errors.Is(err, tt.want) {
				t.Errorf("download err = %v, want %v", err, tt.want)
			}
		})
	}
}
