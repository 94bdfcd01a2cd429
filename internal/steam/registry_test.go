package steam

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mmcdole/depotdump/internal/config"
	"github.com/mmcdole/depotdump/internal/domain"
)

type nopClient struct{}

func (nopClient) AppInfo(context.Context, uint32) (domain.AppInfo, error) {
	return domain.AppInfo{}, nil
}
func (nopClient) OwnedDepots(context.Context, uint32) ([]uint32, error) { return nil, nil }
func (nopClient) Manifests(context.Context, uint32, uint32) ([]domain.ManifestRef, error) {
	return nil, nil
}
func (nopClient) DepotKey(context.Context, uint32, uint32) ([]byte, error) { return nil, nil }
func (nopClient) DownloadManifest(context.Context, uint32, uint32, uint64, string) error {
	return nil
}
func (nopClient) Close() error { return nil }

func loggedInConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Credentials.UseQRLogin = true
	return cfg
}

func TestRegistryNewClient(t *testing.T) {
	r := NewRegistry()
	factory := func(*config.Config, *slog.Logger) (domain.SteamClient, error) { return nopClient{}, nil }

	if err := r.Register("steamkit", factory); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("steamkit", factory); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}

	if _, err := r.NewClient("", loggedInConfig(), nil); err != nil {
		t.Fatalf("sole backend should be picked by default: %v", err)
	}
	if _, err := r.NewClient("other", loggedInConfig(), nil); !errors.Is(err, domain.ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
}

func TestEmptyRegistryExplainsLinking(t *testing.T) {
	_, err := NewRegistry().NewClient("", loggedInConfig(), nil)
	if !errors.Is(err, domain.ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
	if !strings.Contains(err.Error(), "DefaultRegistry.Register") {
		t.Fatalf("error should say how to link a backend: %v", err)
	}
}

func TestRegistryRequiresCredentials(t *testing.T) {
	r := NewRegistry()
	if _, err := r.NewClient("", config.DefaultConfig(), nil); err == nil {
		t.Fatal("expected missing credentials error")
	}
}
