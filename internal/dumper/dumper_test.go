package dumper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/depotdump/internal/config"
	"github.com/mmcdole/depotdump/internal/domain"
	"github.com/mmcdole/depotdump/internal/dumpfile"
	applog "github.com/mmcdole/depotdump/internal/log"
	"github.com/mmcdole/depotdump/internal/store"
)

type fakeApp struct {
	name   string
	depots []uint32
}

// fakeClient serves a fixed catalog and records downloads
type fakeClient struct {
	apps        map[uint32]fakeApp
	manifests   map[uint32][]domain.ManifestRef
	keyErrs     map[uint32]error
	downloadErr map[uint64]error

	mu         sync.Mutex
	downloaded []uint64
}

func (c *fakeClient) AppInfo(_ context.Context, appID uint32) (domain.AppInfo, error) {
	a, ok := c.apps[appID]
	if !ok {
		return domain.AppInfo{}, domain.ErrAppNotFound
	}
	return domain.AppInfo{AppID: appID, Name: a.name, LastUpdated: time.Unix(1700000000, 0).UTC()}, nil
}

func (c *fakeClient) OwnedDepots(_ context.Context, appID uint32) ([]uint32, error) {
	return c.apps[appID].depots, nil
}

func (c *fakeClient) Manifests(_ context.Context, _, depotID uint32) ([]domain.ManifestRef, error) {
	return c.manifests[depotID], nil
}

func (c *fakeClient) DepotKey(_ context.Context, _, depotID uint32) ([]byte, error) {
	if err := c.keyErrs[depotID]; err != nil {
		return nil, err
	}
	return []byte{byte(depotID >> 8), byte(depotID)}, nil
}

func (c *fakeClient) DownloadManifest(_ context.Context, _, _ uint32, manifestID uint64, dest string) error {
	if err := c.downloadErr[manifestID]; err != nil {
		return err
	}
	c.mu.Lock()
	c.downloaded = append(c.downloaded, manifestID)
	c.mu.Unlock()
	return os.WriteFile(dest, []byte("manifest"), 0o644)
}

func (c *fakeClient) Close() error { return nil }

func newCatalog() *fakeClient {
	return &fakeClient{
		apps: map[uint32]fakeApp{
			440: {name: "Team Fortress 2", depots: []uint32{441, 442, 443}},
			730: {name: "Counter-Strike 2", depots: []uint32{731}},
			570: {name: "Dota 2", depots: []uint32{571}},
		},
		manifests: map[uint32][]domain.ManifestRef{
			441: {{ManifestID: 1001, Branch: "public"}, {ManifestID: 1002, Branch: "beta"}},
			442: {{ManifestID: 2001, Branch: "public"}},
			731: {{ManifestID: 3001, Branch: "public"}},
			571: {{ManifestID: 4001, Branch: "public"}},
		},
		keyErrs: map[uint32]error{
			442: errors.New("key request timed out"),
			443: domain.ErrDepotUnavailable,
		},
		downloadErr: map[uint64]error{},
	}
}

func newTestConfig(t *testing.T, apps ...uint32) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output.DumpDirectory = t.TempDir()
	for _, id := range apps {
		cfg.AddApp(id)
	}
	return cfg
}

func newTestDumper(t *testing.T, cfg *config.Config, client domain.SteamClient, history domain.RunStore) *Dumper {
	t.Helper()
	ids := 0
	return New(cfg, client, history, applog.NullLogger(),
		WithClock(func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { ids++; return fmt.Sprintf("run-%d", ids) }),
	)
}

func TestRunIsolatesDepotFailures(t *testing.T) {
	cfg := newTestConfig(t, 440, 730, 570)
	cfg.ToggleExcluded(570)
	history, _ := store.NewHistoryStore("")

	op, err := newTestDumper(t, cfg, newCatalog(), history).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if op.TotalApps != 3 || op.SkippedApps != 1 || op.SuccessfulApps != 1 || op.FailedApps != 1 {
		t.Fatalf("app counters mismatch: total=%d ok=%d failed=%d skipped=%d",
			op.TotalApps, op.SuccessfulApps, op.FailedApps, op.SkippedApps)
	}
	if len(op.Apps) != 2 || op.Apps[0].AppID != 440 || op.Apps[1].AppID != 730 {
		t.Fatalf("apps should be recorded in ascending order without the excluded one: %+v", op.Apps)
	}

	tf2 := op.Apps[0]
	if tf2.TotalDepots != 3 || tf2.SkippedDepots != 1 || tf2.ProcessedDepots != 1 {
		t.Fatalf("tf2 depot counters mismatch: %+v", tf2)
	}
	if tf2.Success() {
		t.Fatal("tf2 should fail because depot 442 failed")
	}
	if len(tf2.Depots) != 2 || len(tf2.Depots[0].Manifests) != 2 {
		t.Fatalf("depot 441 should still be fully dumped: %+v", tf2.Depots)
	}
	if !op.Apps[1].Success() {
		t.Fatalf("cs2 should succeed: %+v", op.Apps[1])
	}

	want := ManifestPath(cfg.Output, 440, 441, 1001)
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("manifest not written at %s: %v", want, err)
	}

	keys, err := dumpfile.ReadKeys(filepath.Join(cfg.Output.DumpDirectory, dumpfile.KeysFileName))
	if err != nil {
		t.Fatalf("read keys: %v", err)
	}
	if len(keys) != 2 || keys[0].DepotID != 441 || keys[1].DepotID != 731 {
		t.Fatalf("keys file mismatch: %+v", keys)
	}
	apps, err := dumpfile.ReadApps(filepath.Join(cfg.Output.DumpDirectory, dumpfile.AppsFileName))
	if err != nil || len(apps) != 2 {
		t.Fatalf("apps file mismatch: %+v %v", apps, err)
	}

	saved, err := history.GetOperation(op.ID)
	if err != nil || saved.TotalApps != 3 {
		t.Fatalf("operation not saved: %+v %v", saved, err)
	}
}

func TestRerunSkipsKnownManifests(t *testing.T) {
	cfg := newTestConfig(t, 730)
	history, _ := store.NewHistoryStore("")
	client := newCatalog()
	d := newTestDumper(t, cfg, client, history)

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	op, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(client.downloaded) != 1 {
		t.Fatalf("manifest should only be downloaded once, got %v", client.downloaded)
	}
	m := op.Apps[0].Depots[0].Manifests[0]
	if !m.WasSkipped || m.WasDownloaded || !m.Success() {
		t.Fatalf("second run should skip the manifest: %+v", m)
	}
	if op.SkippedManifests != 1 || op.SuccessfulManifests != 0 {
		t.Fatalf("manifest counters mismatch: %+v", op)
	}
}

func TestManifestFailureKeepsDepotSuccessful(t *testing.T) {
	cfg := newTestConfig(t, 440)
	client := newCatalog()
	client.downloadErr[1002] = errors.New("cdn 503")
	history, _ := store.NewHistoryStore("")

	op, err := newTestDumper(t, cfg, client, history).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	depot := op.Apps[0].Depots[0]
	if !depot.Success() {
		t.Fatal("depot success depends only on depot errors")
	}
	if depot.ManifestsFound != 2 || depot.ManifestsDownloaded != 1 {
		t.Fatalf("depot counters mismatch: %+v", depot)
	}
	if op.FailedManifests != 1 {
		t.Fatalf("operation should count the failed manifest: %d", op.FailedManifests)
	}
	if history.HasManifest(441, 1002) {
		t.Fatal("failed manifest must not be recorded")
	}
}

func TestUnknownAppRecordsError(t *testing.T) {
	cfg := newTestConfig(t, 12345)
	history, _ := store.NewHistoryStore("")

	op, err := newTestDumper(t, cfg, newCatalog(), history).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if op.FailedApps != 1 || len(op.Apps[0].Errors) != 1 {
		t.Fatalf("unknown app should fail with one error: %+v", op.Apps[0])
	}
}

func TestCancelledRunRecordsError(t *testing.T) {
	cfg := newTestConfig(t, 440, 730)
	history, _ := store.NewHistoryStore("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op, err := newTestDumper(t, cfg, newCatalog(), history).Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(op.Errors) == 0 || op.Success() {
		t.Fatalf("cancellation should be recorded: %+v", op.Errors)
	}
	if op.TotalApps != 2 {
		t.Fatalf("unattempted apps should still be counted: %d", op.TotalApps)
	}
}

func TestManifestPathNamingFormats(t *testing.T) {
	out := config.OutputConfig{DumpDirectory: "dumps", UseNewNamingFormat: true}
	if got := ManifestPath(out, 440, 441, 99); got != filepath.Join("dumps", "440", "441_99.manifest") {
		t.Fatalf("new format mismatch: %s", got)
	}
	out.UseNewNamingFormat = false
	if got := ManifestPath(out, 440, 441, 99); got != filepath.Join("dumps", "441_99.manifest") {
		t.Fatalf("legacy format mismatch: %s", got)
	}
}

// slowClient holds each download open long enough for concurrent ones to overlap
type slowClient struct {
	*fakeClient
}

func (c slowClient) DownloadManifest(ctx context.Context, appID, depotID uint32, manifestID uint64, dest string) error {
	time.Sleep(20 * time.Millisecond)
	return c.fakeClient.DownloadManifest(ctx, appID, depotID, manifestID, dest)
}

func TestSharedManifestAcrossBranchesDownloadsOnce(t *testing.T) {
	cfg := newTestConfig(t, 730)
	client := newCatalog()
	client.manifests[731] = []domain.ManifestRef{
		{ManifestID: 3001, Branch: "public"},
		{ManifestID: 3001, Branch: "beta"},
	}
	history, _ := store.NewHistoryStore("")

	op, err := newTestDumper(t, cfg, slowClient{client}, history).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(client.downloaded) != 1 {
		t.Fatalf("shared manifest downloaded %d times: %v", len(client.downloaded), client.downloaded)
	}
	app := op.Apps[0]
	if app.NewManifests != 1 || app.SkippedManifests != 1 || !app.Success() {
		t.Fatalf("app counters mismatch: new=%d skipped=%d", app.NewManifests, app.SkippedManifests)
	}
	manifests := app.Depots[0].Manifests
	if !manifests[0].WasDownloaded || !manifests[1].WasSkipped || manifests[1].Branch != "beta" {
		t.Fatalf("beta branch should reuse the public download: %+v %+v", manifests[0], manifests[1])
	}
	if op.SuccessfulManifests != 1 || op.FailedManifests != 0 {
		t.Fatalf("operation counters mismatch: ok=%d failed=%d", op.SuccessfulManifests, op.FailedManifests)
	}
}
