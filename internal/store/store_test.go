package store

import (
	"errors"
	"testing"
	"time"

	"github.com/mmcdole/depotdump/internal/domain"
)

var _ domain.RunStore = (*HistoryStore)(nil)

func newTestStores(t *testing.T) map[string]*HistoryStore {
	t.Helper()
	disk, err := NewHistoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { disk.Close() })

	mem, err := NewHistoryStore("")
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	return map[string]*HistoryStore{"bolt": disk, "memory": mem}
}

func TestListOperationsNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"b", "c", "a"} {
				op := domain.NewOperation(id, base.Add(time.Duration(i)*time.Hour))
				op.Finish(op.StartTime.Add(time.Minute))
				if err := s.SaveOperation(op); err != nil {
					t.Fatalf("save %s: %v", id, err)
				}
			}

			ops, err := s.ListOperations(0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			got := make([]string, len(ops))
			for i, op := range ops {
				got[i] = op.ID
			}
			want := []string{"a", "c", "b"}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("order mismatch: got %v want %v", got, want)
				}
			}

			limited, err := s.ListOperations(2)
			if err != nil || len(limited) != 2 {
				t.Fatalf("limit: got %d ops, err %v", len(limited), err)
			}

			latest, err := s.LatestOperation()
			if err != nil || latest.ID != "a" {
				t.Fatalf("latest mismatch: %v %v", latest, err)
			}
		})
	}
}

func TestGetOperationRoundTripsTree(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			op := domain.NewOperation("run-1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
			app := op.AddApp(440, "Team Fortress 2")
			app.TotalDepots = 1
			depot := app.AddDepot(441)
			m := depot.AddManifest(1234567890123456789, "public")
			m.WasDownloaded = true
			depot.CloseManifest(m)
			app.CloseDepot(depot)
			op.CloseApp(app)

			if err := s.SaveOperation(op); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := s.GetOperation("run-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if len(got.Apps) != 1 || len(got.Apps[0].Depots) != 1 || len(got.Apps[0].Depots[0].Manifests) != 1 {
				t.Fatalf("tree shape lost: %+v", got)
			}
			if got.Apps[0].Depots[0].Manifests[0].ManifestID != 1234567890123456789 {
				t.Fatalf("manifest id mismatch: %d", got.Apps[0].Depots[0].Manifests[0].ManifestID)
			}
			if !got.Apps[0].Success() {
				t.Fatal("derived success should survive a round trip")
			}
		})
	}
}

func TestGetOperationNotFound(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetOperation("nope"); !errors.Is(err, domain.ErrOperationNotFound) {
				t.Fatalf("expected ErrOperationNotFound, got %v", err)
			}
			if _, err := s.LatestOperation(); !errors.Is(err, domain.ErrOperationNotFound) {
				t.Fatalf("expected ErrOperationNotFound on empty store, got %v", err)
			}
		})
	}
}

func TestRecordManifest(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			if s.HasManifest(441, 7) {
				t.Fatal("empty store should not know the manifest")
			}
			if err := s.RecordManifest(&domain.ManifestResult{DepotID: 441, ManifestID: 7, WasDownloaded: true}); err != nil {
				t.Fatalf("record: %v", err)
			}
			if !s.HasManifest(441, 7) {
				t.Fatal("recorded manifest not found")
			}
			if s.HasManifest(441, 8) || s.HasManifest(442, 7) {
				t.Fatal("unrelated manifest reported as known")
			}
		})
	}
}

func TestHistoryPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewHistoryStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.RecordManifest(&domain.ManifestResult{DepotID: 1, ManifestID: 2}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.SaveOperation(domain.NewOperation("persisted", time.Now())); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	reopened, err := NewHistoryStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if !reopened.HasManifest(1, 2) {
		t.Fatal("manifest lost after reopen")
	}
	if _, err := reopened.GetOperation("persisted"); err != nil {
		t.Fatalf("operation lost after reopen: %v", err)
	}
}
