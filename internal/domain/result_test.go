package domain

import (
	"testing"
	"time"
)

func TestAppSuccessUsesImmediateCounters(t *testing.T) {
	app := &AppResult{TotalDepots: 5, ProcessedDepots: 3, SkippedDepots: 2}
	if !app.Success() {
		t.Fatal("expected success when processed == total - skipped")
	}

	app.SkippedDepots = 1
	if app.Success() {
		t.Fatal("expected failure when processed < total - skipped")
	}

	app.SkippedDepots = 2
	app.AddError("license missing")
	if app.Success() {
		t.Fatal("expected failure with app errors")
	}
}

func TestManifestSuccess(t *testing.T) {
	cases := []struct {
		name       string
		downloaded bool
		skipped    bool
		errs       []string
		want       bool
	}{
		{"neither downloaded nor skipped", false, false, nil, false},
		{"downloaded", true, false, nil, true},
		{"skipped", false, true, nil, true},
		{"downloaded with error", true, false, []string{"checksum"}, false},
	}
	for _, tc := range cases {
		m := &ManifestResult{WasDownloaded: tc.downloaded, WasSkipped: tc.skipped, Errors: tc.errs}
		if got := m.Success(); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestDepotSuccessIgnoresManifestErrors(t *testing.T) {
	d := &DepotResult{DepotID: 441}
	m := d.AddManifest(7, "public")
	m.AddError("download failed")
	d.CloseManifest(m)

	if !d.Success() {
		t.Fatal("depot success should only depend on its own errors")
	}
	if d.ManifestsFound != 1 || d.ManifestsDownloaded != 0 || d.ManifestsSkipped != 0 {
		t.Fatalf("unexpected depot counters: %+v", d)
	}
}

func TestCloseRollsUpCounters(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	op := NewOperation("op-1", start)

	app := op.AddApp(440, "Team Fortress 2")
	app.TotalDepots = 3

	good := app.AddDepot(441)
	m1 := good.AddManifest(1, "public")
	m1.WasDownloaded = true
	good.CloseManifest(m1)
	m2 := good.AddManifest(2, "beta")
	m2.WasSkipped = true
	good.CloseManifest(m2)
	app.CloseDepot(good)

	bad := app.AddDepot(442)
	bad.AddError("key request timed out")
	app.CloseDepot(bad)

	app.SkipDepot()
	op.CloseApp(app)
	op.SkipApp()
	op.Finish(start.Add(90 * time.Second))

	if app.ProcessedDepots != 1 || app.Success() {
		t.Fatalf("app should have one processed depot and fail: %+v", app)
	}
	if app.TotalManifests != 2 || app.NewManifests != 1 || app.SkippedManifests != 1 {
		t.Fatalf("app manifest counters mismatch: %+v", app)
	}
	if op.TotalApps != 2 || op.FailedApps != 1 || op.SkippedApps != 1 || op.SuccessfulApps != 0 {
		t.Fatalf("operation app counters mismatch: %+v", op)
	}
	if op.TotalDepots != 3 || op.SuccessfulDepots != 1 || op.FailedDepots != 1 || op.SkippedDepots != 1 {
		t.Fatalf("operation depot counters mismatch: %+v", op)
	}
	if op.SuccessfulManifests != 1 || op.SkippedManifests != 1 || op.FailedManifests != 0 {
		t.Fatalf("operation manifest counters mismatch: %+v", op)
	}
	if len(op.Apps) != 1 {
		t.Fatalf("CloseApp must not attach an already attached app twice, got %d", len(op.Apps))
	}
	if op.Duration() != 90*time.Second {
		t.Fatalf("duration mismatch: %v", op.Duration())
	}
	if op.Success() {
		t.Fatal("operation with a failed app should not succeed")
	}
}

func TestCloseAppAttachesDetachedNode(t *testing.T) {
	op := NewOperation("op-2", time.Now())
	app := NewApp(730, "Counter-Strike 2")
	op.CloseApp(app)

	if len(op.Apps) != 1 || op.Apps[0] != app {
		t.Fatal("expected detached app to be attached on close")
	}
	if op.SuccessfulApps != 1 || !op.Success() {
		t.Fatalf("app with no depots should succeed: %+v", op)
	}
	if len(op.ProcessedAppIDs) != 1 || op.ProcessedAppIDs[0] != 730 {
		t.Fatalf("processed ids mismatch: %v", op.ProcessedAppIDs)
	}
}
