package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmcdole/depotdump/internal/domain"
)

func sampleOperation() *domain.Operation {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	op := domain.NewOperation("run-1", start)

	tf2 := op.AddApp(440, "Team Fortress 2")
	tf2.TotalDepots = 2

	good := tf2.AddDepot(441)
	m := good.AddManifest(1001, "public")
	m.WasDownloaded = true
	good.CloseManifest(m)
	broken := good.AddManifest(1002, "beta")
	broken.AddError("download: cdn 503")
	good.CloseManifest(broken)
	tf2.CloseDepot(good)

	bad := tf2.AddDepot(442)
	bad.AddError("depot key: timed out")
	tf2.CloseDepot(bad)
	op.CloseApp(tf2)

	op.SkipApp()
	op.Finish(start.Add(90 * time.Second))
	return op
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatText},
		{"TEXT", FormatText},
		{"json", FormatJSON},
		{"yml", FormatYAML},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	_, err := ParseFormat("xml")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if !strings.Contains(err.Error(), "text, json, yaml") {
		t.Fatalf("error should list the formats: %v", err)
	}
}

func TestWriteTextPlain(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sampleOperation(), PlainStyles()); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Run run-1",
		"Duration: 1m30s",
		"Status:   failed",
		"Apps:      2 total, 0 ok, 1 failed, 1 skipped",
		"✗ 440 Team Fortress 2",
		"depot 442",
		"depot key: timed out",
		"manifest 1002 (beta): download: cdn 503",
		"- 1 apps excluded or not started",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatal("plain styles must not emit escape sequences")
	}
}

func TestStructuredFormatsCarryTree(t *testing.T) {
	op := sampleOperation()

	var js bytes.Buffer
	if err := Write(&js, op, FormatJSON, PlainStyles()); err != nil {
		t.Fatalf("json: %v", err)
	}
	var fromJSON domain.Operation
	if err := json.Unmarshal(js.Bytes(), &fromJSON); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if fromJSON.Apps[0].Depots[1].Errors[0] != "depot key: timed out" {
		t.Fatalf("json lost depot error: %+v", fromJSON.Apps[0].Depots[1])
	}

	var ym bytes.Buffer
	if err := Write(&ym, op, FormatYAML, PlainStyles()); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(ym.String(), "skipped_apps: 1") {
		t.Fatalf("yaml missing counters:\n%s", ym.String())
	}
	var fromYAML domain.Operation
	if err := yaml.Unmarshal(ym.Bytes(), &fromYAML); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if fromYAML.Apps[0].Depots[0].ManifestsDownloaded != 1 {
		t.Fatalf("yaml lost manifest counters: %+v", fromYAML.Apps[0].Depots[0])
	}
}

func TestWriteHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistory(&buf, nil, PlainStyles()); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "No runs recorded.\n" {
		t.Fatalf("empty history mismatch: %q", buf.String())
	}

	buf.Reset()
	if err := WriteHistory(&buf, []*domain.Operation{sampleOperation()}, PlainStyles()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "✗ run-1") {
		t.Fatalf("history line mismatch: %q", buf.String())
	}
}
