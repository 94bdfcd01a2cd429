package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmcdole/depotdump/internal/domain"
)

// Format selects how a run is rendered
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the supported formats
var Formats = []Format{FormatText, FormatJSON, FormatYAML}

// ErrUnknownFormat is returned by ParseFormat
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat accepts a format name case-insensitively. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w %q (want one of %s)", ErrUnknownFormat, s, FormatNames())
}

// FormatNames joins Formats for flag help and errors
func FormatNames() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// Write renders op in the given format
func Write(w io.Writer, op *domain.Operation, format Format, styles Styles) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, op)
	case FormatYAML:
		return WriteYAML(w, op)
	case FormatText, "":
		return WriteText(w, op, styles)
	}
	return fmt.Errorf("%w %q", ErrUnknownFormat, format)
}

// WriteJSON writes the full result tree as indented JSON
func WriteJSON(w io.Writer, op *domain.Operation) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(op)
}

// WriteYAML writes the full result tree as YAML
func WriteYAML(w io.Writer, op *domain.Operation) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(op); err != nil {
		return err
	}
	return enc.Close()
}

// WriteText writes a human-readable summary followed by one block per app.
// Depots and manifests are only expanded when they carry errors.
func WriteText(w io.Writer, op *domain.Operation, s Styles) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", s.Title.Render("Run"), op.ID)
	fmt.Fprintf(&b, "  Started:  %s\n", op.StartTime.Local().Format(time.DateTime))
	if !op.EndTime.IsZero() {
		fmt.Fprintf(&b, "  Duration: %s\n", op.Duration().Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "  Status:   %s\n", statusWord(s, op.Success()))
	b.WriteString("\n")

	b.WriteString(s.Header.Render("Summary") + "\n")
	fmt.Fprintf(&b, "  Apps:      %d total, %d ok, %d failed, %d skipped\n",
		op.TotalApps, op.SuccessfulApps, op.FailedApps, op.SkippedApps)
	fmt.Fprintf(&b, "  Depots:    %d total, %d ok, %d failed, %d skipped\n",
		op.TotalDepots, op.SuccessfulDepots, op.FailedDepots, op.SkippedDepots)
	fmt.Fprintf(&b, "  Manifests: %d total, %d new, %d failed, %d skipped\n",
		op.TotalManifests, op.SuccessfulManifests, op.FailedManifests, op.SkippedManifests)

	for _, e := range op.Errors {
		fmt.Fprintf(&b, "  %s %s\n", s.Error.Render("error:"), e)
	}

	if len(op.Apps) > 0 {
		b.WriteString("\n" + s.Header.Render("Apps") + "\n")
	}
	for _, app := range op.Apps {
		writeApp(&b, app, s)
	}
	if op.SkippedApps > 0 {
		fmt.Fprintf(&b, "  %s %s\n", s.Skipped.Render(SkippedChar),
			s.Dim.Render(fmt.Sprintf("%d apps excluded or not started", op.SkippedApps)))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeApp(b *strings.Builder, app *domain.AppResult, s Styles) {
	name := app.Name
	if name == "" {
		name = "unknown"
	}
	fmt.Fprintf(b, "  %s %d %s\n", s.status(app.Success()), app.AppID, name)
	fmt.Fprintf(b, "    %s\n", s.Dim.Render(fmt.Sprintf(
		"depots %d/%d processed, %d skipped; manifests %d new, %d skipped of %d",
		app.ProcessedDepots, app.TotalDepots, app.SkippedDepots,
		app.NewManifests, app.SkippedManifests, app.TotalManifests)))

	for _, e := range app.Errors {
		fmt.Fprintf(b, "    %s %s\n", s.Error.Render("error:"), e)
	}
	if app.SkippedDepots > 0 {
		fmt.Fprintf(b, "    %s %d depots not available to this account\n", s.Skipped.Render(SkippedChar), app.SkippedDepots)
	}

	for _, d := range app.Depots {
		failed := failedManifests(d)
		if d.Success() && len(failed) == 0 {
			continue
		}
		fmt.Fprintf(b, "    %s depot %d\n", s.status(d.Success()), d.DepotID)
		for _, e := range d.Errors {
			fmt.Fprintf(b, "      %s %s\n", s.Error.Render("error:"), e)
		}
		for _, m := range failed {
			fmt.Fprintf(b, "      %s manifest %d (%s): %s\n",
				s.Error.Render(FailedChar), m.ManifestID, m.Branch, strings.Join(m.Errors, "; "))
		}
	}
}

func failedManifests(d *domain.DepotResult) []*domain.ManifestResult {
	var out []*domain.ManifestResult
	for _, m := range d.Manifests {
		if !m.Success() {
			out = append(out, m)
		}
	}
	return out
}

func statusWord(s Styles, ok bool) string {
	if ok {
		return s.Success.Render("ok")
	}
	return s.Error.Render("failed")
}

// WriteHistory lists past runs one per line, newest first as given
func WriteHistory(w io.Writer, ops []*domain.Operation, s Styles) error {
	if len(ops) == 0 {
		_, err := io.WriteString(w, "No runs recorded.\n")
		return err
	}

	var b strings.Builder
	for _, op := range ops {
		fmt.Fprintf(&b, "%s %s  %s  apps %d ok / %d failed / %d skipped  manifests %d new\n",
			s.status(op.Success()),
			op.ID,
			s.Dim.Render(op.StartTime.Local().Format(time.DateTime)),
			op.SuccessfulApps, op.FailedApps, op.SkippedApps,
			op.SuccessfulManifests,
		)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
