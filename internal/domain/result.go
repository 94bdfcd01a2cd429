package domain

import (
	"fmt"
	"time"
)

// Operation is the root of a run's result tree. One is created per dump run.
type Operation struct {
	ID        string    `json:"id" yaml:"id"`
	StartTime time.Time `json:"start_time" yaml:"start_time"`
	EndTime   time.Time `json:"end_time" yaml:"end_time"`

	TotalApps      int `json:"total_apps" yaml:"total_apps"`
	SuccessfulApps int `json:"successful_apps" yaml:"successful_apps"`
	FailedApps     int `json:"failed_apps" yaml:"failed_apps"`
	SkippedApps    int `json:"skipped_apps" yaml:"skipped_apps"`

	TotalDepots      int `json:"total_depots" yaml:"total_depots"`
	SuccessfulDepots int `json:"successful_depots" yaml:"successful_depots"`
	FailedDepots     int `json:"failed_depots" yaml:"failed_depots"`
	SkippedDepots    int `json:"skipped_depots" yaml:"skipped_depots"`

	TotalManifests      int `json:"total_manifests" yaml:"total_manifests"`
	SuccessfulManifests int `json:"successful_manifests" yaml:"successful_manifests"`
	FailedManifests     int `json:"failed_manifests" yaml:"failed_manifests"`
	SkippedManifests    int `json:"skipped_manifests" yaml:"skipped_manifests"`

	ProcessedAppIDs []uint32     `json:"processed_app_ids" yaml:"processed_app_ids"`
	Errors          []string     `json:"errors,omitempty" yaml:"errors,omitempty"`
	Apps            []*AppResult `json:"apps" yaml:"apps"`
}

// AppResult records the outcome for one app
type AppResult struct {
	AppID       uint32    `json:"app_id" yaml:"app_id"`
	Name        string    `json:"name" yaml:"name"`
	LastUpdated time.Time `json:"last_updated" yaml:"last_updated"`

	TotalDepots     int `json:"total_depots" yaml:"total_depots"`
	ProcessedDepots int `json:"processed_depots" yaml:"processed_depots"`
	SkippedDepots   int `json:"skipped_depots" yaml:"skipped_depots"`

	TotalManifests   int `json:"total_manifests" yaml:"total_manifests"`
	NewManifests     int `json:"new_manifests" yaml:"new_manifests"`
	SkippedManifests int `json:"skipped_manifests" yaml:"skipped_manifests"`

	Errors []string       `json:"errors,omitempty" yaml:"errors,omitempty"`
	Depots []*DepotResult `json:"depots" yaml:"depots"`
}

// DepotResult records the outcome for one depot within an app
type DepotResult struct {
	DepotID uint32 `json:"depot_id" yaml:"depot_id"`
	AppID   uint32 `json:"app_id" yaml:"app_id"`

	ManifestsFound      int `json:"manifests_found" yaml:"manifests_found"`
	ManifestsDownloaded int `json:"manifests_downloaded" yaml:"manifests_downloaded"`
	ManifestsSkipped    int `json:"manifests_skipped" yaml:"manifests_skipped"`

	Errors    []string          `json:"errors,omitempty" yaml:"errors,omitempty"`
	Manifests []*ManifestResult `json:"manifests" yaml:"manifests"`
}

// ManifestResult records the outcome for one manifest version of a depot
type ManifestResult struct {
	DepotID       uint32    `json:"depot_id" yaml:"depot_id"`
	ManifestID    uint64    `json:"manifest_id" yaml:"manifest_id"`
	Branch        string    `json:"branch" yaml:"branch"`
	WasDownloaded bool      `json:"was_downloaded" yaml:"was_downloaded"`
	WasSkipped    bool      `json:"was_skipped" yaml:"was_skipped"`
	FilePath      string    `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	LastUpdated   time.Time `json:"last_updated" yaml:"last_updated"`
	Errors        []string  `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// NewOperation starts a run
func NewOperation(id string, start time.Time) *Operation {
	return &Operation{ID: id, StartTime: start}
}

// Finish stamps the end of the run
func (o *Operation) Finish(end time.Time) {
	o.EndTime = end
}

// Duration returns the run time, or zero while the run is still open
func (o *Operation) Duration() time.Duration {
	if o.EndTime.IsZero() {
		return 0
	}
	return o.EndTime.Sub(o.StartTime)
}

func (o *Operation) AddError(format string, args ...any) {
	o.Errors = append(o.Errors, fmt.Sprintf(format, args...))
}

// SkipApp counts an app that was configured but not attempted
func (o *Operation) SkipApp() {
	o.TotalApps++
	o.SkippedApps++
}

// NewApp creates an app node that is not yet attached to the operation.
// Use CloseApp to attach it once it is complete.
func NewApp(appID uint32, name string) *AppResult {
	return &AppResult{AppID: appID, Name: name}
}

// AddApp appends a new app node
func (o *Operation) AddApp(appID uint32, name string) *AppResult {
	app := NewApp(appID, name)
	o.Apps = append(o.Apps, app)
	return app
}

// CloseApp folds a finished app's counters into the operation, attaching the
// app first if it was built with NewApp.
func (o *Operation) CloseApp(app *AppResult) {
	attached := false
	for _, a := range o.Apps {
		if a == app {
			attached = true
			break
		}
	}
	if !attached {
		o.Apps = append(o.Apps, app)
	}

	o.TotalApps++
	o.ProcessedAppIDs = append(o.ProcessedAppIDs, app.AppID)
	if app.Success() {
		o.SuccessfulApps++
	} else {
		o.FailedApps++
	}

	o.TotalDepots += app.TotalDepots
	o.SkippedDepots += app.SkippedDepots
	for _, d := range app.Depots {
		if d.Success() {
			o.SuccessfulDepots++
		} else {
			o.FailedDepots++
		}
	}

	o.TotalManifests += app.TotalManifests
	o.SuccessfulManifests += app.NewManifests
	o.SkippedManifests += app.SkippedManifests
	o.FailedManifests += app.TotalManifests - app.NewManifests - app.SkippedManifests
}

// Success is true when the run recorded no errors of its own and no app failed
func (o *Operation) Success() bool {
	return len(o.Errors) == 0 && o.FailedApps == 0
}

func (a *AppResult) AddError(format string, args ...any) {
	a.Errors = append(a.Errors, fmt.Sprintf(format, args...))
}

// AddDepot appends a new depot node
func (a *AppResult) AddDepot(depotID uint32) *DepotResult {
	d := &DepotResult{DepotID: depotID, AppID: a.AppID}
	a.Depots = append(a.Depots, d)
	return d
}

// SkipDepot counts a depot that was not attempted (not owned, no access)
func (a *AppResult) SkipDepot() {
	a.SkippedDepots++
}

// CloseDepot folds a finished depot's counters into the app
func (a *AppResult) CloseDepot(d *DepotResult) {
	if d.Success() {
		a.ProcessedDepots++
	}
	a.TotalManifests += d.ManifestsFound
	a.NewManifests += d.ManifestsDownloaded
	a.SkippedManifests += d.ManifestsSkipped
}

// Success is true when the app has no errors and every depot not skipped was processed
func (a *AppResult) Success() bool {
	return len(a.Errors) == 0 && a.ProcessedDepots == a.TotalDepots-a.SkippedDepots
}

func (d *DepotResult) AddError(format string, args ...any) {
	d.Errors = append(d.Errors, fmt.Sprintf(format, args...))
}

// AddManifest appends a new manifest node and counts it as found
func (d *DepotResult) AddManifest(manifestID uint64, branch string) *ManifestResult {
	m := &ManifestResult{DepotID: d.DepotID, ManifestID: manifestID, Branch: branch}
	d.Manifests = append(d.Manifests, m)
	d.ManifestsFound++
	return m
}

// CloseManifest folds a finished manifest's flags into the depot
func (d *DepotResult) CloseManifest(m *ManifestResult) {
	switch {
	case !m.Success():
	case m.WasSkipped:
		d.ManifestsSkipped++
	case m.WasDownloaded:
		d.ManifestsDownloaded++
	}
}

// Success is true when the depot has no errors of its own
func (d *DepotResult) Success() bool {
	return len(d.Errors) == 0
}

func (m *ManifestResult) AddError(format string, args ...any) {
	m.Errors = append(m.Errors, fmt.Sprintf(format, args...))
}

// Success is true when the manifest has no errors and was either downloaded or skipped
func (m *ManifestResult) Success() bool {
	return len(m.Errors) == 0 && (m.WasDownloaded || m.WasSkipped)
}
