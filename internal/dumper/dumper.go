package dumper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mmcdole/depotdump/internal/config"
	"github.com/mmcdole/depotdump/internal/domain"
	"github.com/mmcdole/depotdump/internal/dumpfile"
)

// Dumper walks the configured apps through a Steam client and records the
// outcome as a result tree.
type Dumper struct {
	cfg    *config.Config
	client domain.SteamClient
	store  domain.RunStore
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// Option configures a Dumper
type Option func(*Dumper)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(d *Dumper) { d.now = now }
}

// WithIDGenerator overrides the operation ID source
func WithIDGenerator(newID func() string) Option {
	return func(d *Dumper) { d.newID = newID }
}

// New creates a dumper.
func New(cfg *config.Config, client domain.SteamClient, store domain.RunStore, logger *slog.Logger, opts ...Option) *Dumper {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dumper{
		cfg:    cfg,
		client: client,
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run dumps every configured app that is not excluded. Failures are recorded
// on the node where they happen and never stop sibling apps, depots or
// manifests. The finished tree is saved to the run store.
func (d *Dumper) Run(ctx context.Context) (*domain.Operation, error) {
	op := domain.NewOperation(d.newID(), d.now())
	apps := d.cfg.Apps.IDs.Sorted()

	files, err := dumpfile.OpenWriter(d.cfg.Output.DumpDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to open result files: %w", err)
	}

	d.logger.Info("dump started", "operation", op.ID, "apps", len(apps), "excluded", len(d.cfg.Apps.Excluded))

	// Each app node is built by exactly one goroutine and folded in order below
	results := make([]*domain.AppResult, len(apps))
	var g errgroup.Group
	g.SetLimit(d.cfg.Performance.MaxConcurrentApps)
	for i, appID := range apps {
		if d.cfg.IsExcluded(appID) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = d.dumpApp(ctx, files, appID)
			return nil
		})
	}
	g.Wait()

	for i, appID := range apps {
		switch {
		case d.cfg.IsExcluded(appID):
			d.logger.Debug("skipping excluded app", "appID", appID)
			op.SkipApp()
		case results[i] == nil:
			op.SkipApp()
		default:
			op.CloseApp(results[i])
		}
	}

	if err := ctx.Err(); err != nil {
		op.AddError("run cancelled: %v", err)
	}
	if err := files.Flush(); err != nil {
		op.AddError("failed to write result files: %v", err)
	}
	op.Finish(d.now())

	d.logger.Info("dump finished",
		"operation", op.ID,
		"duration", op.Duration(),
		"succeeded", op.SuccessfulApps,
		"failed", op.FailedApps,
		"skipped", op.SkippedApps,
	)

	if err := d.store.SaveOperation(op); err != nil {
		return op, fmt.Errorf("failed to save run history: %w", err)
	}
	return op, nil
}

func (d *Dumper) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.cfg.RequestTimeoutDuration())
}

func (d *Dumper) dumpApp(ctx context.Context, files *dumpfile.Writer, appID uint32) *domain.AppResult {
	app := domain.NewApp(appID, "")

	cctx, cancel := d.callCtx(ctx)
	info, err := d.client.AppInfo(cctx, appID)
	cancel()
	if err != nil {
		d.logger.Warn("failed to fetch app info", "appID", appID, "error", err)
		app.AddError("app info: %v", err)
		return app
	}
	app.Name = info.Name
	app.LastUpdated = info.LastUpdated
	files.AddApp(appID, info.Name)

	cctx, cancel = d.callCtx(ctx)
	depots, err := d.client.OwnedDepots(cctx, appID)
	cancel()
	if err != nil {
		d.logger.Warn("failed to list depots", "appID", appID, "error", err)
		app.AddError("owned depots: %v", err)
		return app
	}
	app.TotalDepots = len(depots)

	for _, depotID := range depots {
		if err := ctx.Err(); err != nil {
			app.AddError("cancelled before depot %d: %v", depotID, err)
			break
		}
		d.dumpDepot(ctx, files, app, depotID)
	}

	d.logger.Debug("app done", "appID", appID, "success", app.Success(),
		"processed", app.ProcessedDepots, "skipped", app.SkippedDepots, "total", app.TotalDepots)
	return app
}

func (d *Dumper) dumpDepot(ctx context.Context, files *dumpfile.Writer, app *domain.AppResult, depotID uint32) {
	cctx, cancel := d.callCtx(ctx)
	key, err := d.client.DepotKey(cctx, app.AppID, depotID)
	cancel()
	if errors.Is(err, domain.ErrDepotUnavailable) {
		d.logger.Debug("depot unavailable, skipping", "appID", app.AppID, "depotID", depotID)
		app.SkipDepot()
		return
	}

	depot := app.AddDepot(depotID)
	defer app.CloseDepot(depot)

	if err != nil {
		d.logger.Warn("failed to get depot key", "appID", app.AppID, "depotID", depotID, "error", err)
		depot.AddError("depot key: %v", err)
		return
	}
	files.AddKey(depotID, key)

	cctx, cancel = d.callCtx(ctx)
	refs, err := d.client.Manifests(cctx, app.AppID, depotID)
	cancel()
	if err != nil {
		d.logger.Warn("failed to list manifests", "appID", app.AppID, "depotID", depotID, "error", err)
		depot.AddError("manifests: %v", err)
		return
	}

	// Branches often share a manifest; only the first ref downloads it
	nodes := make([]*domain.ManifestResult, len(refs))
	seen := make(map[uint64]bool, len(refs))
	for i, ref := range refs {
		nodes[i] = depot.AddManifest(ref.ManifestID, ref.Branch)
		if seen[ref.ManifestID] {
			nodes[i].WasSkipped = true
		}
		seen[ref.ManifestID] = true
	}

	var g errgroup.Group
	g.SetLimit(d.cfg.Performance.MaxDownloads)
	for _, m := range nodes {
		if m.WasSkipped {
			continue
		}
		g.Go(func() error {
			d.dumpManifest(ctx, app.AppID, m)
			return nil
		})
	}
	g.Wait()

	for _, m := range nodes {
		depot.CloseManifest(m)
	}
}

func (d *Dumper) dumpManifest(ctx context.Context, appID uint32, m *domain.ManifestResult) {
	if d.store.HasManifest(m.DepotID, m.ManifestID) {
		m.WasSkipped = true
		return
	}

	path := ManifestPath(d.cfg.Output, appID, m.DepotID, m.ManifestID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		m.AddError("create manifest directory: %v", err)
		return
	}

	cctx, cancel := d.callCtx(ctx)
	err := d.client.DownloadManifest(cctx, appID, m.DepotID, m.ManifestID, path)
	cancel()
	if err != nil {
		d.logger.Warn("failed to download manifest", "depotID", m.DepotID, "manifestID", m.ManifestID, "error", err)
		m.AddError("download: %v", err)
		return
	}

	m.WasDownloaded = true
	m.FilePath = path
	m.LastUpdated = d.now()
	if err := d.store.RecordManifest(m); err != nil {
		d.logger.Warn("failed to record manifest", "depotID", m.DepotID, "manifestID", m.ManifestID, "error", err)
	}
}

// ManifestPath places a manifest according to the naming format:
// <dump>/<app>/<depot>_<manifest>.manifest, or flat <dump>/<depot>_<manifest>.manifest
func ManifestPath(out config.OutputConfig, appID, depotID uint32, manifestID uint64) string {
	name := fmt.Sprintf("%d_%d.manifest", depotID, manifestID)
	if out.UseNewNamingFormat {
		return filepath.Join(out.DumpDirectory, fmt.Sprint(appID), name)
	}
	return filepath.Join(out.DumpDirectory, name)
}
