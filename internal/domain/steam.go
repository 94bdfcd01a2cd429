package domain

import (
	"context"
	"time"
)

// AppInfo is the product info the core needs for reporting
type AppInfo struct {
	AppID       uint32
	Name        string
	LastUpdated time.Time
}

// ManifestRef identifies one manifest version available for a depot
type ManifestRef struct {
	ManifestID uint64
	Branch     string
}

// SteamClient is the external Steam library the dump driver calls into.
// Login, CM/CDN negotiation and manifest decoding live behind it.
type SteamClient interface {
	// AppInfo returns product info for an app
	AppInfo(ctx context.Context, appID uint32) (AppInfo, error)

	// OwnedDepots returns the depots of an app the session has licenses for
	OwnedDepots(ctx context.Context, appID uint32) ([]uint32, error)

	// Manifests returns the manifest versions visible for a depot across branches
	Manifests(ctx context.Context, appID, depotID uint32) ([]ManifestRef, error)

	// DepotKey resolves the decryption key for a depot.
	// Returns ErrDepotUnavailable when the account has no access.
	DepotKey(ctx context.Context, appID, depotID uint32) ([]byte, error)

	// DownloadManifest writes the manifest to dest
	DownloadManifest(ctx context.Context, appID, depotID uint32, manifestID uint64, dest string) error

	Close() error
}
