package domain

// RunStore persists finished result trees and the manifests already dumped.
// Keys encode ancestry (depot:D:manifest:M) so reruns can skip known manifests.
type RunStore interface {
	// === Operations ===
	SaveOperation(op *Operation) error
	GetOperation(id string) (*Operation, error)
	ListOperations(limit int) ([]*Operation, error) // Newest first
	LatestOperation() (*Operation, error)

	// === Manifests ===
	HasManifest(depotID uint32, manifestID uint64) bool
	RecordManifest(m *ManifestResult) error

	// === Lifecycle ===
	Close() error
}
