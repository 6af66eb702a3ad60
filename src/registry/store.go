package registry

import "fmt"

// Store maps peer ids to stable small integers. The integers are added to the
// message-tag base so that concurrently-probed peers do not collide on the
// same inbox tag. GetOrCreate must be atomic: two concurrent cycles must never
// be handed the same tag for different peers.
type Store interface {
	// GetOrCreate returns the integer assigned to peerID, assigning the next
	// free one if the peer was never seen.
	GetOrCreate(peerID string) (int, error)

	// Get returns the integer assigned to peerID, or ErrNotFound.
	Get(peerID string) (int, error)

	Close() error
}

// ErrNotFound is returned by Get for an unregistered peer.
var ErrNotFound = fmt.Errorf("peer not registered")
