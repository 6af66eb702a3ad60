package peers

// Peer is one relay-network peer eligible for cover traffic.
type Peer struct {
	// ID is the peer's network identity.
	ID string `json:"id"`

	// Address is the peer's on-chain account address.
	Address string `json:"address"`

	// Version is the node software version the peer reported, when known.
	Version string `json:"version,omitempty"`

	// Stake is the peer's economic weight, in the network's native currency.
	Stake float64 `json:"stake"`

	// Excluded marks a blacklisted peer. Distribution tasks targeting an
	// excluded peer are acknowledged and skipped.
	Excluded bool `json:"excluded,omitempty"`

	// YearlyMessageCount is the relayed-message quota derived from the
	// peer's stake by the reward model. It is computed at runtime, not
	// loaded from the peer file.
	YearlyMessageCount int `json:"-"`
}
