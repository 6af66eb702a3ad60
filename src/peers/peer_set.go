package peers

// PeerSet is the set of peers eligible for cover-traffic distribution.
type PeerSet struct {
	Peers []*Peer          `json:"peers"`
	ByID  map[string]*Peer `json:"-"`
}

// NewPeerSet creates a new PeerSet from a list of Peers.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByID: make(map[string]*Peer),
	}

	for _, peer := range peers {
		peerSet.ByID[peer.ID] = peer
	}

	peerSet.Peers = peers

	return peerSet
}

// Eligible returns the peers that are not excluded from distribution.
func (peerSet *PeerSet) Eligible() []*Peer {
	res := []*Peer{}

	for _, peer := range peerSet.Peers {
		if !peer.Excluded {
			res = append(res, peer)
		}
	}

	return res
}

// Len returns the number of Peers in the PeerSet.
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByID)
}
