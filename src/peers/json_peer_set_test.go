package peers

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestJSONPeerSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")

	// a non-existent file errors
	store := NewJSONPeerSet(path)
	if _, err := store.PeerSet(); err == nil {
		t.Fatal("reading a missing peer file should fail")
	}

	keys := []string{"peer1", "peer2", "peer3"}
	newPeers := []*Peer{}
	for i, k := range keys {
		newPeers = append(newPeers, &Peer{
			ID:      k,
			Address: "0x000" + k,
			Stake:   float64(1000 * (i + 1)),
		})
	}
	newPeers[2].Excluded = true

	if err := store.Write(newPeers); err != nil {
		t.Fatal(err)
	}

	// reload, and check the content matches
	peerSet, err := store.PeerSet()
	if err != nil {
		t.Fatal(err)
	}

	if peerSet.Len() != len(newPeers) {
		t.Fatalf("peer set should contain %d peers, not %d", len(newPeers), peerSet.Len())
	}

	for i, p := range peerSet.Peers {
		if !reflect.DeepEqual(p, newPeers[i]) {
			t.Fatalf("peer %d should be %v, not %v", i, newPeers[i], p)
		}
	}

	eligible := peerSet.Eligible()
	if len(eligible) != 2 {
		t.Fatalf("2 peers should be eligible, not %d", len(eligible))
	}
	for _, p := range eligible {
		if p.Excluded {
			t.Fatalf("excluded peer %s should not be eligible", p.ID)
		}
	}
}
