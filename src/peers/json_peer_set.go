package peers

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"sync"
)

// JSONPeerSet is used to provide peer persistence on disk in the form of a
// JSON file.
type JSONPeerSet struct {
	l    sync.Mutex
	path string
}

// NewJSONPeerSet creates a new JSONPeerSet backed by a JSON file.
func NewJSONPeerSet(path string) *JSONPeerSet {
	return &JSONPeerSet{
		path: path,
	}
}

// PeerSet parses the underlying JSON file and returns the corresponding
// PeerSet.
func (j *JSONPeerSet) PeerSet() (*PeerSet, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(buf) == 0 {
		return nil, nil
	}

	var peers []*Peer
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&peers); err != nil {
		return nil, err
	}

	return NewPeerSet(peers), nil
}

// Write persists a PeerSet to a JSON file.
func (j *JSONPeerSet) Write(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peers); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0755)
}
