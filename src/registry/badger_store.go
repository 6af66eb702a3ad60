package registry

import (
	"encoding/binary"
	"sync"

	"github.com/dgraph-io/badger"
)

const (
	peerPrefix = "peer"
	seqKey     = "seq"
)

// BadgerStore implements the Store interface on top of a Badger database, so
// that tag assignments survive worker restarts. The write lock serializes
// read-check-insert sequences; Badger transactions alone would force conflict
// retries on concurrent GetOrCreate calls.
type BadgerStore struct {
	writeLock sync.Mutex
	db        *badger.DB
	path      string
}

// NewBadgerStore opens (or creates) a database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = false

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db:   handle,
		path: path,
	}, nil
}

func peerKey(peerID string) []byte {
	return []byte(peerPrefix + "_" + peerID)
}

// GetOrCreate implements the Store interface. The whole read-check-insert runs
// in one update transaction.
func (s *BadgerStore) GetOrCreate(peerID string) (int, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	var id int

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(peerKey(peerID))
		if err == nil {
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			id = int(binary.BigEndian.Uint64(val))
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		next := uint64(1)
		seqItem, err := txn.Get([]byte(seqKey))
		if err == nil {
			val, err := seqItem.ValueCopy(nil)
			if err != nil {
				return err
			}
			next = binary.BigEndian.Uint64(val) + 1
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, next)

		if err := txn.Set([]byte(seqKey), buf); err != nil {
			return err
		}
		if err := txn.Set(peerKey(peerID), buf); err != nil {
			return err
		}

		id = int(next)
		return nil
	})

	return id, err
}

// Get implements the Store interface.
func (s *BadgerStore) Get(peerID string) (int, error) {
	var id int

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(peerKey(peerID))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		id = int(binary.BigEndian.Uint64(val))
		return nil
	})

	return id, err
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
