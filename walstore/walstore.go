// Package walstore provides an optional durable backing store for
// raft.Raft's log, toward the crash-recovery gap spec.md 9 notes as
// unspecified in the original. raft.Raft writes entries into it but does
// not read them back on start, so the store holds a copy of the log
// without restoring it. It is a thin wrapper over
// github.com/cockroachdb/pebble, present in the teacher's dependency
// graph as an LSM-tree key/value store; here it is repurposed as a
// sequential append-only log keyed by big-endian index.
package walstore

import (
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/xcsec/omniuat/raft"
)

// Store persists raft.LogEntry values in a pebble database keyed by
// their index.
type Store struct {
	db *pebble.DB
}

// Open creates or reopens a WAL at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func indexKey(index uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], index)
	return key[:]
}

// Append writes entries to the WAL, one pebble key per entry.
func (s *Store) Append(entries []raft.LogEntry) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, e := range entries {
		v, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := batch.Set(indexKey(e.Index), v, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// Entries reads every stored entry with index >= fromIndex, in index
// order.
func (s *Store) Entries(fromIndex uint64) ([]raft.LogEntry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: indexKey(fromIndex)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []raft.LogEntry
	for iter.First(); iter.Valid(); iter.Next() {
		var e raft.LogEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

// LastIndex returns the highest index currently stored, or 0 if empty.
func (s *Store) LastIndex() (uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return binary.BigEndian.Uint64(iter.Key()), nil
}

// Close releases the underlying pebble database.
func (s *Store) Close() error {
	return s.db.Close()
}
