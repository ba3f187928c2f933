package audit

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack"

	"github.com/parsedata/energyledger/errors"
)

// KVStore is the persistence boundary for audit records: a keyed store
// supporting exact-match lookup. No range queries are required.
type KVStore interface {
	// Get returns the stored value or nil when the key is absent.
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// Recorder derives and persists the queryable audit trail. Records are
// written exactly once per finalized settlement, after ledger application,
// and never mutated afterwards.
type Recorder struct {
	mu  sync.Mutex
	kv  KVStore
	now func() time.Time
}

// NewRecorder returns a recorder writing to the given store. A nil store is
// allowed: every read and write then reports storage unavailable, so
// callers can distinguish "no record" from "no storage configured".
func NewRecorder(kv KVStore) *Recorder {
	return &Recorder{
		kv:  kv,
		now: time.Now,
	}
}

func txKey(txID string) []byte {
	return []byte("audit:tx:" + txID)
}

func evidenceKey(hash []byte) []byte {
	return []byte("audit:evidence:" + hex.EncodeToString(hash))
}

// Record persists the audit record and stamps it with the recording time.
// The record must be linked to a transaction. Recording the same
// transaction twice is a duplicate error.
func (r *Recorder) Record(rec *Record) error {
	if r.kv == nil {
		return errors.Wrap(errors.ErrStorageUnavailable, "no audit store configured")
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.TxID == "" {
		return errors.Wrap(errors.ErrInput, "record not linked to a transaction")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, err := r.kv.Get(txKey(rec.TxID)); err != nil {
		return errors.Wrap(err, "audit store")
	} else if existing != nil {
		return errors.Wrapf(errors.ErrDuplicate, "transaction %s already recorded", rec.TxID)
	}

	stored := rec.Clone()
	stored.RecordedAt = r.now().UTC()
	raw, err := msgpack.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "encode record")
	}
	if err := r.kv.Set(txKey(stored.TxID), raw); err != nil {
		return errors.Wrap(err, "audit store")
	}

	// Evidence hashes are not unique, a hash maps to the list of linked
	// transactions.
	var txIDs []string
	if raw, err := r.kv.Get(evidenceKey(stored.EvidenceHash)); err != nil {
		return errors.Wrap(err, "audit store")
	} else if raw != nil {
		if err := msgpack.Unmarshal(raw, &txIDs); err != nil {
			return errors.Wrap(err, "decode evidence index")
		}
	}
	txIDs = append(txIDs, stored.TxID)
	raw, err = msgpack.Marshal(txIDs)
	if err != nil {
		return errors.Wrap(err, "encode evidence index")
	}
	if err := r.kv.Set(evidenceKey(stored.EvidenceHash), raw); err != nil {
		return errors.Wrap(err, "audit store")
	}
	return nil
}

// ByTransaction returns the audit record linked to the given transaction.
func (r *Recorder) ByTransaction(txID string) (*Record, error) {
	if r.kv == nil {
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "no audit store configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byTransaction(txID)
}

func (r *Recorder) byTransaction(txID string) (*Record, error) {
	raw, err := r.kv.Get(txKey(txID))
	if err != nil {
		return nil, errors.Wrap(err, "audit store")
	}
	if raw == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "transaction %s", txID)
	}
	var rec Record
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	// msgpack rebuilds the timestamp in the local zone, storage time is
	// always UTC.
	rec.RecordedAt = rec.RecordedAt.UTC()
	return &rec, nil
}

// ByEvidenceHash returns all audit records carrying the given evidence
// hash, in recording order. An unknown hash yields an empty result.
func (r *Recorder) ByEvidenceHash(hash []byte) ([]*Record, error) {
	if r.kv == nil {
		return nil, errors.Wrap(errors.ErrStorageUnavailable, "no audit store configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := r.kv.Get(evidenceKey(hash))
	if err != nil {
		return nil, errors.Wrap(err, "audit store")
	}
	if raw == nil {
		return nil, nil
	}
	var txIDs []string
	if err := msgpack.Unmarshal(raw, &txIDs); err != nil {
		return nil, errors.Wrap(err, "decode evidence index")
	}
	out := make([]*Record, 0, len(txIDs))
	for _, id := range txIDs {
		rec, err := r.byTransaction(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// MemKV is a map backed KVStore, the default for nodes that do not plug in
// an external database.
type MemKV struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMemKV returns an empty in-memory keyed store.
func NewMemKV() *MemKV {
	return &MemKV{m: make(map[string][]byte)}
}

func (s *MemKV) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.m[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), raw...), nil
}

func (s *MemKV) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[string(key)] = append([]byte(nil), value...)
	return nil
}
