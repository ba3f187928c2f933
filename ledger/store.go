package ledger

import (
	"sync"

	"github.com/google/btree"

	"github.com/parsedata/energyledger/errors"
	"github.com/parsedata/energyledger/token"
	"github.com/parsedata/energyledger/tx"
)

// Store holds the set of unspent token records of one node. It is the sole
// mutator of record state: records enter and leave only through Apply, as a
// single atomic unit per transaction.
//
// The records are kept in a btree keyed by record ID, so every query
// iterates in ascending ID order. That order is what makes coin selection
// deterministic for a given store snapshot.
type Store struct {
	mu sync.RWMutex
	bt *btree.BTree
}

type item struct {
	rec token.Record
}

func (i item) Less(than btree.Item) bool {
	return i.rec.ID < than.(item).rec.ID
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		bt: btree.New(2),
	}
}

// Unspent returns all unspent records matching the filter and token type,
// ascending by record ID.
func (s *Store) Unspent(filter token.OwnerFilter, tokenType string) token.Records {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out token.Records
	s.bt.Ascend(func(it btree.Item) bool {
		rec := it.(item).rec
		if rec.TokenType == tokenType && filter.Matches(rec) {
			out = append(out, rec.Clone())
		}
		return true
	})
	return out
}

// Balance returns the sum of unspent quantities matching the filter and
// token type. No matching records is a zero balance, not an error.
func (s *Store) Balance(filter token.OwnerFilter, tokenType string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum uint64
	s.bt.Ascend(func(it btree.Item) bool {
		rec := it.(item).rec
		if rec.TokenType == tokenType && filter.Matches(rec) {
			sum += rec.Quantity
		}
		return true
	})
	return sum
}

// Contains reports whether a record with the given ID is unspent.
func (s *Store) Contains(recordID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bt.Has(item{rec: token.Record{ID: recordID}})
}

// Apply consumes all inputs of the transaction and inserts all outputs,
// all-or-nothing. When any input is not in the unspent set anymore, a
// ConflictError listing the consumed refs is returned and nothing changes.
// Concurrent calls with overlapping inputs serialize so that exactly one
// succeeds, mirroring the notary's uniqueness guarantee for records that
// never leave this node.
func (s *Store) Apply(t *tx.PendingTransaction) error {
	if t == nil {
		return errors.Wrap(errors.ErrInput, "nil transaction")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var consumed []string
	for _, ref := range t.InputRefs() {
		if !s.bt.Has(item{rec: token.Record{ID: ref}}) {
			consumed = append(consumed, ref)
		}
	}
	if len(consumed) != 0 {
		return &ConflictError{TxID: t.ID, ConflictingInputs: consumed}
	}
	for _, out := range t.Outputs {
		if s.bt.Has(item{rec: token.Record{ID: out.ID}}) {
			return errors.Wrapf(errors.ErrDuplicate, "output %s already exists", out.ID)
		}
	}

	for _, ref := range t.InputRefs() {
		s.bt.Delete(item{rec: token.Record{ID: ref}})
	}
	for _, out := range t.Outputs {
		s.bt.ReplaceOrInsert(item{rec: out.Clone()})
	}
	return nil
}

// RecordFinalized imports an already notarized transaction received from
// another participant: inputs known to this store are marked spent and all
// outputs are recorded. Unlike Apply it does not demand that the inputs are
// held locally, a counterparty usually never saw them. It is idempotent, so
// replaying distributed history is harmless.
func (s *Store) RecordFinalized(t *tx.PendingTransaction) {
	if t == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range t.InputRefs() {
		s.bt.Delete(item{rec: token.Record{ID: ref}})
	}
	for _, out := range t.Outputs {
		s.bt.ReplaceOrInsert(item{rec: out.Clone()})
	}
}

// Size returns the number of unspent records held.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bt.Len()
}
