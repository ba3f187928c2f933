package ledgertest

import (
	"context"
	"sync"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/crypto"
	"github.com/parsedata/energyledger/errors"
	"github.com/parsedata/energyledger/ledger"
	"github.com/parsedata/energyledger/tx"
)

// MemNotary implements the notary contract in memory: it tracks every input
// reference ever consumed and guarantees at most one transaction consumes a
// given record. Internal consensus is out of scope, the contract is what
// matters.
type MemNotary struct {
	key *crypto.PrivateKey

	mu       sync.Mutex
	consumed map[string]string // input ref -> consuming tx
}

// NewMemNotary returns a notary with a fresh identity key.
func NewMemNotary() *MemNotary {
	return &MemNotary{
		key:      crypto.GenPrivKeyEd25519(),
		consumed: make(map[string]string),
	}
}

// Address returns the notary's identity.
func (n *MemNotary) Address() energyledger.Address {
	return n.key.Address()
}

// Notarize stamps a fully signed transaction, or reports a conflict naming
// the inputs that another transaction consumed first.
func (n *MemNotary) Notarize(ctx context.Context, t *tx.PendingTransaction) (*crypto.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !t.Notary.Equals(n.Address()) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "transaction bound to a different notary")
	}
	if !t.FullySigned() {
		return nil, errors.Wrapf(errors.ErrState, "missing signers: %v", t.MissingSigners())
	}
	for _, sig := range t.Signatures {
		if !sig.Verify(t.SignBytes()) {
			return nil, errors.Wrap(errors.ErrUnauthorized, "invalid signature")
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var conflicting []string
	for _, ref := range t.InputRefs() {
		if owner, ok := n.consumed[ref]; ok && owner != t.ID {
			conflicting = append(conflicting, ref)
		}
	}
	if len(conflicting) != 0 {
		return nil, &ledger.ConflictError{TxID: t.ID, ConflictingInputs: conflicting}
	}
	for _, ref := range t.InputRefs() {
		n.consumed[ref] = t.ID
	}

	return n.key.Sign(t.SignBytes())
}
