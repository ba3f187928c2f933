package flow

import (
	"context"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/crypto"
	"github.com/parsedata/energyledger/directory"
	"github.com/parsedata/energyledger/tx"
)

// Notary is the ordering authority guaranteeing that at most one transaction
// may ever consume a given input record. Its internals are not this module's
// concern, only the contract: a fully signed transaction comes in, either a
// uniqueness stamp or a conflict error comes out.
type Notary interface {
	Notarize(ctx context.Context, t *tx.PendingTransaction) (*crypto.Signature, error)
}

// Session is one established conversation with a counterparty. Delivery is
// at-most-once per session, retries are the transport's concern.
type Session interface {
	// Send delivers the partially signed transaction for independent
	// verification by the counterparty.
	Send(ctx context.Context, t *tx.PendingTransaction) error
	// AwaitSignature blocks until the counterparty signs or refuses.
	AwaitSignature(ctx context.Context) (*crypto.Signature, error)
	// Distribute hands the finalized, notarized transaction to the
	// counterparty for its own record keeping.
	Distribute(ctx context.Context, t *tx.PendingTransaction) error
	Close() error
}

// Transport opens sessions to remote parties.
type Transport interface {
	Open(ctx context.Context, party energyledger.Address) (Session, error)
}

// Directory is the account directory contract consumed by the flows. The
// local implementation lives in the directory package.
type Directory interface {
	Resolve(name string) (directory.Info, error)
	RequestTransferKey(accountID string) (energyledger.Address, error)
	SignerFor(accountID string) (crypto.Signer, error)
}

var _ Directory = (*directory.Service)(nil)
