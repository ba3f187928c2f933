package ledgertest

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/audit"
	"github.com/parsedata/energyledger/crypto"
	"github.com/parsedata/energyledger/directory"
	"github.com/parsedata/energyledger/errors"
	"github.com/parsedata/energyledger/flow"
	"github.com/parsedata/energyledger/ledger"
	"github.com/parsedata/energyledger/tx"
)

// Party bundles the full per-node stack of one test participant.
type Party struct {
	Name      string
	Key       *crypto.PrivateKey
	Store     *ledger.Store
	Directory *directory.Service
	Recorder  *audit.Recorder
	Responder *flow.Responder
	Service   *flow.Service
}

// Address returns the party's node identity.
func (p *Party) Address() energyledger.Address {
	return p.Key.Address()
}

// Network wires any number of parties over a loopback session transport and
// a shared in-memory notary. Counterparty responders run in-process and
// synchronously, which keeps the protocol round-trips observable in tests.
type Network struct {
	Notary *MemNotary

	mu      sync.RWMutex
	parties map[string]*Party
}

// NewNetwork returns an empty network with a fresh notary.
func NewNetwork() *Network {
	return &Network{
		Notary:  NewMemNotary(),
		parties: make(map[string]*Party),
	}
}

// quietLogger keeps test output clean while still exercising log paths.
func quietLogger(name string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("node", name)
}

// AddParty creates a party with its own key, store, directory, audit trail
// and settlement service, and joins it to the network.
func (n *Network) AddParty(name string) (*Party, error) {
	key := crypto.GenPrivKeyEd25519()
	store := ledger.NewStore()
	dir := directory.NewService(key.Address())
	recorder := audit.NewRecorder(audit.NewMemKV())
	log := quietLogger(name)

	svc, err := flow.NewService(flow.Config{
		Key:           key,
		Store:         store,
		Directory:     dir,
		Notary:        n.Notary,
		NotaryAddress: n.Notary.Address(),
		Transport:     n,
		Recorder:      recorder,
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}

	p := &Party{
		Name:      name,
		Key:       key,
		Store:     store,
		Directory: dir,
		Recorder:  recorder,
		Responder: flow.NewResponder(key, store, recorder, log),
		Service:   svc,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.parties[string(key.Address())]; ok {
		return nil, errors.Wrapf(errors.ErrDuplicate, "party %q", name)
	}
	n.parties[string(key.Address())] = p
	return p, nil
}

// MustAddParty is AddParty that panics on failure, for test setup lines.
func (n *Network) MustAddParty(name string) *Party {
	p, err := n.AddParty(name)
	if err != nil {
		panic(err)
	}
	return p
}

var _ flow.Transport = (*Network)(nil)

// Open returns a loopback session running the target party's responder.
func (n *Network) Open(ctx context.Context, party energyledger.Address) (flow.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.RLock()
	p, ok := n.parties[string(party)]
	n.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "no party at %s", party)
	}
	return &loopbackSession{responder: p.Responder}, nil
}

// loopbackSession delivers to the counterparty's responder in-process.
// At-most-once per session: a second Send is rejected.
type loopbackSession struct {
	responder *flow.Responder
	pending   *tx.PendingTransaction
	closed    bool
}

func (s *loopbackSession) Send(ctx context.Context, t *tx.PendingTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return errors.Wrap(errors.ErrState, "session closed")
	}
	if s.pending != nil {
		return errors.Wrap(errors.ErrState, "transaction already sent on this session")
	}
	s.pending = t
	return nil
}

func (s *loopbackSession) AwaitSignature(ctx context.Context) (*crypto.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pending == nil {
		return nil, errors.Wrap(errors.ErrState, "nothing was sent on this session")
	}
	return s.responder.HandleSign(s.pending)
}

func (s *loopbackSession) Distribute(ctx context.Context, t *tx.PendingTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.responder.HandleFinalized(t)
}

func (s *loopbackSession) Close() error {
	s.closed = true
	return nil
}
