package flow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/audit"
	"github.com/parsedata/energyledger/contract"
	"github.com/parsedata/energyledger/crypto"
	"github.com/parsedata/energyledger/errors"
	"github.com/parsedata/energyledger/ledger"
	"github.com/parsedata/energyledger/tx"
)

// Coordinator drives one settlement transaction through the protocol state
// machine: verify, sign locally, collect every remote signature, notarize,
// apply to the ledger, record the audit trail and distribute the result.
//
// A coordinator is safe for concurrent use. Each Settle call is an
// independent flow instance, waits suspend only that instance.
type Coordinator struct {
	store     *ledger.Store
	notary    Notary
	transport Transport
	recorder  *audit.Recorder
	log       *logrus.Entry
	timeout   time.Duration

	// observer, when set, is told about every state transition. Useful
	// for telemetry and tests, never load bearing.
	observer func(txID string, s State)
}

// NewCoordinator wires a coordinator. The recorder may be backed by a nil
// store, audit persistence then degrades to a surfaced warning. A zero
// timeout means the caller's context rules alone.
func NewCoordinator(store *ledger.Store, notary Notary, transport Transport, recorder *audit.Recorder, log *logrus.Entry, timeout time.Duration) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		store:     store,
		notary:    notary,
		transport: transport,
		recorder:  recorder,
		log:       log,
		timeout:   timeout,
	}
}

// SetObserver registers a state transition hook.
func (c *Coordinator) SetObserver(fn func(txID string, s State)) {
	c.observer = fn
}

func (c *Coordinator) step(log *logrus.Entry, txID string, s State) {
	log.WithField("state", s).Debug("settlement state")
	if c.observer != nil {
		c.observer(txID, s)
	}
}

func (c *Coordinator) fail(log *logrus.Entry, txID string, err error) error {
	log.WithField("state", StateFailed).WithError(err).Warn("settlement failed")
	if c.observer != nil {
		c.observer(txID, StateFailed)
	}
	return err
}

// Settle runs the full protocol for a built transaction. The initiator key
// signs first, then one session per remote party is opened to collect the
// counterparty signatures. Observers receive the finalized transaction for
// record keeping but are not asked to sign.
//
// On success the finalized transaction is returned. When audit persistence
// fails after the ledger was already updated, the finalized transaction is
// returned together with a storage error: the transfer is authoritative,
// the broken audit trail is surfaced, never silently dropped.
//
// No failure is retried internally. A notary conflict is permanent, the
// caller must rebuild against fresh ledger state to try again.
func (c *Coordinator) Settle(ctx context.Context, t *tx.PendingTransaction, initiator crypto.Signer, remotes, observers []energyledger.Address) (*tx.PendingTransaction, error) {
	log := c.log.WithField("tx", t.ID)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.step(log, t.ID, StateBuilding)

	// Verification runs before any signature is requested. A transaction
	// that fails here never opens a remote session.
	if err := contract.Verify(t); err != nil {
		return nil, c.fail(log, t.ID, err)
	}
	c.step(log, t.ID, StateVerified)

	if err := t.SignWith(initiator); err != nil {
		return nil, c.fail(log, t.ID, err)
	}
	c.step(log, t.ID, StateLocallySigned)

	var sessions []Session
	defer func() {
		for _, s := range sessions {
			s.Close()
		}
	}()

	c.step(log, t.ID, StateAwaitingSignatures)
	for _, party := range remotes {
		session, err := c.transport.Open(ctx, party)
		if err != nil {
			return nil, c.fail(log, t.ID, c.timeoutOr(ctx, errors.Wrapf(err, "open session to %s", party)))
		}
		sessions = append(sessions, session)

		if err := session.Send(ctx, t); err != nil {
			return nil, c.fail(log, t.ID, c.timeoutOr(ctx, errors.Wrapf(err, "send to %s", party)))
		}
		sig, err := session.AwaitSignature(ctx)
		if err != nil {
			return nil, c.fail(log, t.ID, c.timeoutOr(ctx, err))
		}
		if err := t.AddSignature(sig); err != nil {
			return nil, c.fail(log, t.ID, errors.Wrapf(err, "signature from %s", party))
		}
	}
	if !t.FullySigned() {
		return nil, c.fail(log, t.ID, errors.Wrapf(errors.ErrState, "missing signers: %v", t.MissingSigners()))
	}

	c.step(log, t.ID, StateNotarizing)
	stamp, err := c.notary.Notarize(ctx, t)
	if err != nil {
		return nil, c.fail(log, t.ID, c.timeoutOr(ctx, err))
	}
	t.NotarySig = stamp

	// Point of no return. The ledger is mutated exactly once, here.
	if err := c.store.Apply(t); err != nil {
		return nil, c.fail(log, t.ID, err)
	}
	c.step(log, t.ID, StateFinalized)

	var auditErr error
	if t.Audit != nil {
		if err := c.recorder.Record(t.Audit); err != nil {
			// The transfer is already final. Surface, do not roll back.
			log.WithError(err).Warn("audit record not persisted")
			auditErr = errors.Wrap(err, "audit trail")
		}
	}

	for _, party := range observers {
		session, err := c.transport.Open(ctx, party)
		if err != nil {
			log.WithError(err).WithField("party", party.String()).Warn("cannot distribute finalized transaction")
			continue
		}
		sessions = append(sessions, session)
	}
	for _, session := range sessions {
		if err := session.Distribute(ctx, t); err != nil {
			log.WithError(err).Warn("finalized transaction not distributed")
		}
	}

	log.WithField("inputs", len(t.Inputs)).WithField("outputs", len(t.Outputs)).Info("settlement finalized")
	return t, auditErr
}

// timeoutOr folds context expiry into the timeout error class. Timeouts are
// terminal like every other failure, the caller restarts from Building with
// fresh ledger state if it wants to retry.
func (c *Coordinator) timeoutOr(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(errors.ErrTimeout, err.Error())
	}
	return err
}
