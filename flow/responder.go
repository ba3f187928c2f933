package flow

import (
	"github.com/sirupsen/logrus"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/audit"
	"github.com/parsedata/energyledger/contract"
	"github.com/parsedata/energyledger/crypto"
	"github.com/parsedata/energyledger/errors"
	"github.com/parsedata/energyledger/ledger"
	"github.com/parsedata/energyledger/tx"
)

// Policy is a counterparty's own acceptance check, run on top of the
// contract verification. A sanctioning body for example confirms the
// evidence hash is plausible before blessing the transfer. Returning an
// error refuses the signature.
type Policy func(t *tx.PendingTransaction) error

// Responder is the counterparty side of a settlement: it independently
// verifies partially signed transactions before signing them, and records
// finalized history distributed back to it.
type Responder struct {
	party    energyledger.Address
	signer   crypto.Signer
	store    *ledger.Store
	recorder *audit.Recorder
	policy   Policy
	log      *logrus.Entry
}

// NewResponder wires the responding side of one party.
func NewResponder(signer crypto.Signer, store *ledger.Store, recorder *audit.Recorder, log *logrus.Entry) *Responder {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Responder{
		party:    signer.PublicKey().Address(),
		signer:   signer,
		store:    store,
		recorder: recorder,
		log:      log,
	}
}

// SetPolicy installs the party's acceptance policy.
func (r *Responder) SetPolicy(p Policy) {
	r.policy = p
}

// Party returns the identity this responder signs for.
func (r *Responder) Party() energyledger.Address {
	return r.party
}

// HandleSign verifies the transaction and returns this party's signature.
// Refusal is decided locally, no network round-trip is needed: the contract
// check plus the local policy are all the evidence a party gets.
func (r *Responder) HandleSign(t *tx.PendingTransaction) (*crypto.Signature, error) {
	if err := contract.Verify(t); err != nil {
		r.log.WithField("tx", t.ID).WithError(err).Info("refusing to sign")
		return nil, &RefusalError{Party: r.party, Reason: err.Error()}
	}

	required := false
	for _, addr := range t.RequiredSigners() {
		if addr.Equals(r.party) {
			required = true
			break
		}
	}
	if !required {
		return nil, &RefusalError{Party: r.party, Reason: "not a required signer of this transaction"}
	}

	if r.policy != nil {
		if err := r.policy(t); err != nil {
			r.log.WithField("tx", t.ID).WithError(err).Info("policy refused transaction")
			return nil, &RefusalError{Party: r.party, Reason: err.Error()}
		}
	}

	sig, err := r.signer.Sign(t.SignBytes())
	if err != nil {
		return nil, errors.Wrap(err, "sign")
	}
	r.log.WithField("tx", t.ID).Debug("transaction signed")
	return sig, nil
}

// HandleFinalized records a notarized transaction in this party's own
// store and audit trail. Replays are harmless.
func (r *Responder) HandleFinalized(t *tx.PendingTransaction) error {
	if t.NotarySig == nil {
		return errors.Wrap(errors.ErrState, "transaction is not notarized")
	}
	r.store.RecordFinalized(t)
	if t.Audit != nil && r.recorder != nil {
		if err := r.recorder.Record(t.Audit); err != nil && !errors.ErrDuplicate.Is(err) {
			r.log.WithField("tx", t.ID).WithError(err).Warn("audit record not persisted")
		}
	}
	r.log.WithField("tx", t.ID).Info("finalized transaction recorded")
	return nil
}
