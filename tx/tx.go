package tx

import (
	"crypto/sha512"
	"encoding/binary"

	"github.com/google/uuid"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/audit"
	"github.com/parsedata/energyledger/crypto"
	"github.com/parsedata/energyledger/errors"
	"github.com/parsedata/energyledger/token"
)

// SignCodeV1 is the current way to prefix the bytes we use to build
// a signature.
var SignCodeV1 = []byte{0, 0xCA, 0xFE, 0}

// PendingTransaction is a proposed atomic ledger transition. It is built in
// memory, verified, progressively signed, submitted once to the notary and
// then becomes immutable history.
type PendingTransaction struct {
	// ID uniquely identifies the transaction.
	ID string
	// Notary that must uniqueness-stamp this transaction.
	Notary energyledger.Address
	// Inputs are the resolved records this transaction consumes, ordered
	// ascending by record ID.
	Inputs token.Records
	// Outputs are the records this transaction mints, ordered with the
	// primary output first and any change output last.
	Outputs token.Records
	// Commands name the business operations and their required signers.
	Commands []Command
	// SenderScope is the filter that was used to select the inputs.
	SenderScope token.OwnerFilter
	// Audit is the linked settlement summary. Only present when an
	// energy transfer command is attached.
	Audit *audit.Record

	// Signatures collected so far, in collection order.
	Signatures []*crypto.Signature
	// NotarySig is the uniqueness stamp. Set only on finalized history.
	NotarySig *crypto.Signature
}

// NewPendingTransaction creates an empty envelope bound to a notary.
func NewPendingTransaction(notary energyledger.Address) *PendingTransaction {
	return &PendingTransaction{
		ID:     uuid.NewString(),
		Notary: notary,
	}
}

// InputRefs returns the IDs of all consumed records. This reference list is
// what the notary tracks for double-spend detection.
func (t *PendingTransaction) InputRefs() []string {
	refs := make([]string, len(t.Inputs))
	for i, in := range t.Inputs {
		refs[i] = in.ID
	}
	return refs
}

// RequiredSigners returns the union of the signer sets of all commands,
// with duplicates removed, in command order.
func (t *PendingTransaction) RequiredSigners() []energyledger.Address {
	var all []energyledger.Address
	for _, c := range t.Commands {
		all = append(all, c.RequiredSigners()...)
	}
	return energyledger.DedupAddresses(all)
}

// SignedBy reports whether a valid signature from the given address was
// already collected.
func (t *PendingTransaction) SignedBy(addr energyledger.Address) bool {
	for _, sig := range t.Signatures {
		if sig.Address().Equals(addr) {
			return true
		}
	}
	return false
}

// MissingSigners returns the required signers that have not signed yet.
func (t *PendingTransaction) MissingSigners() []energyledger.Address {
	var missing []energyledger.Address
	for _, addr := range t.RequiredSigners() {
		if !t.SignedBy(addr) {
			missing = append(missing, addr)
		}
	}
	return missing
}

// FullySigned reports whether every required signer signed.
func (t *PendingTransaction) FullySigned() bool {
	return len(t.MissingSigners()) == 0
}

// SignWith signs the transaction with the given key and collects the
// signature. The key must belong to a required signer that did not sign yet.
func (t *PendingTransaction) SignWith(signer crypto.Signer) error {
	addr := signer.PublicKey().Address()
	required := false
	for _, want := range t.RequiredSigners() {
		if want.Equals(addr) {
			required = true
			break
		}
	}
	if !required {
		return errors.Wrapf(errors.ErrUnauthorized, "%s is not a required signer", addr)
	}
	if t.SignedBy(addr) {
		return errors.Wrapf(errors.ErrDuplicate, "%s already signed", addr)
	}
	sig, err := signer.Sign(t.SignBytes())
	if err != nil {
		return errors.Wrap(err, "sign")
	}
	t.Signatures = append(t.Signatures, sig)
	return nil
}

// AddSignature collects a signature produced by a counterparty. It is
// rejected unless it verifies against the sign bytes, belongs to a required
// signer and was not collected before.
func (t *PendingTransaction) AddSignature(sig *crypto.Signature) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if !sig.Verify(t.SignBytes()) {
		return errors.Wrap(errors.ErrUnauthorized, "signature does not verify")
	}
	addr := sig.Address()
	required := false
	for _, want := range t.RequiredSigners() {
		if want.Equals(addr) {
			required = true
			break
		}
	}
	if !required {
		return errors.Wrapf(errors.ErrUnauthorized, "%s is not a required signer", addr)
	}
	if t.SignedBy(addr) {
		return errors.Wrapf(errors.ErrDuplicate, "%s already signed", addr)
	}
	t.Signatures = append(t.Signatures, sig)
	return nil
}

// Validate checks the structural sanity of the envelope. Business invariants
// are the contract verifier's job.
func (t *PendingTransaction) Validate() error {
	if t == nil {
		return errors.Wrap(errors.ErrInput, "nil transaction")
	}
	var err error
	if t.ID == "" {
		err = errors.Append(err, errors.Wrap(errors.ErrInput, "missing id"))
	}
	err = errors.Append(err, errors.Wrap(t.Notary.Validate(), "notary"))
	if len(t.Commands) == 0 {
		err = errors.Append(err, errors.Wrap(errors.ErrInput, "no commands"))
	}
	for i, c := range t.Commands {
		err = errors.Append(err, errors.Wrapf(c.Validate(), "command %d", i))
	}
	for i, in := range t.Inputs {
		err = errors.Append(err, errors.Wrapf(in.Validate(), "input %d", i))
	}
	if len(t.Outputs) == 0 {
		err = errors.Append(err, errors.Wrap(errors.ErrInput, "no outputs"))
	}
	for i, out := range t.Outputs {
		err = errors.Append(err, errors.Wrapf(out.Validate(), "output %d", i))
	}
	if t.Audit != nil {
		err = errors.Append(err, errors.Wrap(t.Audit.Validate(), "audit"))
	}
	return err
}

/*
SignBytes returns a deterministic digest of everything that makes this
transaction what it is: the envelope identity, the notary, all inputs,
all outputs, all commands and the linked audit record. Signatures are
excluded so collected signatures do not invalidate each other.

The layout is a versioned concatenation of length-prefixed fields,
prehashed with sha512 before it is fed into the public key
signing/verification step.
*/
func (t *PendingTransaction) SignBytes() []byte {
	var buf []byte
	buf = append(buf, SignCodeV1...)
	buf = appendField(buf, []byte(t.ID))
	buf = appendField(buf, t.Notary)
	for _, in := range t.Inputs {
		buf = appendField(buf, []byte(in.ID))
	}
	for _, out := range t.Outputs {
		buf = appendRecord(buf, out)
	}
	for _, c := range t.Commands {
		buf = appendField(buf, []byte(c.Tag()))
		for _, addr := range c.RequiredSigners() {
			buf = appendField(buf, addr)
		}
	}
	buf = appendField(buf, []byte(t.SenderScope.Account))
	buf = appendField(buf, t.SenderScope.Owner)
	if t.Audit != nil {
		buf = appendField(buf, t.Audit.EvidenceHash)
		buf = appendField(buf, []byte(t.Audit.LinearID))
		buf = appendField(buf, t.Audit.Sender)
		buf = appendField(buf, t.Audit.Receiver)
		buf = appendUint64(buf, t.Audit.Quantity)
		buf = appendField(buf, []byte(t.Audit.Note))
	}

	digest := sha512.Sum512(buf)
	return digest[:]
}

func appendRecord(buf []byte, r token.Record) []byte {
	buf = appendField(buf, []byte(r.ID))
	buf = appendField(buf, []byte(r.TokenType))
	buf = appendUint64(buf, r.Quantity)
	buf = appendField(buf, r.Owner)
	buf = appendField(buf, []byte(r.Account))
	buf = appendField(buf, r.Issuer)
	return buf
}

func appendField(buf, field []byte) []byte {
	buf = appendUint64(buf, uint64(len(field)))
	return append(buf, field...)
}

func appendUint64(buf []byte, n uint64) []byte {
	var enc [8]byte
	binary.BigEndian.PutUint64(enc[:], n)
	return append(buf, enc[:]...)
}
