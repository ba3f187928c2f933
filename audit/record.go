package audit

import (
	"time"

	"github.com/google/uuid"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/errors"
)

// MaxNoteSize bounds the free text note attached to a settlement.
const MaxNoteSize = 280

// Record is the queryable projection of a sanctioned energy settlement. It
// links the finalized transaction to the external interaction evidence and
// is never mutated after creation.
type Record struct {
	// EvidenceHash is an opaque externally supplied digest, eg the hash
	// of a charging session log.
	EvidenceHash []byte
	// LinearID uniquely identifies this record across the audit trail.
	LinearID string
	// Sender is the party that paid the tokens.
	Sender energyledger.Address
	// Receiver is the host of the account that received the tokens.
	Receiver energyledger.Address
	// Quantity of tokens settled by the linked transaction.
	Quantity uint64
	// Note is free text supplied by the initiator.
	Note string
	// TxID is the identifier of the settlement transaction.
	TxID string
	// RecordedAt is set by the recorder when the record is persisted.
	RecordedAt time.Time
}

// NewRecord assembles an audit record at transaction build time. The TxID is
// filled in by the builder once the transaction envelope exists.
func NewRecord(evidenceHash []byte, sender, receiver energyledger.Address, quantity uint64, note string) *Record {
	return &Record{
		EvidenceHash: evidenceHash,
		LinearID:     uuid.NewString(),
		Sender:       sender,
		Receiver:     receiver,
		Quantity:     quantity,
		Note:         note,
	}
}

// Validate ensures the record can be linked and queried later.
func (r *Record) Validate() error {
	if r == nil {
		return errors.Wrap(errors.ErrInput, "nil audit record")
	}
	var err error
	if len(r.EvidenceHash) == 0 {
		err = errors.Append(err, errors.Wrap(errors.ErrInput, "missing evidence hash"))
	}
	if r.LinearID == "" {
		err = errors.Append(err, errors.Wrap(errors.ErrInput, "missing linear id"))
	}
	if r.Quantity == 0 {
		err = errors.Append(err, errors.Wrap(errors.ErrInput, "zero quantity"))
	}
	if len(r.Note) > MaxNoteSize {
		err = errors.Append(err, errors.Wrap(errors.ErrInput, "note too long"))
	}
	err = errors.Append(err, errors.Wrap(r.Sender.Validate(), "sender"))
	err = errors.Append(err, errors.Wrap(r.Receiver.Validate(), "receiver"))
	return err
}

// Clone returns an independent copy so stored records cannot be mutated
// through returned references.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cpy := *r
	cpy.EvidenceHash = append([]byte(nil), r.EvidenceHash...)
	cpy.Sender = r.Sender.Clone()
	cpy.Receiver = r.Receiver.Clone()
	return &cpy
}
