package flow

import (
	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/audit"
	"github.com/parsedata/energyledger/errors"
	"github.com/parsedata/energyledger/ledger"
	"github.com/parsedata/energyledger/token"
	"github.com/parsedata/energyledger/tx"
)

// BusinessPayload carries the sanctioned-settlement context attached to a
// directed transfer: who blesses the transfer and what evidence it links to.
type BusinessPayload struct {
	ReceiverHost energyledger.Address
	Sanctioning  energyledger.Address
	EvidenceHash []byte
	Note         string
}

// TransferSpec is everything the builder needs to assemble a transfer.
type TransferSpec struct {
	TokenType string
	Quantity  uint64
	// Sender selects the input records, either a raw identity or an
	// account scope.
	Sender token.OwnerFilter
	// SenderKey is the address whose signature authorizes consuming the
	// inputs, and the owner of any change output.
	SenderKey energyledger.Address
	// Receiver is the destination owner key of the primary output.
	Receiver energyledger.Address
	// ReceiverAccount optionally tags the primary output with the
	// receiving account.
	ReceiverAccount string
	Notary          energyledger.Address
	// Business is present for sanctioned energy settlements only.
	Business *BusinessPayload
}

// BuildTransfer assembles a candidate transfer transaction against the
// current store snapshot. Inputs are selected greedily in ascending record
// ID order, so the same snapshot always yields the same selection. Nothing
// is consumed yet, the transaction only proposes the transition.
func BuildTransfer(store *ledger.Store, spec TransferSpec) (*tx.PendingTransaction, error) {
	if spec.Quantity == 0 {
		// A no-input, single-output transaction would be a settlement
		// no-op. Reject instead of notarizing noise.
		return nil, errors.Wrap(errors.ErrInput, "zero quantity transfer")
	}
	if err := spec.Sender.Validate(); err != nil {
		return nil, errors.Wrap(err, "sender")
	}
	if err := spec.SenderKey.Validate(); err != nil {
		return nil, errors.Wrap(err, "sender key")
	}
	if err := spec.Receiver.Validate(); err != nil {
		return nil, errors.Wrap(err, "receiver")
	}

	unspent := store.Unspent(spec.Sender, spec.TokenType)

	var selected token.Records
	var accumulated uint64
	for _, rec := range unspent {
		if accumulated >= spec.Quantity {
			break
		}
		selected = append(selected, rec)
		accumulated += rec.Quantity
	}
	if accumulated < spec.Quantity {
		available, err := unspent.Total()
		if err != nil {
			return nil, err
		}
		return nil, &InsufficientBalanceError{
			Available: available,
			Requested: spec.Quantity,
		}
	}

	// Outputs inherit the single issuer of the selected inputs. A
	// selection spanning records of different issuers is rejected.
	issuer := selected[0].Issuer
	for _, rec := range selected[1:] {
		if !rec.Issuer.Equals(issuer) {
			return nil, errors.Wrapf(errors.ErrState, "selected inputs mix issuers %s and %s", issuer, rec.Issuer)
		}
	}

	t := tx.NewPendingTransaction(spec.Notary)
	t.Inputs = selected
	t.SenderScope = spec.Sender

	primary := token.NewRecord(spec.TokenType, spec.Quantity, spec.Receiver, issuer)
	if spec.ReceiverAccount != "" {
		primary = primary.WithAccount(spec.ReceiverAccount)
	}
	t.Outputs = token.Records{primary}

	if surplus := accumulated - spec.Quantity; surplus > 0 {
		change := token.NewRecord(spec.TokenType, surplus, spec.SenderKey, issuer)
		if spec.Sender.Account != "" {
			change = change.WithAccount(spec.Sender.Account)
		}
		t.Outputs = append(t.Outputs, change)
	}

	t.Commands = []tx.Command{tx.MoveCommand{Sender: spec.SenderKey}}

	if b := spec.Business; b != nil {
		t.Commands = append(t.Commands, tx.EnergyTransferCommand{
			Sender:       spec.SenderKey,
			ReceiverHost: b.ReceiverHost,
			Sanctioning:  b.Sanctioning,
		})
		t.Audit = audit.NewRecord(b.EvidenceHash, spec.SenderKey, b.ReceiverHost, spec.Quantity, b.Note)
		t.Audit.TxID = t.ID
	}

	return t, nil
}

// BuildIssue assembles a minting transaction: no inputs, a single output of
// the requested quantity to a raw identity, signed by the issuer alone.
func BuildIssue(notary, issuer, recipient energyledger.Address, tokenType string, quantity uint64) (*tx.PendingTransaction, error) {
	if quantity == 0 {
		return nil, errors.Wrap(errors.ErrInput, "zero quantity issue")
	}
	if err := issuer.Validate(); err != nil {
		return nil, errors.Wrap(err, "issuer")
	}
	if err := recipient.Validate(); err != nil {
		return nil, errors.Wrap(err, "recipient")
	}

	t := tx.NewPendingTransaction(notary)
	t.Outputs = token.Records{token.NewRecord(tokenType, quantity, recipient, issuer)}
	t.Commands = []tx.Command{tx.IssueCommand{Issuer: issuer}}
	return t, nil
}
