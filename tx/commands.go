package tx

import (
	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/errors"
)

// Tags of all commands understood by the contract. The verifier dispatches
// on the tag, not on the concrete type.
const (
	TagMove           = "move"
	TagIssue          = "issue"
	TagEnergyTransfer = "energy_transfer"
)

// Command names a business operation carried by a transaction together with
// the identities that must sign before the transaction can be notarized.
type Command interface {
	// Tag returns the routing tag for this command.
	Tag() string
	// RequiredSigners returns the addresses whose signatures this command
	// demands. The transaction's full signer set is the union over all
	// commands.
	RequiredSigners() []energyledger.Address
	Validate() error
}

var _ Command = (*MoveCommand)(nil)

// MoveCommand covers every change of token ownership. Only the key
// controlling the consumed inputs has to sign a plain move.
type MoveCommand struct {
	Sender energyledger.Address
}

func (MoveCommand) Tag() string { return TagMove }

func (c MoveCommand) RequiredSigners() []energyledger.Address {
	return []energyledger.Address{c.Sender}
}

func (c MoveCommand) Validate() error {
	return errors.Wrap(c.Sender.Validate(), "sender")
}

var _ Command = (*IssueCommand)(nil)

// IssueCommand mints new value into the ledger. Only the issuing authority
// signs.
type IssueCommand struct {
	Issuer energyledger.Address
}

func (IssueCommand) Tag() string { return TagIssue }

func (c IssueCommand) RequiredSigners() []energyledger.Address {
	return []energyledger.Address{c.Issuer}
}

func (c IssueCommand) Validate() error {
	return errors.Wrap(c.Issuer.Validate(), "issuer")
}

var _ Command = (*EnergyTransferCommand)(nil)

// EnergyTransferCommand marks a sanctioned energy settlement. On top of the
// sender it requires the receiving account's host and the sanctioning party
// to co-sign, attesting the off-ledger delivery actually happened.
type EnergyTransferCommand struct {
	Sender       energyledger.Address
	ReceiverHost energyledger.Address
	Sanctioning  energyledger.Address
}

func (EnergyTransferCommand) Tag() string { return TagEnergyTransfer }

func (c EnergyTransferCommand) RequiredSigners() []energyledger.Address {
	return []energyledger.Address{c.Sender, c.ReceiverHost, c.Sanctioning}
}

func (c EnergyTransferCommand) Validate() error {
	var err error
	err = errors.Append(err, errors.Wrap(c.Sender.Validate(), "sender"))
	err = errors.Append(err, errors.Wrap(c.ReceiverHost.Validate(), "receiver host"))
	err = errors.Append(err, errors.Wrap(c.Sanctioning.Validate(), "sanctioning party"))
	return err
}
