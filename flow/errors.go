package flow

import (
	"fmt"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/errors"
)

// InsufficientBalanceError is returned when the sender's unspent records do
// not cover the requested quantity. It is detected before any network
// interaction and leaves no partial state behind.
type InsufficientBalanceError struct {
	Available uint64
	Requested uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: %d available, %d requested", e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Cause() error {
	return errors.ErrInsufficientBalance
}

// RefusalError is returned when a counterparty declines to sign. This is a
// business decision by the counterparty and must not be retried
// automatically.
type RefusalError struct {
	Party  energyledger.Address
	Reason string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("party %s refused to sign: %s", e.Party, e.Reason)
}

func (e *RefusalError) Cause() error {
	return errors.ErrSignatureRefused
}
