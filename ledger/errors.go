package ledger

import (
	"fmt"
	"strings"

	"github.com/parsedata/energyledger/errors"
)

// ConflictError is returned when a transaction tries to consume records that
// are not in the unspent set anymore. It is rooted in ErrNotaryConflict, a
// local conflict and a notary rejection mean the same thing: somebody else
// consumed the inputs first.
type ConflictError struct {
	TxID              string
	ConflictingInputs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("transaction %s conflicts on inputs [%s]",
		e.TxID, strings.Join(e.ConflictingInputs, ", "))
}

// Cause routes Is checks to the notary conflict root.
func (e *ConflictError) Cause() error {
	return errors.ErrNotaryConflict
}
