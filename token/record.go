package token

import (
	"regexp"

	"github.com/google/uuid"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/errors"
)

// IsTokenType is the RegExp to ensure valid token type names.
var IsTokenType = regexp.MustCompile(`^[A-Za-z]{3,20}$`).MatchString

// MaxQuantity is the largest quantity a single record may carry. The cap
// keeps total sums of any realistic record set inside uint64.
const MaxQuantity uint64 = 1 << 58

// Record is an indivisible, owned unit of value. A record is never partially
// spent. Spending consumes it entirely and mints new records for any
// remainder.
type Record struct {
	// ID is unique across all records ever created.
	ID string
	// TokenType is the symbolic name of the value carried, eg "EnergyToken".
	TokenType string
	// Quantity carried by this record.
	Quantity uint64
	// Owner is the address of the key controlling this record.
	Owner energyledger.Address
	// Account optionally scopes the record to a named account hosted by
	// the owning party. Empty for records held by a raw node identity.
	Account string
	// Issuer is the authority that originally minted the value.
	Issuer energyledger.Address
}

// NewRecord mints a record with a fresh unique ID.
func NewRecord(tokenType string, quantity uint64, owner, issuer energyledger.Address) Record {
	return Record{
		ID:        uuid.NewString(),
		TokenType: tokenType,
		Quantity:  quantity,
		Owner:     owner,
		Issuer:    issuer,
	}
}

// WithAccount returns a copy of the record scoped to the given account.
func (r Record) WithAccount(accountID string) Record {
	r.Account = accountID
	return r
}

// SameType returns true if both records carry the same token type.
func (r Record) SameType(o Record) bool {
	return r.TokenType == o.TokenType
}

// Clone provides an independent copy of a record.
func (r Record) Clone() Record {
	r.Owner = r.Owner.Clone()
	r.Issuer = r.Issuer.Clone()
	return r
}

// Validate ensures the record is well formed. Zero quantity records are
// rejected, they carry no value and only grow the unspent set.
func (r Record) Validate() error {
	var err error
	if r.ID == "" {
		err = errors.Append(err, errors.Wrap(errors.ErrInput, "missing id"))
	}
	if !IsTokenType(r.TokenType) {
		err = errors.Append(err, errors.Wrapf(errors.ErrInput, "invalid token type: %q", r.TokenType))
	}
	if r.Quantity == 0 {
		err = errors.Append(err, errors.Wrap(errors.ErrInput, "zero quantity"))
	}
	if r.Quantity > MaxQuantity {
		err = errors.Append(err, errors.ErrOverflow)
	}
	err = errors.Append(err, errors.Wrap(r.Owner.Validate(), "owner"))
	err = errors.Append(err, errors.Wrap(r.Issuer.Validate(), "issuer"))
	return err
}

// Records is a list of token records.
type Records []Record

// Total sums the quantities of all records. An error is returned if the sum
// does not fit into uint64.
func (rs Records) Total() (uint64, error) {
	var sum uint64
	for _, r := range rs {
		if n := sum + r.Quantity; n < sum {
			return 0, errors.ErrOverflow.New("records total")
		} else {
			sum = n
		}
	}
	return sum, nil
}

// OwnerFilter selects records either by raw owner address, by the owning
// account, or both. A zero filter matches nothing.
type OwnerFilter struct {
	Owner   energyledger.Address
	Account string
}

// Matches reports whether a record is selected by this filter. When an
// account is set, the record must be scoped to exactly that account. When an
// owner address is set, the record's owner key must match. Account scoped
// filters intentionally ignore the owner key, account records are held
// under fresh pseudonymous keys.
func (f OwnerFilter) Matches(r Record) bool {
	if f.Account != "" {
		return r.Account == f.Account
	}
	if len(f.Owner) != 0 {
		return r.Account == "" && f.Owner.Equals(r.Owner)
	}
	return false
}

// Validate ensures at least one selector is present.
func (f OwnerFilter) Validate() error {
	if f.Account == "" && len(f.Owner) == 0 {
		return errors.Wrap(errors.ErrInput, "empty owner filter")
	}
	if len(f.Owner) != 0 {
		return errors.Wrap(f.Owner.Validate(), "owner")
	}
	return nil
}
