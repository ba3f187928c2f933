package directory

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/crypto"
	"github.com/parsedata/energyledger/errors"
)

// Info describes an account: a named, shareable sub-identity hosted by a
// party, used to scope token ownership below the level of a whole node.
type Info struct {
	// Name is the human readable account name, unique per host.
	Name string
	// ID is the stable account identifier.
	ID string
	// Host is the identity of the party hosting this account.
	Host energyledger.Address
}

// Validate ensures the account info is complete.
func (i Info) Validate() error {
	var err error
	if i.Name == "" {
		err = errors.Append(err, errors.Wrap(errors.ErrInput, "missing name"))
	}
	if i.ID == "" {
		err = errors.Append(err, errors.Wrap(errors.ErrInput, "missing id"))
	}
	err = errors.Append(err, errors.Wrap(i.Host.Validate(), "host"))
	return err
}

// account is the host-side state of one account. Shared-in accounts keep a
// reference to the service of the hosting party instead of key material.
type account struct {
	info    Info
	signing *crypto.PrivateKey
	// transferKeys are the fresh pseudonymous keys handed out for
	// incoming transfers, newest last.
	transferKeys []*crypto.PrivateKey
	origin       *Service
}

func (a *account) local() bool {
	return a.origin == nil
}

// Service is the account directory of a single hosting party. It maps local
// account names to identifiers and signing keys, learns about remote
// accounts through sharing, and hands out fresh transfer keys so transfer
// destinations stay unlinkable pseudonymous keys.
type Service struct {
	mu     sync.RWMutex
	host   energyledger.Address
	byName map[string]*account
	byID   map[string]*account
}

// NewService returns an empty directory for the given hosting party.
func NewService(host energyledger.Address) *Service {
	return &Service{
		host:   host,
		byName: make(map[string]*account),
		byID:   make(map[string]*account),
	}
}

// Host returns the hosting party's identity.
func (s *Service) Host() energyledger.Address {
	return s.host
}

// CreateAccount registers a new locally hosted account and generates its
// long-term signing key. The name must be unused.
func (s *Service) CreateAccount(name string) (Info, error) {
	if name == "" {
		return Info{}, errors.Wrap(errors.ErrInput, "empty account name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; ok {
		return Info{}, errors.Wrapf(errors.ErrDuplicate, "account %q", name)
	}
	acc := &account{
		info: Info{
			Name: name,
			ID:   uuid.NewString(),
			Host: s.host,
		},
		signing: crypto.GenPrivKeyEd25519(),
	}
	s.byName[name] = acc
	s.byID[acc.info.ID] = acc
	return acc.info, nil
}

// Resolve maps an account name to its identifier and hosting party. Both
// locally hosted and shared-in accounts resolve.
func (s *Service) Resolve(name string) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.byName[name]
	if !ok {
		return Info{}, errors.Wrapf(errors.ErrAccountNotFound, "%q", name)
	}
	return acc.info, nil
}

// ResolveID maps an account identifier to its info.
func (s *Service) ResolveID(accountID string) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.byID[accountID]
	if !ok {
		return Info{}, errors.Wrapf(errors.ErrAccountNotFound, "id %q", accountID)
	}
	return acc.info, nil
}

// Accounts lists all locally hosted accounts, sorted by name.
func (s *Service) Accounts() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Info
	for _, acc := range s.byName {
		if acc.local() {
			out = append(out, acc.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ShareAccount makes a locally hosted account known to another party's
// directory. A directed transfer requires the receiving account to have
// been shared with the sender first.
func (s *Service) ShareAccount(name string, to *Service) error {
	s.mu.RLock()
	acc, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok || !acc.local() {
		return errors.Wrapf(errors.ErrAccountNotFound, "%q", name)
	}

	to.mu.Lock()
	defer to.mu.Unlock()
	if _, ok := to.byName[name]; ok {
		return errors.Wrapf(errors.ErrDuplicate, "account %q already known", name)
	}
	shared := &account{info: acc.info, origin: s}
	to.byName[name] = shared
	to.byID[acc.info.ID] = shared
	return nil
}

// RequestTransferKey returns a fresh owner key for the account, so transfer
// destinations are unlinkable pseudonymous keys rather than the account's
// long-term key. For shared-in accounts the request is forwarded to the
// hosting party, which keeps the private part.
func (s *Service) RequestTransferKey(accountID string) (energyledger.Address, error) {
	s.mu.RLock()
	acc, ok := s.byID[accountID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrAccountNotFound, "id %q", accountID)
	}
	if !acc.local() {
		return acc.origin.RequestTransferKey(accountID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := crypto.GenPrivKeyEd25519()
	acc.transferKeys = append(acc.transferKeys, key)
	return key.Address(), nil
}

// SignerFor returns the long-term signing key of a locally hosted account.
// Spends from an account are authorized with this key.
func (s *Service) SignerFor(accountID string) (crypto.Signer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.byID[accountID]
	if !ok || !acc.local() {
		return nil, errors.Wrapf(errors.ErrAccountNotFound, "id %q", accountID)
	}
	return acc.signing, nil
}

// SigningAddress returns the address of the account's long-term key.
func (s *Service) SigningAddress(accountID string) (energyledger.Address, error) {
	signer, err := s.SignerFor(accountID)
	if err != nil {
		return nil, err
	}
	return signer.PublicKey().Address(), nil
}
