package flow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/audit"
	"github.com/parsedata/energyledger/crypto"
	"github.com/parsedata/energyledger/errors"
	"github.com/parsedata/energyledger/ledger"
	"github.com/parsedata/energyledger/token"
)

// DefaultTokenType is the token settled when the configuration does not
// name one.
const DefaultTokenType = "EnergyToken"

// Config wires one party's settlement service. Every collaborator is an
// explicit dependency, there is no service lookup by type.
type Config struct {
	// Key is the party's long-term identity key.
	Key *crypto.PrivateKey
	// Store holds this party's unspent records.
	Store *ledger.Store
	// Directory resolves account names and transfer keys.
	Directory Directory
	// Notary client and the notary's identity.
	Notary        Notary
	NotaryAddress energyledger.Address
	// Transport opens sessions to counterparties.
	Transport Transport
	// Recorder keeps the audit trail. Required, but it may be backed by
	// a nil store, persistence then degrades to surfaced warnings.
	Recorder *audit.Recorder
	// Logger is optional, the standard logger is used when absent.
	Logger *logrus.Entry
	// TokenType defaults to DefaultTokenType.
	TokenType string
	// Timeout bounds every settlement flow instance. Zero means the
	// caller's context rules alone.
	Timeout time.Duration
}

// Service exposes the settlement operations of one hosting party: issuing,
// the two transfer protocols, balance queries and audit lookups.
type Service struct {
	party     energyledger.Address
	key       *crypto.PrivateKey
	store     *ledger.Store
	dir       Directory
	notaryID  energyledger.Address
	recorder  *audit.Recorder
	coord     *Coordinator
	log       *logrus.Entry
	tokenType string
}

// NewService validates the configuration and builds the service.
func NewService(cfg Config) (*Service, error) {
	switch {
	case cfg.Key == nil:
		return nil, errors.Wrap(errors.ErrInput, "missing identity key")
	case cfg.Store == nil:
		return nil, errors.Wrap(errors.ErrInput, "missing ledger store")
	case cfg.Directory == nil:
		return nil, errors.Wrap(errors.ErrInput, "missing account directory")
	case cfg.Notary == nil:
		return nil, errors.Wrap(errors.ErrInput, "missing notary client")
	case cfg.Transport == nil:
		return nil, errors.Wrap(errors.ErrInput, "missing session transport")
	case cfg.Recorder == nil:
		return nil, errors.Wrap(errors.ErrInput, "missing audit recorder")
	}
	if err := cfg.NotaryAddress.Validate(); err != nil {
		return nil, errors.Wrap(err, "notary address")
	}
	tokenType := cfg.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	if !token.IsTokenType(tokenType) {
		return nil, errors.Wrapf(errors.ErrInput, "invalid token type %q", tokenType)
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	party := cfg.Key.Address()
	log = log.WithField("party", party.String())

	return &Service{
		party:     party,
		key:       cfg.Key,
		store:     cfg.Store,
		dir:       cfg.Directory,
		notaryID:  cfg.NotaryAddress,
		recorder:  cfg.Recorder,
		coord:     NewCoordinator(cfg.Store, cfg.Notary, cfg.Transport, cfg.Recorder, log, cfg.Timeout),
		log:       log,
		tokenType: tokenType,
	}, nil
}

// Party returns this service's node identity.
func (s *Service) Party() energyledger.Address {
	return s.party
}

// Coordinator exposes the underlying protocol driver, mostly so tests can
// observe state transitions.
func (s *Service) Coordinator() *Coordinator {
	return s.coord
}

// Issue mints the requested quantity to a raw party identity. Only the
// issuer signs, but the transaction still passes the notary to enter the
// ledger uniqueness-stamped.
func (s *Service) Issue(ctx context.Context, quantity uint64, recipient energyledger.Address) (string, error) {
	t, err := BuildIssue(s.notaryID, s.party, recipient, s.tokenType, quantity)
	if err != nil {
		return "", err
	}
	var observers []energyledger.Address
	if !recipient.Equals(s.party) {
		observers = append(observers, recipient)
	}
	final, err := s.coord.Settle(ctx, t, s.key, nil, observers)
	if err != nil {
		return "", err
	}
	return final.ID, nil
}

// IssueToAccount mints to a named account instead of a raw identity. The
// output is held by a fresh transfer key and tagged with the account, so
// account balance queries pick it up on any node.
func (s *Service) IssueToAccount(ctx context.Context, quantity uint64, account string) (string, error) {
	info, err := s.dir.Resolve(account)
	if err != nil {
		return "", err
	}
	key, err := s.dir.RequestTransferKey(info.ID)
	if err != nil {
		return "", err
	}
	t, err := BuildIssue(s.notaryID, s.party, key, s.tokenType, quantity)
	if err != nil {
		return "", err
	}
	t.Outputs[0] = t.Outputs[0].WithAccount(info.ID)

	var observers []energyledger.Address
	if !info.Host.Equals(s.party) {
		observers = append(observers, info.Host)
	}
	final, err := s.coord.Settle(ctx, t, s.key, nil, observers)
	if err != nil {
		return "", err
	}
	return final.ID, nil
}

// SanctionedSpec describes a directed, sanctioned energy settlement.
type SanctionedSpec struct {
	Quantity uint64
	// FromAccount optionally scopes the spend to a locally hosted
	// account. Empty means the node's own raw identity pays.
	FromAccount string
	// ToAccount is the receiving account. It must have been shared with
	// this party before.
	ToAccount string
	// Sanctioning is the party attesting the off-ledger delivery.
	Sanctioning  energyledger.Address
	EvidenceHash []byte
	Note         string
}

// TransferSanctioned runs the directed transfer protocol: tokens move to
// the receiving account under a fresh key, and the receiving host plus the
// sanctioning party must co-sign before the notary stamps the transaction.
// The linked audit record is persisted once the transfer is final.
func (s *Service) TransferSanctioned(ctx context.Context, spec SanctionedSpec) (string, error) {
	info, err := s.dir.Resolve(spec.ToAccount)
	if err != nil {
		return "", err
	}
	receiverKey, err := s.dir.RequestTransferKey(info.ID)
	if err != nil {
		return "", err
	}

	sender := token.OwnerFilter{Owner: s.party}
	signer := crypto.Signer(s.key)
	if spec.FromAccount != "" {
		from, err := s.dir.Resolve(spec.FromAccount)
		if err != nil {
			return "", err
		}
		if signer, err = s.dir.SignerFor(from.ID); err != nil {
			return "", err
		}
		sender = token.OwnerFilter{Account: from.ID}
	}

	t, err := BuildTransfer(s.store, TransferSpec{
		TokenType:       s.tokenType,
		Quantity:        spec.Quantity,
		Sender:          sender,
		SenderKey:       signer.PublicKey().Address(),
		Receiver:        receiverKey,
		ReceiverAccount: info.ID,
		Notary:          s.notaryID,
		Business: &BusinessPayload{
			ReceiverHost: info.Host,
			Sanctioning:  spec.Sanctioning,
			EvidenceHash: spec.EvidenceHash,
			Note:         spec.Note,
		},
	})
	if err != nil {
		return "", err
	}

	// A session is opened for every required co-signer the initiating key
	// does not cover. When an account key signs, that includes this very
	// node: the host signature then arrives over a loopback session.
	senderAddr := signer.PublicKey().Address()
	var remotes []energyledger.Address
	for _, party := range energyledger.DedupAddresses([]energyledger.Address{info.Host, spec.Sanctioning}) {
		if !party.Equals(senderAddr) {
			remotes = append(remotes, party)
		}
	}

	final, err := s.coord.Settle(ctx, t, signer, remotes, nil)
	if err != nil {
		return "", err
	}
	return final.ID, nil
}

// TransferAccountToAccount moves tokens between two named accounts, hosted
// on the same node or on different ones. Only the sending account's key
// signs. The receiving host gets the finalized transaction for its own
// records.
func (s *Service) TransferAccountToAccount(ctx context.Context, fromAccount, toAccount string, quantity uint64) (string, error) {
	from, err := s.dir.Resolve(fromAccount)
	if err != nil {
		return "", err
	}
	to, err := s.dir.Resolve(toAccount)
	if err != nil {
		return "", err
	}
	signer, err := s.dir.SignerFor(from.ID)
	if err != nil {
		return "", err
	}
	receiverKey, err := s.dir.RequestTransferKey(to.ID)
	if err != nil {
		return "", err
	}

	t, err := BuildTransfer(s.store, TransferSpec{
		TokenType:       s.tokenType,
		Quantity:        quantity,
		Sender:          token.OwnerFilter{Account: from.ID},
		SenderKey:       signer.PublicKey().Address(),
		Receiver:        receiverKey,
		ReceiverAccount: to.ID,
		Notary:          s.notaryID,
	})
	if err != nil {
		return "", err
	}

	var observers []energyledger.Address
	if !to.Host.Equals(s.party) {
		observers = append(observers, to.Host)
	}
	final, err := s.coord.Settle(ctx, t, signer, nil, observers)
	if err != nil {
		return "", err
	}
	return final.ID, nil
}

// Balance returns the total unspent quantity held for a named account on
// this node's copy of the ledger.
func (s *Service) Balance(account string) (uint64, error) {
	info, err := s.dir.Resolve(account)
	if err != nil {
		return 0, err
	}
	return s.store.Balance(token.OwnerFilter{Account: info.ID}, s.tokenType), nil
}

// NodeBalance returns the unspent quantity held by the node's raw identity.
func (s *Service) NodeBalance() uint64 {
	return s.store.Balance(token.OwnerFilter{Owner: s.party}, s.tokenType)
}

// AuditByEvidenceHash looks up audit records by external evidence.
func (s *Service) AuditByEvidenceHash(hash []byte) ([]*audit.Record, error) {
	return s.recorder.ByEvidenceHash(hash)
}

// AuditByTransaction looks up the audit record linked to a transaction.
func (s *Service) AuditByTransaction(txID string) (*audit.Record, error) {
	return s.recorder.ByTransaction(txID)
}
