package crypto

import (
	"golang.org/x/crypto/ed25519"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/errors"
)

// Signer is the functionality we use from a private key.
// No serializing to support hardware devices as well.
type Signer interface {
	Sign(message []byte) (*Signature, error)
	PublicKey() PublicKey
}

// PublicKey represents an ed25519 public key of a signing party.
type PublicKey struct {
	Ed25519 []byte
}

// Verify verifies the signature was created with this message and public key.
func (p PublicKey) Verify(message []byte, sig *Signature) bool {
	if sig == nil || len(p.Ed25519) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(p.Ed25519), message, sig.Sig)
}

// Address encodes the public key into a ledger address.
func (p PublicKey) Address() energyledger.Address {
	return energyledger.NewAddress(p.Ed25519)
}

// Validate ensures the key material has the expected size.
func (p PublicKey) Validate() error {
	if len(p.Ed25519) != ed25519.PublicKeySize {
		return errors.Wrapf(errors.ErrInput, "public key must be %d bytes", ed25519.PublicKeySize)
	}
	return nil
}

// Signature is a detached signature together with the public key that
// created it, so a verifier can map it back to a required signer address.
type Signature struct {
	PubKey PublicKey
	Sig    []byte
}

// Verify checks the signature matches this message.
func (s *Signature) Verify(message []byte) bool {
	if s == nil {
		return false
	}
	return s.PubKey.Verify(message, s)
}

// Address returns the ledger address of the signing key.
func (s *Signature) Address() energyledger.Address {
	return s.PubKey.Address()
}

// Validate ensures both key and signature material are present.
func (s *Signature) Validate() error {
	if s == nil {
		return errors.Wrap(errors.ErrInput, "nil signature")
	}
	if err := s.PubKey.Validate(); err != nil {
		return errors.Wrap(err, "pubkey")
	}
	if len(s.Sig) != ed25519.SignatureSize {
		return errors.Wrapf(errors.ErrInput, "signature must be %d bytes", ed25519.SignatureSize)
	}
	return nil
}

var _ Signer = (*PrivateKey)(nil)

// PrivateKey is an ed25519 signing key.
type PrivateKey struct {
	Ed25519 []byte
}

// Sign returns a matching signature for this private key.
func (p *PrivateKey) Sign(message []byte) (*Signature, error) {
	if len(p.Ed25519) != ed25519.PrivateKeySize {
		return nil, errors.Wrap(errors.ErrInput, "malformed private key")
	}
	bz := ed25519.Sign(ed25519.PrivateKey(p.Ed25519), message)
	return &Signature{
		PubKey: p.PublicKey(),
		Sig:    bz,
	}, nil
}

// PublicKey returns the corresponding PublicKey. A malformed private key
// yields a zero public key, which fails Validate and verifies nothing.
func (p *PrivateKey) PublicKey() PublicKey {
	if len(p.Ed25519) != ed25519.PrivateKeySize {
		return PublicKey{}
	}
	pub := ed25519.PrivateKey(p.Ed25519).Public().(ed25519.PublicKey)
	return PublicKey{Ed25519: pub}
}

// Address is a shortcut for the address of the public key.
func (p *PrivateKey) Address() energyledger.Address {
	return p.PublicKey().Address()
}

// GenPrivKeyEd25519 returns a random new private key.
func GenPrivKeyEd25519() *PrivateKey {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return &PrivateKey{Ed25519: priv}
}

// PrivKeyEd25519FromSeed will deterministically generate a private key from
// a given seed. Use if you have a strong source of external randomness,
// or for deterministic keys in test cases.
func PrivKeyEd25519FromSeed(seed []byte) *PrivateKey {
	priv := ed25519.NewKeyFromSeed(seed)
	return &PrivateKey{Ed25519: priv}
}
