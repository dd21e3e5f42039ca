// Package bftcrypto provides Ed25519 keypairs and domain-separated, chain-scoped
// signed envelopes. Every signature produced here binds to a (domain, chain_id)
// pair so that a signature minted for one protocol message never verifies as a
// different message type or on a different chain.
package bftcrypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidSignature is returned whenever envelope verification fails, for
// any reason: wrong key, tampered data, mismatched domain, or mismatched
// chain ID. The core never distinguishes these cases beyond this one error.
var ErrInvalidSignature = errors.New("bftcrypto: invalid signature")

// ErrMalformedAddress is returned when an Address cannot be decoded back into
// a public key.
var ErrMalformedAddress = errors.New("bftcrypto: malformed address")

// Address is the base64 encoding of a 32-byte Ed25519 public key. The
// encoding is total and injective: every public key has exactly one address
// and every valid address decodes back to exactly one public key.
type Address string

// AddressFromPublicKey derives the address for a public key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	return Address(base64.StdEncoding.EncodeToString(pub))
}

// PublicKey decodes the address back into an Ed25519 public key.
func (a Address) PublicKey() (ed25519.PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(string(a))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAddress, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedAddress, ed25519.PublicKeySize, len(b))
	}
	return ed25519.PublicKey(b), nil
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return string(a)
}

// KeyPair is an Ed25519 signing identity: a private scalar and its
// deterministically-derived public key.
type KeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// GenerateKeyPair creates a new KeyPair from the system CSPRNG.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("bftcrypto: key generation failed: %w", err)
	}
	return &KeyPair{Private: priv, Public: pub}, nil
}

// FromSeed derives a KeyPair deterministically from a 32-byte seed. Identical
// seeds always yield identical keypairs, which is what makes reproducible
// test fixtures and deterministic-replay scenarios (spec.md §8, scenario 4)
// possible.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("bftcrypto: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &KeyPair{Private: priv, Public: pub}, nil
}

// Address returns the address derived from this keypair's public key.
func (k *KeyPair) Address() Address {
	return AddressFromPublicKey(k.Public)
}
