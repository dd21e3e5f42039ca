package bftcrypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"bftcore.dev/chain/internal/hashing"
)

// Domain tags a signed envelope with the protocol message family it belongs
// to. Domain separation guarantees a signature minted for one domain never
// verifies as a different one, even over identical data.
type Domain string

const (
	DomainTx    Domain = "TX"
	DomainVote  Domain = "VOTE"
	DomainBlock Domain = "BLOCK"
)

// signingPayload is the canonical, JSON-marshalable shape that gets signed:
// exactly {domain, chain_id, data}, nothing more. Field names are lowercase
// to match the wire shape in spec.md §6.2.
type signingPayload struct {
	Domain  Domain                 `json:"domain"`
	ChainID string                 `json:"chain_id"`
	Data    map[string]interface{} `json:"data"`
}

// SignedEnvelope is a domain-separated, chain-scoped signed message: the
// signature covers exactly the canonical encoding of {domain, chain_id, data}.
type SignedEnvelope struct {
	Domain        Domain                 `json:"domain"`
	ChainID       string                 `json:"chain_id"`
	Data          map[string]interface{} `json:"data"`
	Signature     []byte                 `json:"signature"`
	SignerAddress Address                `json:"signer_address"`
}

// signingBytes returns the exact bytes that get signed/verified for this
// envelope's (domain, chain_id, data) triple.
func signingBytes(domain Domain, chainID string, data map[string]interface{}) ([]byte, error) {
	payload := signingPayload{Domain: domain, ChainID: chainID, Data: data}
	return hashing.Canonical(payload)
}

// Sign produces a SignedEnvelope over {domain, chain_id, data} using the
// given keypair.
func Sign(kp *KeyPair, domain Domain, chainID string, data map[string]interface{}) (*SignedEnvelope, error) {
	msg, err := signingBytes(domain, chainID, data)
	if err != nil {
		return nil, fmt.Errorf("bftcrypto: failed to encode envelope for signing: %w", err)
	}
	sig := ed25519.Sign(kp.Private, msg)
	return &SignedEnvelope{
		Domain:        domain,
		ChainID:       chainID,
		Data:          data,
		Signature:     sig,
		SignerAddress: kp.Address(),
	}, nil
}

// Verify checks that env.Signature is a valid Ed25519 signature over the
// canonical encoding of {env.Domain, env.ChainID, env.Data}, produced by the
// key behind env.SignerAddress. It returns ErrInvalidSignature for any
// failure: malformed address, tampered data, or a signature that does not
// verify under the claimed public key.
func Verify(env *SignedEnvelope) error {
	if env == nil {
		return ErrInvalidSignature
	}
	pub, err := env.SignerAddress.PublicKey()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	msg, err := signingBytes(env.Domain, env.ChainID, env.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !ed25519.Verify(pub, msg, env.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// SignatureBase64 renders the envelope's signature as base64, the wire form
// used whenever a signature is exchanged (spec.md §6.2).
func (e *SignedEnvelope) SignatureBase64() string {
	return base64.StdEncoding.EncodeToString(e.Signature)
}
