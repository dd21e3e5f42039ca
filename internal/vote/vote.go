// Package vote implements signed consensus votes and the collector that
// tracks them toward a quorum.
package vote

import (
	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/hashing"
)

// Phase identifies which half of a height's two-phase vote a Vote belongs
// to.
type Phase string

const (
	Prevote   Phase = "PREVOTE"
	Precommit Phase = "PRECOMMIT"
)

// Vote is a validator's signed stance on a block at a given height and
// phase.
type Vote struct {
	Phase     Phase             `json:"type"`
	Height    uint64            `json:"height"`
	BlockHash hashing.Digest    `json:"block_hash"`
	Validator bftcrypto.Address `json:"validator"`
	ChainID   string            `json:"chain_id"`
	Signature []byte            `json:"signature"`
}

// signedData is the exact {type, height, block_hash, validator} payload
// signed under domain VOTE (spec.md §6.3).
func signedData(phase Phase, height uint64, blockHash hashing.Digest, validator bftcrypto.Address) map[string]interface{} {
	return map[string]interface{}{
		"type":       string(phase),
		"height":     height,
		"block_hash": blockHash.Hex(),
		"validator":  string(validator),
	}
}

// New builds and signs a vote with kp's private key.
func New(kp *bftcrypto.KeyPair, phase Phase, height uint64, blockHash hashing.Digest, chainID string) (*Vote, error) {
	validator := kp.Address()
	data := signedData(phase, height, blockHash, validator)
	env, err := bftcrypto.Sign(kp, bftcrypto.DomainVote, chainID, data)
	if err != nil {
		return nil, err
	}
	return &Vote{
		Phase:     phase,
		Height:    height,
		BlockHash: blockHash,
		Validator: validator,
		ChainID:   chainID,
		Signature: env.Signature,
	}, nil
}

// FromWire reconstructs a Vote from fields received over the transport.
// It does not itself check the signature; callers verify via Verify.
func FromWire(phase Phase, height uint64, blockHash hashing.Digest, validator bftcrypto.Address, chainID string, signature []byte) *Vote {
	return &Vote{
		Phase:     phase,
		Height:    height,
		BlockHash: blockHash,
		Validator: validator,
		ChainID:   chainID,
		Signature: signature,
	}
}

// Verify checks that v.Signature is a valid signature by v.Validator over
// {type, height, block_hash, validator} under domain VOTE and chain
// v.ChainID.
func (v *Vote) Verify() bool {
	env := &bftcrypto.SignedEnvelope{
		Domain:        bftcrypto.DomainVote,
		ChainID:       v.ChainID,
		Data:          signedData(v.Phase, v.Height, v.BlockHash, v.Validator),
		Signature:     v.Signature,
		SignerAddress: v.Validator,
	}
	return bftcrypto.Verify(env) == nil
}
