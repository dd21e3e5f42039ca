package node

import (
	"errors"
	"fmt"

	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/chain"
	"bftcore.dev/chain/internal/hashing"
	"bftcore.dev/chain/internal/txn"
	"bftcore.dev/chain/internal/vote"
)

// ErrMalformedPayload is returned by any payload parser when a required
// field is missing or of the wrong type.
var ErrMalformedPayload = errors.New("node: malformed message payload")

func txPayload(tx *txn.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"from":      tx.From,
		"to":        tx.To,
		"amount":    tx.Amount,
		"nonce":     tx.Nonce,
		"chain_id":  tx.ChainID,
		"signature": tx.Signature,
		"tx_hash":   tx.TxHash,
	}
}

func parseTxPayload(m map[string]interface{}) (*txn.Transaction, error) {
	from, ok := m["from"].(bftcrypto.Address)
	if !ok {
		return nil, fmt.Errorf("%w: from", ErrMalformedPayload)
	}
	to, ok := m["to"].(bftcrypto.Address)
	if !ok {
		return nil, fmt.Errorf("%w: to", ErrMalformedPayload)
	}
	amount, ok := m["amount"].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: amount", ErrMalformedPayload)
	}
	nonce, ok := m["nonce"].(uint64)
	if !ok {
		return nil, fmt.Errorf("%w: nonce", ErrMalformedPayload)
	}
	chainID, ok := m["chain_id"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: chain_id", ErrMalformedPayload)
	}
	sig, ok := m["signature"].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: signature", ErrMalformedPayload)
	}
	return txn.FromWire(from, to, amount, nonce, chainID, sig)
}

func votePayload(v *vote.Vote) map[string]interface{} {
	return map[string]interface{}{
		"type":       v.Phase,
		"height":     v.Height,
		"block_hash": v.BlockHash,
		"validator":  v.Validator,
		"chain_id":   v.ChainID,
		"signature":  v.Signature,
	}
}

func parseVotePayload(m map[string]interface{}) (*vote.Vote, error) {
	phase, ok := m["type"].(vote.Phase)
	if !ok {
		return nil, fmt.Errorf("%w: type", ErrMalformedPayload)
	}
	height, ok := m["height"].(uint64)
	if !ok {
		return nil, fmt.Errorf("%w: height", ErrMalformedPayload)
	}
	blockHash, ok := m["block_hash"].(hashing.Digest)
	if !ok {
		return nil, fmt.Errorf("%w: block_hash", ErrMalformedPayload)
	}
	validator, ok := m["validator"].(bftcrypto.Address)
	if !ok {
		return nil, fmt.Errorf("%w: validator", ErrMalformedPayload)
	}
	chainID, ok := m["chain_id"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: chain_id", ErrMalformedPayload)
	}
	sig, ok := m["signature"].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: signature", ErrMalformedPayload)
	}
	return vote.FromWire(phase, height, blockHash, validator, chainID, sig), nil
}

func headerPayload(header chain.Header, proposer bftcrypto.Address, blockHash hashing.Digest) map[string]interface{} {
	return map[string]interface{}{
		"header":           header,
		"proposer_address": proposer,
		"block_hash":       blockHash,
	}
}

func parseHeaderPayload(m map[string]interface{}) (chain.Header, bftcrypto.Address, hashing.Digest, error) {
	header, ok := m["header"].(chain.Header)
	if !ok {
		return chain.Header{}, "", hashing.Digest{}, fmt.Errorf("%w: header", ErrMalformedPayload)
	}
	proposer, ok := m["proposer_address"].(bftcrypto.Address)
	if !ok {
		return chain.Header{}, "", hashing.Digest{}, fmt.Errorf("%w: proposer_address", ErrMalformedPayload)
	}
	blockHash, ok := m["block_hash"].(hashing.Digest)
	if !ok {
		return chain.Header{}, "", hashing.Digest{}, fmt.Errorf("%w: block_hash", ErrMalformedPayload)
	}
	return header, proposer, blockHash, nil
}

func bodyRequestPayload(blockHash hashing.Digest) map[string]interface{} {
	return map[string]interface{}{"block_hash": blockHash}
}

func parseBodyRequestPayload(m map[string]interface{}) (hashing.Digest, error) {
	blockHash, ok := m["block_hash"].(hashing.Digest)
	if !ok {
		return hashing.Digest{}, fmt.Errorf("%w: block_hash", ErrMalformedPayload)
	}
	return blockHash, nil
}

func bodyPayload(blockHash hashing.Digest, txs []*txn.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"block_hash":   blockHash,
		"transactions": txs,
	}
}

func parseBodyPayload(m map[string]interface{}) (hashing.Digest, []*txn.Transaction, error) {
	blockHash, ok := m["block_hash"].(hashing.Digest)
	if !ok {
		return hashing.Digest{}, nil, fmt.Errorf("%w: block_hash", ErrMalformedPayload)
	}
	txs, ok := m["transactions"].([]*txn.Transaction)
	if !ok {
		return hashing.Digest{}, nil, fmt.Errorf("%w: transactions", ErrMalformedPayload)
	}
	return blockHash, txs, nil
}

// proposalPayload renders the legacy BLOCK_PROPOSAL message: the block's
// header and transactions (not the live *chain.Block pointer — every node
// must reconstruct its own block from the wire shape, the same rule the
// header/body path already follows), kept alongside header/body gossip per
// the body reconstruction design note (see DESIGN.md).
func proposalPayload(p *chain.Proposal) map[string]interface{} {
	return map[string]interface{}{
		"header":           p.Block.Header,
		"transactions":     p.Block.Transactions,
		"proposer_address": p.ProposerAddress,
	}
}

func parseProposalPayload(m map[string]interface{}) (*chain.Proposal, error) {
	header, ok := m["header"].(chain.Header)
	if !ok {
		return nil, fmt.Errorf("%w: header", ErrMalformedPayload)
	}
	txs, ok := m["transactions"].([]*txn.Transaction)
	if !ok {
		return nil, fmt.Errorf("%w: transactions", ErrMalformedPayload)
	}
	proposer, ok := m["proposer_address"].(bftcrypto.Address)
	if !ok {
		return nil, fmt.Errorf("%w: proposer_address", ErrMalformedPayload)
	}
	block, err := chain.NewBlock(header, txs)
	if err != nil {
		return nil, fmt.Errorf("node: failed to reconstruct block from proposal payload: %w", err)
	}
	return chain.NewProposal(block, proposer), nil
}

// sentVoteKey is the dedupe key for a vote this node has already broadcast:
// (phase, height, block_hash, validator).
func sentVoteKey(v *vote.Vote) string {
	return fmt.Sprintf("%s|%d|%s|%s", v.Phase, v.Height, v.BlockHash.Hex(), v.Validator)
}
