// Package chain implements block headers, blocks, proposals, and the
// finalized blockchain log.
package chain

import (
	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/hashing"
	"bftcore.dev/chain/internal/txn"
)

// Header is a block's header: everything that contributes to the block's
// hash except the transaction bodies themselves (those are committed via
// TxRoot).
type Header struct {
	Height     uint64            `json:"height"`
	ParentHash hashing.Digest    `json:"parent_hash"`
	StateHash  hashing.Digest    `json:"state_hash"`
	TxRoot     hashing.Digest    `json:"tx_root"`
	Timestamp  int64             `json:"timestamp"` // Unix nanoseconds
	Proposer   bftcrypto.Address `json:"proposer"`
	// Round is reserved for a future round-advancement extension (spec.md
	// Design Note §9, "Liveness without rounds") and is always 0 in this
	// core.
	Round uint32 `json:"round"`
}

// ToDict renders the header as its canonical wire map, the shape Hash is
// computed from.
func (h Header) ToDict() map[string]interface{} {
	return map[string]interface{}{
		"height":      h.Height,
		"parent_hash": h.ParentHash.Hex(),
		"state_hash":  h.StateHash.Hex(),
		"tx_root":     h.TxRoot.Hex(),
		"timestamp":   h.Timestamp,
		"proposer":    string(h.Proposer),
		"round":       h.Round,
	}
}

// Hash is a pure function of the header's fields.
func (h Header) Hash() (hashing.Digest, error) {
	return hashing.Map(h.ToDict())
}

// ComputeTxRoot computes the tx_root for a non-genesis block: the hash of
// the ordered list of transaction hashes (spec.md §4.4).
func ComputeTxRoot(txs []*txn.Transaction) (hashing.Digest, error) {
	hashes := make([]string, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.TxHash.Hex()
	}
	return hashing.Map(map[string]interface{}{"transactions": hashes})
}

// Block is a header plus its ordered transaction list. block_hash is
// computed once, at construction, and cached; once Finalized is true the
// block is treated as immutable by every consumer in this core.
type Block struct {
	Header       Header
	Transactions []*txn.Transaction
	BlockHash    hashing.Digest
	Finalized    bool
}

// NewBlock computes the block's hash from its header and wraps it with the
// given transactions.
func NewBlock(header Header, txs []*txn.Transaction) (*Block, error) {
	h, err := header.Hash()
	if err != nil {
		return nil, err
	}
	return &Block{Header: header, Transactions: txs, BlockHash: h}, nil
}

// MarkFinalized flips the block's Finalized flag. Callers (the consensus
// engine) are responsible for only calling this once per block, and for
// never mutating a block afterward.
func (b *Block) MarkFinalized() {
	b.Finalized = true
}

// Proposal wraps a candidate block with the address of the node that
// proposed it. ProposalHash always equals the wrapped block's hash.
type Proposal struct {
	Block           *Block
	ProposerAddress bftcrypto.Address
}

// NewProposal wraps block as a proposal from proposer. It does not itself
// validate that proposer equals block.Header.Proposer; well-formedness is a
// consensus-layer concern (spec.md §4.6.2).
func NewProposal(block *Block, proposer bftcrypto.Address) *Proposal {
	return &Proposal{Block: block, ProposerAddress: proposer}
}

// ProposalHash returns the wrapped block's hash.
func (p *Proposal) ProposalHash() hashing.Digest {
	return p.Block.BlockHash
}
