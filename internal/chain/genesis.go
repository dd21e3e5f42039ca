package chain

import (
	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/hashing"
	"bftcore.dev/chain/internal/state"
)

// genesisProposer is the fixed, reserved proposer address recorded on the
// genesis header (spec.md §4.4). No key ever signs for it.
const genesisProposer = bftcrypto.Address("genesis")

// NewGenesis builds height-0 block for the given starting balances. Its
// parent_hash and tx_root are the zero digest (64 zeros on the wire, not a
// computed hash), it carries no transactions, and it is finalized
// immediately.
func NewGenesis(initialBalances map[bftcrypto.Address]int64) (*Block, *state.State, error) {
	st := state.NewWithBalances(initialBalances)
	stateHash, err := st.Hash()
	if err != nil {
		return nil, nil, err
	}

	header := Header{
		Height:     0,
		ParentHash: hashing.Zero,
		StateHash:  stateHash,
		TxRoot:     hashing.Zero,
		Timestamp:  0,
		Proposer:   genesisProposer,
		Round:      0,
	}
	block, err := NewBlock(header, nil)
	if err != nil {
		return nil, nil, err
	}
	block.MarkFinalized()
	return block, st, nil
}
