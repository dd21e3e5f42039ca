package chain

import (
	"errors"
	"fmt"
	"sync"

	"bftcore.dev/chain/internal/hashing"
)

var (
	// ErrBlockNotFound is returned when a hash has no corresponding
	// finalized block.
	ErrBlockNotFound = errors.New("chain: block not found")
	// ErrInvalidBlockHeight is returned when a block is appended out of
	// sequence: every block must land at len(blocks).
	ErrInvalidBlockHeight = errors.New("chain: invalid block height")
	// ErrInvalidParentHash is returned when a block's parent_hash does not
	// match the current head's hash.
	ErrInvalidParentHash = errors.New("chain: invalid parent hash")
	// ErrNilBlock is returned by Append(nil).
	ErrNilBlock = errors.New("chain: cannot append nil block")
)

// Chain is the append-only log of finalized blocks, starting from genesis
// at height 0. It is the single source of truth for "what height are we at"
// and "what does the chain currently look like" across the consensus engine
// and node orchestrator.
type Chain struct {
	mu     sync.RWMutex
	blocks []*Block
	byHash map[hashing.Digest]*Block
}

// NewChain seeds a Chain with its genesis block. genesis must already be
// marked Finalized and carry height 0.
func NewChain(genesis *Block) (*Chain, error) {
	if genesis == nil {
		return nil, ErrNilBlock
	}
	if genesis.Header.Height != 0 {
		return nil, fmt.Errorf("%w: genesis must be height 0, got %d", ErrInvalidBlockHeight, genesis.Header.Height)
	}
	c := &Chain{
		blocks: make([]*Block, 0, 1),
		byHash: make(map[hashing.Digest]*Block),
	}
	c.blocks = append(c.blocks, genesis)
	c.byHash[genesis.BlockHash] = genesis
	return c, nil
}

// Append adds block to the chain. block must land exactly one past the
// current head's height and its parent_hash must equal the current head's
// hash; Append never reorders or replaces an existing entry.
func (c *Chain) Append(block *Block) error {
	if block == nil {
		return ErrNilBlock
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	head := c.blocks[len(c.blocks)-1]
	expectedHeight := head.Header.Height + 1
	if block.Header.Height != expectedHeight {
		return fmt.Errorf("%w: expected height %d, got %d", ErrInvalidBlockHeight, expectedHeight, block.Header.Height)
	}
	if block.Header.ParentHash != head.BlockHash {
		return fmt.Errorf("%w: expected parent %s, got %s", ErrInvalidParentHash, head.BlockHash.Hex(), block.Header.ParentHash.Hex())
	}

	c.blocks = append(c.blocks, block)
	c.byHash[block.BlockHash] = block
	return nil
}

// Height returns the height of the current head (genesis is height 0).
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1].Header.Height
}

// Head returns the most recently appended block.
func (c *Chain) Head() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// At returns the block at the given height.
func (c *Chain) At(height uint64) (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height >= uint64(len(c.blocks)) {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	return c.blocks[height], nil
}

// ByHash looks up a finalized block by its hash.
func (c *Chain) ByHash(h hashing.Digest) (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.byHash[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, h.Hex())
	}
	return b, nil
}

// Len returns the number of finalized blocks, genesis included.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}
