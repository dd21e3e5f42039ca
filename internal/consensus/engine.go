// Package consensus implements the per-node Propose → Prevote → Precommit →
// Commit state machine driving a single BFT height forward.
package consensus

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/chain"
	"bftcore.dev/chain/internal/executor"
	"bftcore.dev/chain/internal/hashing"
	"bftcore.dev/chain/internal/state"
	"bftcore.dev/chain/internal/txn"
	"bftcore.dev/chain/internal/vote"
)

// ErrEmptyValidatorSet is returned by NewEngine when no validators are
// configured; quorum is undefined for N=0.
var ErrEmptyValidatorSet = errors.New("consensus: validator set must be non-empty")

// ErrStateHashMismatch is returned when a finalize pass recomputes a state
// hash that disagrees with the block's recorded state_hash — an internal
// invariant violation, since receive_proposal should already have rejected
// any block this would happen for.
var ErrStateHashMismatch = errors.New("consensus: recomputed state hash does not match block header")

type pendingKey struct {
	height uint64
	hash   hashing.Digest
}

// Engine drives one validator's view of consensus: it proposes blocks when
// it is the leader, validates and prevotes proposals from others, tallies
// votes toward quorum, precommits, and finalizes. Engine owns no transport
// or leader-selection logic; those are the node orchestrator's job
// (spec.md §4.7). Engine is not safe for concurrent use from multiple
// goroutines without external locking beyond what it does internally — the
// whole core is designed as a single-threaded cooperative state machine.
type Engine struct {
	mu sync.Mutex

	chainID       string
	self          *bftcrypto.KeyPair
	numValidators int

	currentHeight uint64
	currentState  *state.State
	blockchain    *chain.Chain

	pendingBlocks map[pendingKey]*chain.Block
	pendingVotes  []*vote.Vote

	prevoted     map[uint64]hashing.Digest
	precommitted map[uint64]hashing.Digest

	collector *vote.Collector

	log *log.Logger
}

// NewEngine creates an Engine seeded with genesis. genesisState must be the
// exact state genesis.Header.StateHash commits to.
func NewEngine(chainID string, self *bftcrypto.KeyPair, numValidators int, genesis *chain.Block, genesisState *state.State) (*Engine, error) {
	if numValidators <= 0 {
		return nil, ErrEmptyValidatorSet
	}
	bc, err := chain.NewChain(genesis)
	if err != nil {
		return nil, fmt.Errorf("consensus: failed to seed chain: %w", err)
	}
	return &Engine{
		chainID:       chainID,
		self:          self,
		numValidators: numValidators,
		currentHeight: genesis.Header.Height + 1,
		currentState:  genesisState,
		blockchain:    bc,
		pendingBlocks: make(map[pendingKey]*chain.Block),
		prevoted:      make(map[uint64]hashing.Digest),
		precommitted:  make(map[uint64]hashing.Digest),
		collector:     vote.NewCollector(numValidators),
		log:           log.New(log.Writer(), "CONSENSUS: ", log.LstdFlags),
	}, nil
}

// CurrentHeight returns the next height this engine still needs to finalize.
func (e *Engine) CurrentHeight() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentHeight
}

// CurrentState returns the state snapshot as of the last finalized block.
func (e *Engine) CurrentState() *state.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentState
}

// Blockchain returns the engine's finalized block log.
func (e *Engine) Blockchain() *chain.Chain {
	return e.blockchain
}

// Collector returns the engine's vote collector, chiefly for diagnostics
// (e.g. inspecting Collector.Equivocators).
func (e *Engine) Collector() *vote.Collector {
	return e.collector
}

// ProposeBlock executes txs against the current state to compute the
// header's state_hash, assembles a header at the current height, and wraps
// it as a Proposal from this engine's own address. It does not store the
// proposal into pending_blocks or emit a prevote for it — that happens on
// the same path every proposal (including a node's own) takes, through
// ReceiveProposal.
func (e *Engine) ProposeBlock(txs []*txn.Transaction) (*chain.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	newState, _ := executor.Execute(e.currentState, txs)
	stateHash, err := newState.Hash()
	if err != nil {
		return nil, fmt.Errorf("consensus: failed to hash proposed state: %w", err)
	}
	txRoot, err := chain.ComputeTxRoot(txs)
	if err != nil {
		return nil, fmt.Errorf("consensus: failed to compute tx root: %w", err)
	}

	head := e.blockchain.Head()
	header := chain.Header{
		Height:     e.currentHeight,
		ParentHash: head.BlockHash,
		StateHash:  stateHash,
		TxRoot:     txRoot,
		Timestamp:  time.Now().UnixNano(),
		Proposer:   e.self.Address(),
	}
	block, err := chain.NewBlock(header, txs)
	if err != nil {
		return nil, fmt.Errorf("consensus: failed to build proposed block: %w", err)
	}
	return chain.NewProposal(block, e.self.Address()), nil
}

// ReceiveProposal stores p.Block into pending_blocks, validates it against
// the current height, parent hash, transaction signatures, and a
// re-execution of its transactions, and — if valid and this engine has not
// already prevoted at this height — signs and records a PREVOTE. It also
// replays any pending votes that reference a block that just became known,
// which can itself carry this engine to prevote or precommit quorum and
// produce a precommit (or trigger finalize). ReceiveProposal returns every
// vote this engine itself just produced, in the order produced, for
// broadcast — an empty slice with a nil error means nothing new was
// produced (either the proposal was invalid, or this engine already
// prevoted at this height and no buffered vote advanced a phase).
func (e *Engine) ReceiveProposal(p *chain.Proposal) ([]*vote.Vote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	block := p.Block
	key := pendingKey{height: block.Header.Height, hash: block.BlockHash}
	e.pendingBlocks[key] = block

	if !e.validateProposalLocked(block) {
		e.log.Printf("rejected proposal for height %d from %s", block.Header.Height, p.ProposerAddress)
		return nil, nil
	}

	var produced []*vote.Vote
	if _, already := e.prevoted[block.Header.Height]; !already {
		v, err := vote.New(e.self, vote.Prevote, block.Header.Height, block.BlockHash, e.chainID)
		if err != nil {
			return nil, fmt.Errorf("consensus: failed to sign prevote: %w", err)
		}
		e.prevoted[block.Header.Height] = block.BlockHash
		if _, err := e.collector.Add(v); err != nil {
			return nil, fmt.Errorf("consensus: failed to record own prevote: %w", err)
		}
		produced = append(produced, v)
	}

	replayed, err := e.replayPendingVotesLocked()
	if err != nil {
		return produced, err
	}
	produced = append(produced, replayed...)
	return produced, nil
}

func (e *Engine) validateProposalLocked(block *chain.Block) bool {
	if block.Header.Height != e.currentHeight {
		return false
	}
	head := e.blockchain.Head()
	if block.Header.ParentHash != head.BlockHash {
		return false
	}
	for _, tx := range block.Transactions {
		if !tx.Verify() {
			return false
		}
	}
	newState, _ := executor.Execute(e.currentState, block.Transactions)
	resultHash, err := newState.Hash()
	if err != nil {
		return false
	}
	return resultHash == block.Header.StateHash
}

// ReceiveVote verifies v and, depending on its referenced block's
// availability, either buffers it (block unseen), drops it (invalid
// signature or already recorded), or tallies it and re-evaluates phase
// transitions for (v.Height, v.BlockHash): a newly-reached prevote quorum
// produces and records this engine's own precommit, and a newly-reached
// precommit quorum triggers finalization. ReceiveVote returns any votes
// this engine itself just produced, for broadcast.
func (e *Engine) ReceiveVote(v *vote.Vote) ([]*vote.Vote, error) {
	if !v.Verify() {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.receiveVoteLocked(v)
}

func (e *Engine) receiveVoteLocked(v *vote.Vote) ([]*vote.Vote, error) {
	key := pendingKey{height: v.Height, hash: v.BlockHash}
	if _, known := e.pendingBlocks[key]; !known {
		e.pendingVotes = append(e.pendingVotes, v)
		return nil, nil
	}

	added, err := e.collector.Add(v)
	if err != nil {
		return nil, nil // invalid signature; already filtered above, but defensive
	}
	if !added {
		return nil, nil
	}

	return e.advancePhasesLocked(v.Height, v.BlockHash)
}

// advancePhasesLocked checks whether height/blockHash just reached prevote
// or precommit quorum and reacts accordingly. Must be called with e.mu held.
func (e *Engine) advancePhasesLocked(height uint64, blockHash hashing.Digest) ([]*vote.Vote, error) {
	var produced []*vote.Vote

	if _, already := e.precommitted[height]; !already && e.collector.HasQuorum(vote.Prevote, height, blockHash) {
		pc, err := vote.New(e.self, vote.Precommit, height, blockHash, e.chainID)
		if err != nil {
			return nil, fmt.Errorf("consensus: failed to sign precommit: %w", err)
		}
		e.precommitted[height] = blockHash
		if _, err := e.collector.Add(pc); err != nil {
			return nil, fmt.Errorf("consensus: failed to record own precommit: %w", err)
		}
		produced = append(produced, pc)
	}

	if e.collector.HasQuorum(vote.Precommit, height, blockHash) {
		if err := e.finalizeLocked(height, blockHash); err != nil {
			return produced, err
		}
	}

	return produced, nil
}

// replayPendingVotesLocked re-tallies every buffered vote whose block has
// since become known, and returns any votes this engine produced as a
// result (a precommit reaching phase quorum). The first error from
// advancePhasesLocked stops the replay: the vote that triggered it has
// already been tallied by the collector, so it is dropped from the buffer
// like any other processed vote, but every vote after it is left untried
// and stays buffered for a later call.
func (e *Engine) replayPendingVotesLocked() ([]*vote.Vote, error) {
	if len(e.pendingVotes) == 0 {
		return nil, nil
	}
	var produced []*vote.Vote
	var remaining []*vote.Vote
	var firstErr error
	for i, v := range e.pendingVotes {
		if firstErr != nil {
			remaining = append(remaining, e.pendingVotes[i:]...)
			break
		}
		key := pendingKey{height: v.Height, hash: v.BlockHash}
		if _, known := e.pendingBlocks[key]; !known {
			remaining = append(remaining, v)
			continue
		}
		added, err := e.collector.Add(v)
		if err != nil {
			continue // invalid signature slipped in somehow; drop it
		}
		if !added {
			continue
		}
		p, err := e.advancePhasesLocked(v.Height, v.BlockHash)
		if err != nil {
			firstErr = err
			continue
		}
		produced = append(produced, p...)
	}
	e.pendingVotes = remaining
	return produced, firstErr
}

// Finalize is the exported, explicit entry point for finalizing
// (height, blockHash); ReceiveVote also calls it internally the moment
// precommit quorum is reached. It is idempotent: calling it twice for a
// height already advanced past is a silent no-op.
func (e *Engine) Finalize(height uint64, blockHash hashing.Digest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalizeLocked(height, blockHash)
}

func (e *Engine) finalizeLocked(height uint64, blockHash hashing.Digest) error {
	if height != e.currentHeight {
		return nil // already finalized past this height, or not ready yet
	}
	key := pendingKey{height: height, hash: blockHash}
	block, ok := e.pendingBlocks[key]
	if !ok {
		return nil
	}
	if block.Finalized {
		return nil
	}

	newState, _ := executor.Execute(e.currentState, block.Transactions)
	resultHash, err := newState.Hash()
	if err != nil {
		return fmt.Errorf("consensus: failed to hash finalized state: %w", err)
	}
	if resultHash != block.Header.StateHash {
		return fmt.Errorf("%w: height %d", ErrStateHashMismatch, height)
	}

	block.MarkFinalized()
	if err := e.blockchain.Append(block); err != nil {
		return fmt.Errorf("consensus: failed to append finalized block: %w", err)
	}
	e.currentState = newState
	e.currentHeight = height + 1

	for k := range e.pendingBlocks {
		if k.height == height {
			delete(e.pendingBlocks, k)
		}
	}

	e.log.Printf("finalized height %d block %s", height, blockHash.Hex())
	return nil
}
