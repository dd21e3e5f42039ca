package vote

import (
	"errors"
	"sync"

	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/hashing"
)

// ErrInvalidVoteSignature is returned by Add when the vote fails signature
// verification; an invalid vote is never recorded and never counts toward
// quorum.
var ErrInvalidVoteSignature = errors.New("vote: invalid signature")

type heightVotes map[hashing.Digest]map[bftcrypto.Address]struct{}
type phaseVotes map[uint64]heightVotes

// Collector tracks signed votes toward a quorum, for every (phase, height,
// block_hash) triple, deduplicated per validator. A validator that signs two
// different block hashes for the same phase and height (equivocation) is
// recorded for observability via Equivocators but is never penalized and
// never affects any quorum computation: both of its votes still count
// against their respective block hashes.
type Collector struct {
	mu sync.Mutex

	numValidators int
	votes         map[Phase]phaseVotes

	// equivocators[validator][phase][height] is the set of distinct block
	// hashes that validator voted for. A validator has equivocated at a
	// given phase/height iff that set holds more than one entry.
	equivocators map[bftcrypto.Address]map[Phase]map[uint64]map[hashing.Digest]struct{}
}

// NewCollector creates a Collector for a validator set of size
// numValidators.
func NewCollector(numValidators int) *Collector {
	return &Collector{
		numValidators: numValidators,
		votes:         make(map[Phase]phaseVotes),
		equivocators:  make(map[bftcrypto.Address]map[Phase]map[uint64]map[hashing.Digest]struct{}),
	}
}

// Add verifies and records v. It is idempotent: recording the same
// (validator, phase, height, block_hash) vote twice has no additional
// effect, and the second call reports added=false. Recording a second,
// different block_hash from the same validator at the same phase and
// height is accepted (both count toward their respective quorum tallies)
// and flags the validator as an equivocator.
func (c *Collector) Add(v *Vote) (added bool, err error) {
	if !v.Verify() {
		return false, ErrInvalidVoteSignature
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pv, ok := c.votes[v.Phase]
	if !ok {
		pv = make(phaseVotes)
		c.votes[v.Phase] = pv
	}
	hv, ok := pv[v.Height]
	if !ok {
		hv = make(heightVotes)
		pv[v.Height] = hv
	}
	voters, ok := hv[v.BlockHash]
	if !ok {
		voters = make(map[bftcrypto.Address]struct{})
		hv[v.BlockHash] = voters
	}
	if _, already := voters[v.Validator]; already {
		return false, nil
	}
	voters[v.Validator] = struct{}{}

	c.recordEquivocationLocked(v)
	return true, nil
}

func (c *Collector) recordEquivocationLocked(v *Vote) {
	byPhase, ok := c.equivocators[v.Validator]
	if !ok {
		byPhase = make(map[Phase]map[uint64]map[hashing.Digest]struct{})
		c.equivocators[v.Validator] = byPhase
	}
	byHeight, ok := byPhase[v.Phase]
	if !ok {
		byHeight = make(map[uint64]map[hashing.Digest]struct{})
		byPhase[v.Phase] = byHeight
	}
	seen, ok := byHeight[v.Height]
	if !ok {
		seen = make(map[hashing.Digest]struct{})
		byHeight[v.Height] = seen
	}
	seen[v.BlockHash] = struct{}{}
}

// quorumThreshold returns the minimum vote count that constitutes a quorum
// for a validator set of size n: more than two thirds, via integer
// division. For n=4 the threshold is 2, so 3 votes are required.
func quorumThreshold(n int) int {
	return (2 * n) / 3
}

// Count returns how many distinct validators have voted for (phase, height,
// blockHash).
func (c *Collector) Count(phase Phase, height uint64, blockHash hashing.Digest) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	voters, ok := c.votes[phase][height][blockHash]
	if !ok {
		return 0
	}
	return len(voters)
}

// HasQuorum reports whether (phase, height, blockHash) has strictly more
// than two thirds of the validator set's votes.
func (c *Collector) HasQuorum(phase Phase, height uint64, blockHash hashing.Digest) bool {
	return c.Count(phase, height, blockHash) > quorumThreshold(c.numValidators)
}

// Equivocators returns the set of validators observed voting for more than
// one distinct block hash at the same phase and height, for diagnostics
// only. It never feeds back into HasQuorum or Count.
func (c *Collector) Equivocators() []bftcrypto.Address {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []bftcrypto.Address
	for validator, byPhase := range c.equivocators {
		flagged := false
		for _, byHeight := range byPhase {
			for _, seen := range byHeight {
				if len(seen) > 1 {
					flagged = true
				}
			}
		}
		if flagged {
			out = append(out, validator)
		}
	}
	return out
}
