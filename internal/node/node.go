// Package node implements the per-validator orchestrator: round-robin
// leader selection, a transaction pool, header/body gossip with
// pull-based body retrieval, and vote rebroadcast with duplicate
// suppression.
package node

import (
	"fmt"
	"log"

	lru "github.com/hashicorp/golang-lru"

	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/chain"
	"bftcore.dev/chain/internal/consensus"
	"bftcore.dev/chain/internal/hashing"
	"bftcore.dev/chain/internal/metrics"
	"bftcore.dev/chain/internal/transport"
	"bftcore.dev/chain/internal/txn"
	"bftcore.dev/chain/internal/vote"
)

// headerEntry is what Node remembers about an accepted BLOCK_HEADER while
// it waits to pull the matching body.
type headerEntry struct {
	Header   chain.Header
	Proposer bftcrypto.Address
}

// gossipCacheSize bounds the header/body/sent-vote caches so a long-running
// node does not retain state for every height it has ever seen.
const gossipCacheSize = 4096

// Node wires a consensus Engine to a Transport: it decides when to
// propose, dispatches every inbound message to the engine, and rebroadcasts
// whatever new votes the engine produces. Node is driven entirely by Tick —
// it never starts a goroutine of its own.
type Node struct {
	self       *bftcrypto.KeyPair
	address    bftcrypto.Address
	chainID    string
	validators []bftcrypto.Address

	transport transport.Transport
	engine    *consensus.Engine
	metrics   *metrics.Metrics

	pool       []*txn.Transaction
	poolHashes map[hashing.Digest]struct{}

	sentVotes       *lru.Cache
	acceptedHeaders *lru.Cache
	bodies          *lru.Cache

	log *log.Logger
}

// New creates a Node for self, wired to engine and tr. validators is the
// fixed, identically-ordered validator address list every node in the
// simulation shares.
func New(self *bftcrypto.KeyPair, chainID string, validators []bftcrypto.Address, tr transport.Transport, engine *consensus.Engine, m *metrics.Metrics) (*Node, error) {
	sentVotes, err := lru.New(gossipCacheSize)
	if err != nil {
		return nil, fmt.Errorf("node: failed to allocate sent-votes cache: %w", err)
	}
	acceptedHeaders, err := lru.New(gossipCacheSize)
	if err != nil {
		return nil, fmt.Errorf("node: failed to allocate header cache: %w", err)
	}
	bodies, err := lru.New(gossipCacheSize)
	if err != nil {
		return nil, fmt.Errorf("node: failed to allocate body cache: %w", err)
	}

	address := self.Address()
	return &Node{
		self:            self,
		address:         address,
		chainID:         chainID,
		validators:      validators,
		transport:       tr,
		engine:          engine,
		metrics:         m,
		poolHashes:      make(map[hashing.Digest]struct{}),
		sentVotes:       sentVotes,
		acceptedHeaders: acceptedHeaders,
		bodies:          bodies,
		log:             log.New(log.Writer(), "NODE["+string(address)+"]: ", log.LstdFlags),
	}, nil
}

// Address returns this node's validator address, also its transport
// identity.
func (n *Node) Address() bftcrypto.Address {
	return n.address
}

// Engine exposes the underlying consensus engine for inspection (current
// height, finalized chain, state) by a driver or test.
func (n *Node) Engine() *consensus.Engine {
	return n.engine
}

func (n *Node) leaderAt(height uint64) bftcrypto.Address {
	idx := (height - 1) % uint64(len(n.validators))
	return n.validators[idx]
}

func (n *Node) isLeader(height uint64) bool {
	return n.leaderAt(height) == n.address
}

func (n *Node) validatorIDs() []string {
	ids := make([]string, len(n.validators))
	for i, v := range n.validators {
		ids[i] = string(v)
	}
	return ids
}

// SubmitTransaction adds a locally created transaction to the pool and
// broadcasts it to every validator. It rejects (without mutating the pool)
// a transaction whose signature does not verify.
func (n *Node) SubmitTransaction(tx *txn.Transaction) error {
	if !tx.Verify() {
		return fmt.Errorf("node: rejected transaction %s: invalid signature", tx.TxHash.Hex())
	}
	n.addToPool(tx)
	n.transport.Broadcast(string(n.address), n.validatorIDs(), transport.Transaction, txPayload(tx))
	if n.metrics != nil {
		n.metrics.MessagesSent.WithLabelValues(string(n.address), string(transport.Transaction)).Inc()
	}
	return nil
}

func (n *Node) addToPool(tx *txn.Transaction) {
	if _, exists := n.poolHashes[tx.TxHash]; exists {
		return
	}
	n.poolHashes[tx.TxHash] = struct{}{}
	n.pool = append(n.pool, tx)
}

func (n *Node) clearPool() {
	n.pool = nil
	n.poolHashes = make(map[hashing.Digest]struct{})
}

// Tick drains this node's inbox, handling every pending message to
// completion, drops from the pool every transaction included in a block
// finalized during that drain, then proposes a block if this node leads the
// current height and the pool is non-empty.
func (n *Node) Tick() {
	heightBefore := n.engine.CurrentHeight()
	for _, msg := range n.transport.GetMessages(string(n.address)) {
		n.handle(msg)
	}

	height := n.engine.CurrentHeight()
	for h := heightBefore; h < height; h++ {
		if b, err := n.engine.Blockchain().At(h); err == nil {
			for _, tx := range b.Transactions {
				delete(n.poolHashes, tx.TxHash)
			}
		}
	}
	kept := n.pool[:0]
	for _, tx := range n.pool {
		if _, ok := n.poolHashes[tx.TxHash]; ok {
			kept = append(kept, tx)
		}
	}
	n.pool = kept
	if n.metrics != nil {
		n.metrics.Height.WithLabelValues(string(n.address)).Set(float64(height))
	}
	if n.isLeader(height) && len(n.pool) > 0 {
		n.proposeAndBroadcast()
	}
}

func (n *Node) handle(msg transport.Message) {
	switch msg.Type {
	case transport.Transaction:
		n.handleTransaction(msg)
	case transport.BlockProposal:
		n.handleProposal(msg)
	case transport.BlockHeader:
		n.handleHeader(msg)
	case transport.BlockBodyRequest:
		n.handleBodyRequest(msg)
	case transport.BlockBody:
		n.handleBody(msg)
	case transport.Vote:
		n.handleVote(msg)
	default:
		n.dropMessage("unknown_type")
	}
}

func (n *Node) dropMessage(reason string) {
	if n.metrics != nil {
		n.metrics.MessagesDropped.WithLabelValues(string(n.address), reason).Inc()
	}
}

func (n *Node) handleTransaction(msg transport.Message) {
	tx, err := parseTxPayload(msg.Payload)
	if err != nil {
		n.dropMessage("malformed_tx")
		return
	}
	if !tx.Verify() {
		n.dropMessage("invalid_signature")
		return
	}
	n.addToPool(tx)
}

func (n *Node) handleProposal(msg transport.Message) {
	proposal, err := parseProposalPayload(msg.Payload)
	if err != nil {
		n.dropMessage("malformed_proposal")
		return
	}
	n.processProposal(proposal)
}

// processProposal feeds a reconstructed or directly-received proposal into
// the consensus engine and rebroadcasts every vote it produces — its own
// prevote, and any precommit a replayed, previously-buffered vote for this
// block now unlocks.
func (n *Node) processProposal(proposal *chain.Proposal) {
	produced, err := n.engine.ReceiveProposal(proposal)
	if err != nil {
		n.log.Printf("error processing proposal for height %d: %v", proposal.Block.Header.Height, err)
	}
	for _, v := range produced {
		n.broadcastVoteIfNew(v)
	}
}

func (n *Node) handleHeader(msg transport.Message) {
	header, proposer, blockHash, err := parseHeaderPayload(msg.Payload)
	if err != nil {
		n.dropMessage("malformed_header")
		return
	}
	if header.Height != n.engine.CurrentHeight() {
		return
	}
	if header.ParentHash != n.engine.Blockchain().Head().BlockHash {
		return
	}
	n.acceptedHeaders.Add(blockHash, headerEntry{Header: header, Proposer: proposer})
	n.transport.Send(string(n.address), string(proposer), transport.BlockBodyRequest, bodyRequestPayload(blockHash))
}

func (n *Node) handleBodyRequest(msg transport.Message) {
	blockHash, err := parseBodyRequestPayload(msg.Payload)
	if err != nil {
		n.dropMessage("malformed_body_request")
		return
	}
	cached, ok := n.bodies.Get(blockHash)
	if !ok {
		return
	}
	n.transport.Send(string(n.address), msg.Sender, transport.BlockBody, bodyPayload(blockHash, cached.([]*txn.Transaction)))
}

func (n *Node) handleBody(msg transport.Message) {
	blockHash, txs, err := parseBodyPayload(msg.Payload)
	if err != nil {
		n.dropMessage("malformed_body")
		return
	}
	entryVal, ok := n.acceptedHeaders.Get(blockHash)
	if !ok {
		return
	}
	entry := entryVal.(headerEntry)

	block, err := chain.NewBlock(entry.Header, txs)
	if err != nil || block.BlockHash != blockHash {
		n.dropMessage("body_hash_mismatch")
		return
	}
	n.processProposal(chain.NewProposal(block, entry.Proposer))
}

func (n *Node) handleVote(msg transport.Message) {
	v, err := parseVotePayload(msg.Payload)
	if err != nil {
		n.dropMessage("malformed_vote")
		return
	}
	heightBefore := n.engine.CurrentHeight()
	produced, err := n.engine.ReceiveVote(v)
	if err != nil {
		n.log.Printf("error processing vote for height %d: %v", v.Height, err)
		return
	}
	if n.metrics != nil {
		n.metrics.VotesReceived.WithLabelValues(string(n.address), string(v.Phase)).Inc()
	}
	for _, pv := range produced {
		n.broadcastVoteIfNew(pv)
	}
	if n.metrics != nil {
		n.metrics.Equivocations.WithLabelValues(string(n.address)).Set(float64(len(n.engine.Collector().Equivocators())))
		if n.engine.CurrentHeight() > heightBefore {
			n.metrics.BlocksFinalized.WithLabelValues(string(n.address)).Inc()
		}
	}
}

func (n *Node) broadcastVoteIfNew(v *vote.Vote) {
	key := sentVoteKey(v)
	if n.sentVotes.Contains(key) {
		return
	}
	n.sentVotes.Add(key, struct{}{})
	n.transport.Broadcast(string(n.address), n.validatorIDs(), transport.Vote, votePayload(v))
	if n.metrics != nil {
		n.metrics.MessagesSent.WithLabelValues(string(n.address), string(transport.Vote)).Inc()
	}
}

func (n *Node) proposeAndBroadcast() {
	heightBefore := n.engine.CurrentHeight()
	proposal, err := n.engine.ProposeBlock(n.pool)
	if err != nil {
		n.log.Printf("failed to propose block at height %d: %v", heightBefore, err)
		return
	}
	blockHash := proposal.Block.BlockHash

	n.bodies.Add(blockHash, proposal.Block.Transactions)
	n.transport.Broadcast(string(n.address), n.validatorIDs(), transport.BlockHeader, headerPayload(proposal.Block.Header, n.address, blockHash))
	n.transport.Broadcast(string(n.address), n.validatorIDs(), transport.BlockProposal, proposalPayload(proposal))
	n.acceptedHeaders.Add(blockHash, headerEntry{Header: proposal.Block.Header, Proposer: n.address})

	if n.metrics != nil {
		n.metrics.MessagesSent.WithLabelValues(string(n.address), string(transport.BlockHeader)).Inc()
		n.metrics.MessagesSent.WithLabelValues(string(n.address), string(transport.BlockProposal)).Inc()
	}

	n.processProposal(proposal)
	n.clearPool()

	if n.metrics != nil && n.engine.CurrentHeight() > heightBefore {
		n.metrics.BlocksFinalized.WithLabelValues(string(n.address)).Inc()
	}
}
