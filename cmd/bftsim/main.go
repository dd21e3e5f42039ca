// Command bftsim drives a small in-process BFT simulation: N validators,
// one shared deterministic transport, and a single demo transfer submitted
// at startup. It exists to demonstrate the core end to end, not as a
// production entry point — configuration loading, persistent storage, and a
// real network transport are all out of scope (see DESIGN.md).
package main

import (
	"flag"
	"fmt"
	"log"

	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/chain"
	"bftcore.dev/chain/internal/consensus"
	"bftcore.dev/chain/internal/metrics"
	"bftcore.dev/chain/internal/node"
	"bftcore.dev/chain/internal/transport"
	"bftcore.dev/chain/internal/txn"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	numValidators := flag.Int("validators", 4, "number of validators in the simulation")
	ticks := flag.Int("ticks", 100, "number of alternating transport/node ticks to run")
	chainID := flag.String("chain-id", "test-chain-1", "chain identifier signed envelopes are scoped to")
	seed := flag.Int64("seed", 1, "seed for the simulated transport's reordering PRNG")
	flag.Parse()

	if err := run(*numValidators, *ticks, *chainID, *seed); err != nil {
		log.Fatalf("bftsim: %v", err)
	}
}

func run(numValidators, ticks int, chainID string, seed int64) error {
	if numValidators < 1 {
		return fmt.Errorf("validators must be >= 1, got %d", numValidators)
	}

	log.Printf("bftsim: building a %d-validator network on chain %q", numValidators, chainID)

	validators := make([]*bftcrypto.KeyPair, numValidators)
	addrs := make([]bftcrypto.Address, numValidators)
	balances := make(map[bftcrypto.Address]int64, numValidators)
	for i := 0; i < numValidators; i++ {
		kp, err := bftcrypto.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("failed to generate keypair for validator %d: %w", i, err)
		}
		validators[i] = kp
		addrs[i] = kp.Address()
		balances[addrs[i]] = 1000
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg) // one shared bundle: every collector already carries a "node" label
	tr := transport.NewSimulatedTransport(seed, 0)

	nodes := make([]*node.Node, numValidators)
	for i, kp := range validators {
		genesis, genesisState, err := chain.NewGenesis(balances)
		if err != nil {
			return fmt.Errorf("failed to build genesis: %w", err)
		}
		engine, err := consensus.NewEngine(chainID, kp, numValidators, genesis, genesisState)
		if err != nil {
			return fmt.Errorf("failed to build consensus engine for validator %d: %w", i, err)
		}
		n, err := node.New(kp, chainID, addrs, tr, engine, m)
		if err != nil {
			return fmt.Errorf("failed to build node %d: %w", i, err)
		}
		nodes[i] = n
		log.Printf("bftsim: validator %d address %s", i, addrs[i])
	}

	demo, err := txn.New(validators[0], addrs[1%numValidators], 50, 0, chainID)
	if err != nil {
		return fmt.Errorf("failed to build demo transaction: %w", err)
	}
	if err := nodes[0].SubmitTransaction(demo); err != nil {
		return fmt.Errorf("failed to submit demo transaction: %w", err)
	}
	log.Printf("bftsim: submitted demo transfer %s -> %s, amount 50", addrs[0], addrs[1%numValidators])

	for i := 0; i < ticks; i++ {
		tr.Tick(1)
		for _, n := range nodes {
			n.Tick()
		}
	}

	log.Printf("bftsim: ran %d ticks", ticks)
	for i, n := range nodes {
		hex, err := n.Engine().CurrentState().HashHex()
		if err != nil {
			return fmt.Errorf("failed to hash final state for validator %d: %w", i, err)
		}
		log.Printf("bftsim: validator %d height=%d state_hash=%s", i, n.Engine().CurrentHeight(), hex)
	}
	return nil
}
