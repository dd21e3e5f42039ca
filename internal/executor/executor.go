// Package executor applies an ordered sequence of transactions to a state
// snapshot, enforcing per-sender replay protection via a per-execution nonce
// table. Execute is a pure function of its inputs: given the same starting
// state and the same ordered transaction list, it always produces the same
// resulting state and the same list of executed transaction hashes.
package executor

import (
	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/hashing"
	"bftcore.dev/chain/internal/state"
	"bftcore.dev/chain/internal/txn"
)

// Execute takes an independent snapshot of s, then applies txs to it in
// order. A transaction is skipped — leaving the snapshot untouched by that
// transaction — if its signature fails to verify, if its nonce does not
// match the sender's next-expected nonce (starting at 0), if the sender's
// balance is insufficient, or if its amount is negative. A skipped
// transaction never advances the sender's expected nonce, so a later
// transaction from the same sender must still present the unchanged nonce.
//
// Execute returns the resulting snapshot and the hashes of the transactions
// that were actually applied, in application order.
func Execute(s *state.State, txs []*txn.Transaction) (*state.State, []hashing.Digest) {
	snapshot := s.Copy()
	expectedNonce := make(map[bftcrypto.Address]uint64)
	executed := make([]hashing.Digest, 0, len(txs))

	for _, tx := range txs {
		if tx.Amount < 0 {
			continue
		}
		if !tx.Verify() {
			continue
		}
		if tx.Nonce != expectedNonce[tx.From] {
			continue
		}
		if snapshot.GetBalance(tx.From) < tx.Amount {
			continue
		}
		if !snapshot.Transfer(tx.From, tx.To, tx.Amount) {
			continue
		}
		expectedNonce[tx.From] = tx.Nonce + 1
		executed = append(executed, tx.TxHash)
	}

	return snapshot, executed
}
