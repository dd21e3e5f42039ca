// Package state implements the core's deterministic key/value account
// ledger. Balances live under "balance:<address>" keys; every snapshot is an
// independent copy so that proposal validation, re-execution, and
// finalization never observe each other's in-progress mutations.
package state

import (
	"fmt"
	"sync"

	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/hashing"
)

const balanceKeyPrefix = "balance:"

func balanceKey(addr bftcrypto.Address) string {
	return balanceKeyPrefix + string(addr)
}

// State is a copy-on-write snapshot of the ledger. All mutating methods act
// on this instance directly; callers that need an independent snapshot must
// call Copy first.
type State struct {
	mu   sync.RWMutex
	data map[string]int64
}

// New creates an empty State.
func New() *State {
	return &State{data: make(map[string]int64)}
}

// NewWithBalances creates a State pre-populated with the given starting
// balances, the shape genesis construction needs.
func NewWithBalances(balances map[bftcrypto.Address]int64) *State {
	s := New()
	for addr, amount := range balances {
		s.data[balanceKey(addr)] = amount
	}
	return s
}

// Get returns the raw value stored under key, and whether it was present.
// Absent keys implicitly default to 0 everywhere balances are read through
// GetBalance, but Get itself reports presence so callers can distinguish
// "explicitly zero" from "never set" if they need to.
func (s *State) Get(key string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key.
func (s *State) Set(key string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// GetBalance returns addr's balance, defaulting to 0 if addr has never held
// funds.
func (s *State) GetBalance(addr bftcrypto.Address) int64 {
	v, _ := s.Get(balanceKey(addr))
	return v
}

// SetBalance sets addr's balance directly, bypassing transfer semantics.
// Used only for genesis initialization.
func (s *State) SetBalance(addr bftcrypto.Address, amount int64) {
	s.Set(balanceKey(addr), amount)
}

// Transfer atomically moves amount from from to to: it checks the sender's
// balance, then debits and credits in the same critical section. It returns
// false, leaving the state completely unchanged, iff amount is negative or
// the sender's balance is insufficient. Transfers of a non-negative amount never produce a negative
// balance.
func (s *State) Transfer(from, to bftcrypto.Address, amount int64) bool {
	if amount < 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fromKey := balanceKey(from)
	if s.data[fromKey] < amount {
		return false
	}
	s.data[fromKey] -= amount
	s.data[balanceKey(to)] += amount
	return true
}

// Hash returns the canonical digest of the entire ledger. Because the
// digest is computed from a map[string]interface{} via encoding/json (which
// sorts object keys lexicographically at every nesting level), the result is
// invariant under the map's internal insertion order.
func (s *State) Hash() (hashing.Digest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asMap := make(map[string]interface{}, len(s.data))
	for k, v := range s.data {
		asMap[k] = v
	}
	return hashing.Map(asMap)
}

// HashHex is Hash rendered as a hex string, the wire/log form for a state
// commitment.
func (s *State) HashHex() (string, error) {
	d, err := s.Hash()
	if err != nil {
		return "", fmt.Errorf("state: failed to hash: %w", err)
	}
	return d.Hex(), nil
}

// Copy returns an independent snapshot: mutating the copy never affects the
// receiver, and vice versa.
func (s *State) Copy() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := make(map[string]int64, len(s.data))
	for k, v := range s.data {
		cp[k] = v
	}
	return &State{data: cp}
}
