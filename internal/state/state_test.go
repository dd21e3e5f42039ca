package state_test

import (
	"testing"

	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/state"
	"github.com/stretchr/testify/require"
)

const (
	alice = bftcrypto.Address("alice")
	bob   = bftcrypto.Address("bob")
)

func TestDefaultBalanceIsZero(t *testing.T) {
	s := state.New()
	require.EqualValues(t, 0, s.GetBalance(alice))
}

func TestTransferMovesFunds(t *testing.T) {
	s := state.New()
	s.SetBalance(alice, 100)

	ok := s.Transfer(alice, bob, 40)
	require.True(t, ok)
	require.EqualValues(t, 60, s.GetBalance(alice))
	require.EqualValues(t, 40, s.GetBalance(bob))
}

func TestTransferFailsOnInsufficientBalance(t *testing.T) {
	s := state.New()
	s.SetBalance(alice, 10)

	ok := s.Transfer(alice, bob, 50)
	require.False(t, ok)
	require.EqualValues(t, 10, s.GetBalance(alice))
	require.EqualValues(t, 0, s.GetBalance(bob))
}

func TestTransferRejectsNegativeAmount(t *testing.T) {
	s := state.New()
	s.SetBalance(alice, 10)
	require.False(t, s.Transfer(alice, bob, -5))
}

func TestHashInvariantUnderInsertionOrder(t *testing.T) {
	s1 := state.New()
	s1.SetBalance(alice, 10)
	s1.SetBalance(bob, 20)

	s2 := state.New()
	s2.SetBalance(bob, 20)
	s2.SetBalance(alice, 10)

	h1, err := s1.Hash()
	require.NoError(t, err)
	h2, err := s2.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestHashDiffersOnValueChange(t *testing.T) {
	s1 := state.New()
	s1.SetBalance(alice, 10)
	s2 := state.New()
	s2.SetBalance(alice, 11)

	h1, _ := s1.Hash()
	h2, _ := s2.Hash()
	require.NotEqual(t, h1, h2)
}

func TestCopyIsIndependent(t *testing.T) {
	s := state.New()
	s.SetBalance(alice, 100)

	cp := s.Copy()
	cp.SetBalance(alice, 0)

	require.EqualValues(t, 100, s.GetBalance(alice))
	require.EqualValues(t, 0, cp.GetBalance(alice))
}

func TestNewWithBalances(t *testing.T) {
	s := state.NewWithBalances(map[bftcrypto.Address]int64{alice: 1000, bob: 500})
	require.EqualValues(t, 1000, s.GetBalance(alice))
	require.EqualValues(t, 500, s.GetBalance(bob))
}
