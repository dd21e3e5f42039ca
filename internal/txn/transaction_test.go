package txn_test

import (
	"testing"

	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/txn"
	"github.com/stretchr/testify/require"
)

func keypair(t *testing.T, b byte) *bftcrypto.KeyPair {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = b
	}
	kp, err := bftcrypto.FromSeed(seed)
	require.NoError(t, err)
	return kp
}

func TestNewTransactionVerifies(t *testing.T) {
	alice := keypair(t, 1)
	bob := keypair(t, 2)

	tx, err := txn.New(alice, bob.Address(), 50, 0, "test-chain-1")
	require.NoError(t, err)
	require.True(t, tx.Verify())
}

func TestTxHashComputedAfterSigning(t *testing.T) {
	alice := keypair(t, 3)
	bob := keypair(t, 4)

	tx, err := txn.New(alice, bob.Address(), 50, 0, "test-chain-1")
	require.NoError(t, err)
	require.False(t, tx.TxHash.IsZero())

	recomputed, err := txn.New(alice, bob.Address(), 50, 0, "test-chain-1")
	require.NoError(t, err)
	// Ed25519 signing is deterministic per message, so this construction
	// reproduces the same signature and therefore the same hash.
	require.Equal(t, tx.TxHash, recomputed.TxHash)
}

func TestTamperedAmountFailsVerify(t *testing.T) {
	alice := keypair(t, 5)
	bob := keypair(t, 6)

	tx, err := txn.New(alice, bob.Address(), 50, 0, "test-chain-1")
	require.NoError(t, err)

	tx.Amount = 5000
	require.False(t, tx.Verify())
}

func TestInvalidSignatureBytesFailVerify(t *testing.T) {
	alice := keypair(t, 7)
	bob := keypair(t, 8)

	tx, err := txn.New(alice, bob.Address(), 50, 0, "test-chain-1")
	require.NoError(t, err)

	tx.Signature = make([]byte, 64)
	require.False(t, tx.Verify())
}

func TestWrongChainIDFailsVerify(t *testing.T) {
	alice := keypair(t, 9)
	bob := keypair(t, 10)

	tx, err := txn.New(alice, bob.Address(), 50, 0, "chain-a")
	require.NoError(t, err)

	tx.ChainID = "chain-b"
	require.False(t, tx.Verify())
}
