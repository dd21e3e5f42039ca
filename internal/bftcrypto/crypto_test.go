package bftcrypto_test

import (
	"testing"

	"bftcore.dev/chain/internal/bftcrypto"
	"github.com/stretchr/testify/require"
)

func seed(b byte) []byte {
	s := make([]byte, 32)
	for i := range s {
		s[i] = b
	}
	return s
}

func TestFromSeedIsDeterministic(t *testing.T) {
	k1, err := bftcrypto.FromSeed(seed(7))
	require.NoError(t, err)
	k2, err := bftcrypto.FromSeed(seed(7))
	require.NoError(t, err)
	require.Equal(t, k1.Public, k2.Public)
	require.Equal(t, k1.Address(), k2.Address())
}

func TestAddressRoundTrip(t *testing.T) {
	k, err := bftcrypto.FromSeed(seed(1))
	require.NoError(t, err)
	addr := k.Address()
	pub, err := addr.PublicKey()
	require.NoError(t, err)
	require.Equal(t, k.Public, pub)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	k, err := bftcrypto.FromSeed(seed(2))
	require.NoError(t, err)
	data := map[string]interface{}{"amount": 50, "to": "bob"}
	env, err := bftcrypto.Sign(k, bftcrypto.DomainTx, "test-chain-1", data)
	require.NoError(t, err)
	require.NoError(t, bftcrypto.Verify(env))
}

func TestDomainSeparation(t *testing.T) {
	k, err := bftcrypto.FromSeed(seed(3))
	require.NoError(t, err)
	data := map[string]interface{}{"height": 1}
	env, err := bftcrypto.Sign(k, bftcrypto.DomainTx, "test-chain-1", data)
	require.NoError(t, err)

	env.Domain = bftcrypto.DomainVote
	require.ErrorIs(t, bftcrypto.Verify(env), bftcrypto.ErrInvalidSignature)
}

func TestChainIDSeparation(t *testing.T) {
	k, err := bftcrypto.FromSeed(seed(4))
	require.NoError(t, err)
	data := map[string]interface{}{"height": 1}
	env, err := bftcrypto.Sign(k, bftcrypto.DomainVote, "chain-a", data)
	require.NoError(t, err)

	env.ChainID = "chain-b"
	require.ErrorIs(t, bftcrypto.Verify(env), bftcrypto.ErrInvalidSignature)
}

func TestTamperDetection(t *testing.T) {
	k, err := bftcrypto.FromSeed(seed(5))
	require.NoError(t, err)
	data := map[string]interface{}{"amount": 10}
	env, err := bftcrypto.Sign(k, bftcrypto.DomainTx, "test-chain-1", data)
	require.NoError(t, err)

	env.Data["amount"] = 11
	require.ErrorIs(t, bftcrypto.Verify(env), bftcrypto.ErrInvalidSignature)
}

func TestWrongKeyRejected(t *testing.T) {
	k1, err := bftcrypto.FromSeed(seed(6))
	require.NoError(t, err)
	k2, err := bftcrypto.FromSeed(seed(9))
	require.NoError(t, err)
	data := map[string]interface{}{"x": 1}
	env, err := bftcrypto.Sign(k1, bftcrypto.DomainBlock, "test-chain-1", data)
	require.NoError(t, err)

	env.SignerAddress = k2.Address()
	require.ErrorIs(t, bftcrypto.Verify(env), bftcrypto.ErrInvalidSignature)
}

func TestMalformedAddressRejected(t *testing.T) {
	k, err := bftcrypto.FromSeed(seed(8))
	require.NoError(t, err)
	data := map[string]interface{}{"x": 1}
	env, err := bftcrypto.Sign(k, bftcrypto.DomainTx, "test-chain-1", data)
	require.NoError(t, err)

	env.SignerAddress = bftcrypto.Address("not-valid-base64!!")
	require.ErrorIs(t, bftcrypto.Verify(env), bftcrypto.ErrInvalidSignature)
}
