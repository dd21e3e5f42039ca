// Package txn implements the signed transfer transaction: the only
// state-mutating message in the core.
package txn

import (
	"encoding/base64"

	"bftcore.dev/chain/internal/bftcrypto"
	"bftcore.dev/chain/internal/hashing"
)

// Transaction is a signed transfer from From to To, guarded by a
// per-sender nonce for replay protection.
type Transaction struct {
	From      bftcrypto.Address `json:"from"`
	To        bftcrypto.Address `json:"to"`
	Amount    int64             `json:"amount"`
	Nonce     uint64            `json:"nonce"`
	ChainID   string            `json:"chain_id"`
	Signature []byte            `json:"signature"`
	TxHash    hashing.Digest    `json:"tx_hash"`
}

// signedData is the exact {from, to, amount, nonce} payload signed under
// domain TX (spec.md §6.3).
func signedData(from, to bftcrypto.Address, amount int64, nonce uint64) map[string]interface{} {
	return map[string]interface{}{
		"from":   string(from),
		"to":     string(to),
		"amount": amount,
		"nonce":  nonce,
	}
}

// New builds and signs a transfer transaction with kp's private key.
func New(kp *bftcrypto.KeyPair, to bftcrypto.Address, amount int64, nonce uint64, chainID string) (*Transaction, error) {
	from := kp.Address()
	data := signedData(from, to, amount, nonce)
	env, err := bftcrypto.Sign(kp, bftcrypto.DomainTx, chainID, data)
	if err != nil {
		return nil, err
	}
	tx := &Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Nonce:     nonce,
		ChainID:   chainID,
		Signature: env.Signature,
	}
	h, err := tx.computeHash()
	if err != nil {
		return nil, err
	}
	tx.TxHash = h
	return tx, nil
}

// FromWire reconstructs a Transaction from fields received over the
// transport, recomputing tx_hash the same way New does. It does not itself
// check the signature; callers verify via Verify.
func FromWire(from, to bftcrypto.Address, amount int64, nonce uint64, chainID string, signature []byte) (*Transaction, error) {
	tx := &Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Nonce:     nonce,
		ChainID:   chainID,
		Signature: signature,
	}
	h, err := tx.computeHash()
	if err != nil {
		return nil, err
	}
	tx.TxHash = h
	return tx, nil
}

// ToDict renders the transaction as its canonical wire map, the same shape
// tx_hash is computed from (spec.md §3, §6.3): everything except tx_hash
// itself.
func (tx *Transaction) ToDict() map[string]interface{} {
	return map[string]interface{}{
		"from":      string(tx.From),
		"to":        string(tx.To),
		"amount":    tx.Amount,
		"nonce":     tx.Nonce,
		"chain_id":  tx.ChainID,
		"signature": base64.StdEncoding.EncodeToString(tx.Signature),
	}
}

func (tx *Transaction) computeHash() (hashing.Digest, error) {
	return hashing.Map(tx.ToDict())
}

// Verify checks that tx.Signature is a valid signature by tx.From over
// {from, to, amount, nonce} under domain TX and chain tx.ChainID. It returns
// false for any failure: wrong key, tampered fields, or a malformed
// signature/address.
func (tx *Transaction) Verify() bool {
	env := &bftcrypto.SignedEnvelope{
		Domain:        bftcrypto.DomainTx,
		ChainID:       tx.ChainID,
		Data:          signedData(tx.From, tx.To, tx.Amount, tx.Nonce),
		Signature:     tx.Signature,
		SignerAddress: tx.From,
	}
	return bftcrypto.Verify(env) == nil
}
