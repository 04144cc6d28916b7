package types

import (
	"bftchain/crypto/merkle"

	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// TxKeySize is the size of the transaction key index, the SHA-256 of the
// raw transaction bytes.
const TxKeySize = tmhash.Size

// Tx is an arbitrary byte array accepted as-is from the application's
// point of view; the chain orders them and nothing more.
type Tx []byte

// TxKey is the fixed length array hash used as the key in maps.
type TxKey [TxKeySize]byte

// Hash computes the SHA-256 hash of the raw transaction bytes.
func (tx Tx) Hash() []byte {
	return tmhash.Sum(tx)
}

// Key returns the tx hash as a fixed length array, usable as a map key.
func (tx Tx) Key() TxKey {
	var key TxKey
	copy(key[:], tx.Hash())
	return key
}

// String returns the hex-encoded hash of the transaction.
func (tx Tx) String() string {
	return "Tx{" + tmbytes.HexBytes(tx.Hash()).String() + "}"
}

// Txs is a slice of Tx.
type Txs []Tx

// Hash returns the Merkle root hash of the transactions.
func (txs Txs) Hash() []byte {
	bzs := make([][]byte, len(txs))
	for i := 0; i < len(txs); i++ {
		bzs[i] = txs[i].Hash()
	}
	return merkle.HashFromByteSlices(bzs)
}

// ComputeSizeForTxs returns the total byte size of the given transactions.
func ComputeSizeForTxs(txs Txs) int64 {
	var size int64
	for _, tx := range txs {
		size += int64(len(tx))
	}
	return size
}
