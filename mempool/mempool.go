package mempool

import (
	"bftchain/types"

	"github.com/tendermint/tendermint/p2p"
)

// Mempool defines the interface the consensus and rpc layers use to interact
// with the pool of unapplied transactions.
//
// Updates to the mempool need to be synchronized with committing a block so
// applications can reset their transient state on Commit.
type Mempool interface {
	// CheckTx executes a new transaction against the application to
	// determine its validity and whether it should be added to the mempool.
	CheckTx(tx types.Tx, txInfo TxInfo) error

	// ReapMaxBytesMaxGas reaps transactions from the mempool up to maxBytes
	// bytes total with the condition that the total gasWanted must not
	// exceed maxGas.
	// If both maxes are negative, there is no cap on the size of all
	// returned transactions (~ all available transactions).
	ReapMaxBytesMaxGas(maxBytes, maxGas int64) types.Txs

	// ReapMaxTxs reaps up to max transactions from the mempool.
	// If max is negative, there is no cap on the size of all returned
	// transactions (~ all available transactions).
	ReapMaxTxs(max int) types.Txs

	// Lock locks the mempool. The consensus must be able to hold lock to
	// safely update.
	Lock()

	// Unlock unlocks the mempool.
	Unlock()

	// Update informs the mempool that the given txs were committed and can
	// be discarded.
	// NOTE: this should be called *after* block is committed by consensus.
	// NOTE: Lock/Unlock must be managed by caller.
	Update(blockHeight int64, blockTxs types.Txs) error

	// Flush removes all transactions from the mempool and cache.
	Flush()

	// TxsAvailable returns a channel which fires once for every height, and
	// only when transactions are available in the mempool.
	// NOTE: the returned channel may be nil if EnableTxsAvailable was not
	// called.
	TxsAvailable() <-chan struct{}

	// EnableTxsAvailable initializes the TxsAvailable channel, ensuring it
	// will trigger once every height when transactions are available.
	EnableTxsAvailable()

	// Size returns the number of transactions in the mempool.
	Size() int

	// TxsBytes returns the total size of all txs in the mempool.
	TxsBytes() int64
}

//--------------------------------------------------------------------------------

// PreCheckFunc is an optional filter executed before CheckTx and rejects
// transactions if false is returned.
type PreCheckFunc func(types.Tx) error

// TxInfo are parameters that get passed when attempting to add a tx to the
// mempool.
type TxInfo struct {
	// SenderID is the internal peer ID used in the mempool to identify the
	// sender, storing 2 bytes with each tx instead of 20 bytes for the p2p.ID.
	SenderID uint16
	// SenderP2PID is the actual p2p.ID of the sender, used e.g. for logging.
	SenderP2PID p2p.ID
}

// PreCheckMaxBytes checks that the size of the transaction is smaller or
// equal to the expected maxBytes.
func PreCheckMaxBytes(maxBytes int64) PreCheckFunc {
	return func(tx types.Tx) error {
		txSize := int64(len(tx))
		if txSize > maxBytes {
			return ErrTxTooLarge{maxBytes, txSize}
		}
		return nil
	}
}
