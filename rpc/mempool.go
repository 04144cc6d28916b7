package rpc

import (
	"fmt"

	"bftchain/mempool"
	"bftchain/types"

	"github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

// ResultBroadcastTx is the tx hash plus the CheckTx verdict, if waited for.
type ResultBroadcastTx struct {
	Hash bytes.HexBytes `json:"hash"`
	Log  string         `json:"log,omitempty"`
}

// BroadcastTxAsync submits a tx without waiting for the CheckTx verdict.
func BroadcastTxAsync(ctx *rpctypes.Context, tx types.Tx) (*ResultBroadcastTx, error) {
	go func() {
		_ = env.Mempool.CheckTx(tx, mempool.TxInfo{})
	}()
	return &ResultBroadcastTx{Hash: tx.Hash()}, nil
}

// BroadcastTxSync submits a tx and waits for the CheckTx verdict.
func BroadcastTxSync(ctx *rpctypes.Context, tx types.Tx) (*ResultBroadcastTx, error) {
	if err := env.Mempool.CheckTx(tx, mempool.TxInfo{}); err != nil {
		return nil, fmt.Errorf("tx rejected: %w", err)
	}
	return &ResultBroadcastTx{Hash: tx.Hash()}, nil
}

// ResultUnconfirmedTxs lists queued transactions.
type ResultUnconfirmedTxs struct {
	Count      int       `json:"n_txs"`
	Total      int       `json:"total"`
	TotalBytes int64     `json:"total_bytes"`
	Txs        types.Txs `json:"txs"`
}

// UnconfirmedTxs returns up to limit unapplied transactions; limit <= 0
// returns all of them.
func UnconfirmedTxs(ctx *rpctypes.Context, limit int) (*ResultUnconfirmedTxs, error) {
	if limit <= 0 {
		limit = -1
	}
	txs := env.Mempool.ReapMaxTxs(limit)
	return &ResultUnconfirmedTxs{
		Count:      len(txs),
		Total:      env.Mempool.Size(),
		TotalBytes: env.Mempool.TxsBytes(),
		Txs:        txs,
	}, nil
}
