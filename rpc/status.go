package rpc

import (
	"fmt"

	"bftchain/types"

	"github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

// ResultStatus is the node's chain position summary.
type ResultStatus struct {
	LatestBlockHeight int64          `json:"latest_block_height"`
	LatestBlockHash   bytes.HexBytes `json:"latest_block_hash"`
	LatestAppHash     bytes.HexBytes `json:"latest_app_hash"`
	ChainID           string         `json:"chain_id"`
}

// Status returns the committed chain head as this node sees it.
func Status(ctx *rpctypes.Context) (*ResultStatus, error) {
	st := env.Consensus.GetState()
	res := &ResultStatus{
		LatestBlockHeight: env.BlockStore.Height(),
		LatestAppHash:     st.AppHash,
		ChainID:           st.ChainID,
	}
	if block := env.BlockStore.LoadBlock(res.LatestBlockHeight); block != nil {
		res.LatestBlockHash = block.Hash()
	}
	return res, nil
}

// ResultBlock wraps a block query.
type ResultBlock struct {
	Height int64        `json:"height"`
	Block  *types.Block `json:"block"`
}

// Block loads the block at the given height, or the latest for height <= 0.
func Block(ctx *rpctypes.Context, height int64) (*ResultBlock, error) {
	if height <= 0 {
		height = env.BlockStore.Height()
	}
	block := env.BlockStore.LoadBlock(height)
	if block == nil {
		return nil, fmt.Errorf("no block for height %d", height)
	}
	return &ResultBlock{Height: height, Block: block}, nil
}

// ResultCommit wraps a commit query.
type ResultCommit struct {
	Height int64         `json:"height"`
	Commit *types.Commit `json:"commit"`
}

// Commit loads the commit that decided the block at the given height.
func Commit(ctx *rpctypes.Context, height int64) (*ResultCommit, error) {
	if height <= 0 {
		height = env.BlockStore.Height()
	}
	commit := env.Consensus.LoadCommit(height)
	if commit == nil {
		return nil, fmt.Errorf("no commit for height %d", height)
	}
	return &ResultCommit{Height: height, Commit: commit}, nil
}
