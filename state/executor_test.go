package state

import (
	"fmt"
	"testing"

	"bftchain/abci"
	"bftchain/mempool"
	"bftchain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
)

func makeExecutor(t *testing.T, nVals int) (*BlockExecutor, State, *mempool.CListMempool, []types.PrivValidator) {
	t.Helper()
	genDoc, privVals := makeGenesisDoc(nVals)
	state, err := MakeGenesisState(genDoc)
	require.NoError(t, err)

	app := abci.NewInMemoryKVStoreApplication()
	mem := mempool.NewCListMempool(cfg.TestConfig().Mempool, app, 0)
	mem.SetLogger(log.TestingLogger())

	blockExec := NewBlockExecutor(
		NewStore(tmdb.NewMemDB()), log.TestingLogger(), app, mem, EmptyEvidencePool{})
	return blockExec, state, mem, privVals
}

func TestCreateProposalBlock(t *testing.T) {
	blockExec, state, mem, _ := makeExecutor(t, 1)

	// queue a few txs
	for i := 1; i <= 3; i++ {
		tx := types.Tx(fmt.Sprintf("alice:%d:%d:k%d=v", i, i*10, i))
		require.NoError(t, mem.CheckTx(tx, mempool.TxInfo{}))
	}

	commit := types.NewCommit(0, 0, types.BlockID{}, nil)
	proposer := state.Validators.Validators[0].Address
	block, parts := blockExec.CreateProposalBlock(1, state, commit, proposer)

	require.NotNil(t, block)
	require.NoError(t, blockExec.ValidateBlock(state, block))
	assert.Len(t, block.Txs, 3)
	assert.True(t, parts.IsComplete())
}

func TestApplyBlock(t *testing.T) {
	blockExec, state, mem, _ := makeExecutor(t, 1)

	tx := types.Tx("alice:1:5:answer=42")
	require.NoError(t, mem.CheckTx(tx, mempool.TxInfo{}))

	commit := types.NewCommit(0, 0, types.BlockID{}, nil)
	proposer := state.Validators.Validators[0].Address
	block, parts := blockExec.CreateProposalBlock(1, state, commit, proposer)
	blockID := types.BlockID{Hash: block.Hash(), PartSetHeader: parts.Header()}

	newState, err := blockExec.ApplyBlock(state, blockID, block)
	require.NoError(t, err)

	assert.EqualValues(t, 1, newState.LastBlockHeight)
	assert.True(t, newState.LastBlockID.Equals(blockID))
	assert.NotEmpty(t, newState.AppHash, "the app hash comes from the application commit")
	assert.NotEmpty(t, newState.LastResultsHash)

	// validator sets rotated
	assert.Equal(t, state.Validators.Hash(), newState.LastValidators.Hash())
	assert.Equal(t, state.NextValidators.Hash(), newState.Validators.Hash())

	// committed tx was removed from the mempool
	assert.Equal(t, 0, mem.Size())

	// the new state was persisted
	loaded, err := blockExec.Store().Load()
	require.NoError(t, err)
	assert.True(t, newState.Equals(loaded))
}

func TestApplyBlockInvalid(t *testing.T) {
	blockExec, state, _, _ := makeExecutor(t, 1)

	commit := types.NewCommit(0, 0, types.BlockID{}, nil)
	proposer := state.Validators.Validators[0].Address
	block, parts := blockExec.CreateProposalBlock(1, state, commit, proposer)
	blockID := types.BlockID{Hash: block.Hash(), PartSetHeader: parts.Header()}

	// tamper with the chain id
	block.ChainID = "wrong-chain"
	_, err := blockExec.ApplyBlock(state, blockID, block)
	require.Error(t, err)
}
